package lockorder

import (
	"sort"

	"github.com/playcoin/wallet-service/internal/apperr"
)

// WalletLockKeyPrefix prefixes every distributed wallet lock key.
const WalletLockKeyPrefix = "lock:wallet:"

// SortUniqueWalletIDs deduplicates and sorts wallet ids ascending by
// code point. Every lock taker follows this order; it is what keeps
// overlapping mutations deadlock-free.
func SortUniqueWalletIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// WalletLockKeys derives the distributed lock keys for a wallet set.
func WalletLockKeys(ids []string) []string {
	sorted := SortUniqueWalletIDs(ids)
	keys := make([]string, len(sorted))
	for i, id := range sorted {
		keys[i] = WalletLockKeyPrefix + id
	}
	return keys
}

// UpdateResult is the outcome of one conditional version bump.
type UpdateResult struct {
	WalletID     string
	UpdatedCount int64
}

// AssertOptimisticUpdates fails if any bump did not hit exactly one row.
func AssertOptimisticUpdates(results []UpdateResult) error {
	for _, r := range results {
		if r.UpdatedCount != 1 {
			return apperr.OptimisticLockConflict(r.WalletID)
		}
	}
	return nil
}
