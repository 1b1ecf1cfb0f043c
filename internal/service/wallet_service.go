package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/playcoin/wallet-service/internal/apperr"
	"github.com/playcoin/wallet-service/internal/idemcache"
	"github.com/playcoin/wallet-service/internal/lock"
	"github.com/playcoin/wallet-service/internal/lockorder"
	"github.com/playcoin/wallet-service/internal/model"
	"github.com/playcoin/wallet-service/internal/repo"
)

// dbTxTimeout bounds every mutation transaction.
const dbTxTimeout = 10 * time.Second

// MutationRequest is a validated wallet mutation.
type MutationRequest struct {
	UserID         string
	AssetCode      string
	Amount         int64
	IdempotencyKey string
	Fingerprint    string
}

// MutationResult is what the transport renders.
type MutationResult struct {
	StatusCode int
	Body       json.RawMessage
	Replayed   bool
}

// BalanceEntry is one asset line of a balance response.
type BalanceEntry struct {
	AssetCode string `json:"assetCode"`
	AssetName string `json:"assetName"`
	Balance   string `json:"balance"`
}

// BalanceResult is the balance query response.
type BalanceResult struct {
	UserID   string         `json:"userId"`
	Balances []BalanceEntry `json:"balances"`
}

type mutationBody struct {
	TransactionID  string `json:"transactionId"`
	IdempotencyKey string `json:"idempotencyKey"`
	Operation      string `json:"operation"`
	UserID         string `json:"userId"`
	AssetCode      string `json:"assetCode"`
	Amount         string `json:"amount"`
	Balance        string `json:"balance"`
	FromWalletID   string `json:"fromWalletId"`
	ToWalletID     string `json:"toWalletId"`
	CreatedAt      string `json:"createdAt"`
}

// WalletService orchestrates the mutation pipeline: fast replay, context
// resolution, cross-instance lock, DB transaction with insert-or-replay
// and ordered row locks, double-entry posting, optimistic version bump,
// write-through.
type WalletService struct {
	repo   repo.RepositoryInterface
	cache  *idemcache.Cache
	locker *lock.Locker
	log    *zap.SugaredLogger
}

// NewWalletService returns WalletService.
func NewWalletService(r repo.RepositoryInterface, cache *idemcache.Cache, locker *lock.Locker, logger *zap.SugaredLogger) *WalletService {
	return &WalletService{repo: r, cache: cache, locker: locker, log: logger}
}

// Topup credits a user wallet from TREASURY.
func (s *WalletService) Topup(ctx context.Context, req MutationRequest) (*MutationResult, error) {
	return s.mutate(ctx, model.TxTypeTopup, req)
}

// Bonus is ledger-equivalent to Topup; the type discriminates reporting.
func (s *WalletService) Bonus(ctx context.Context, req MutationRequest) (*MutationResult, error) {
	return s.mutate(ctx, model.TxTypeBonus, req)
}

// Spend debits a user wallet into TREASURY.
func (s *WalletService) Spend(ctx context.Context, req MutationRequest) (*MutationResult, error) {
	return s.mutate(ctx, model.TxTypeSpend, req)
}

func (s *WalletService) mutate(ctx context.Context, txType string, req MutationRequest) (*MutationResult, error) {
	if req.Amount <= 0 {
		return nil, apperr.Validation("amount must be positive")
	}

	// fast replay from the cache; the transactions row stays authoritative
	if cached := s.cache.Get(ctx, req.IdempotencyKey); cached != nil {
		if cached.Fingerprint != req.Fingerprint {
			return nil, apperr.IdempotencyKeyReused()
		}
		return &MutationResult{StatusCode: cached.StatusCode, Body: cached.Body, Replayed: true}, nil
	}

	assetCode := strings.ToUpper(req.AssetCode)
	asset, err := s.repo.GetAssetTypeByCode(ctx, assetCode)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.AssetTypeNotFound(assetCode)
		}
		return nil, err
	}
	userWallet, err := s.repo.GetUserWallet(ctx, req.UserID, asset.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.UserWalletNotFound(req.UserID, assetCode)
		}
		return nil, err
	}
	treasury, err := s.repo.GetSystemWallet(ctx, model.SystemCodeTreasury, asset.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.TreasuryNotConfigured(assetCode)
		}
		return nil, err
	}

	source, destination := treasury, userWallet
	if txType == model.TxTypeSpend {
		source, destination = userWallet, treasury
	}

	handle, err := s.locker.AcquireWallets(ctx, []string{source.ID, destination.ID})
	if err != nil {
		return nil, err
	}
	defer handle.Release(ctx)

	txCtx, cancel := context.WithTimeout(ctx, dbTxTimeout)
	defer cancel()

	var result *MutationResult
	err = s.repo.DB(txCtx).Transaction(func(tx *gorm.DB) error {
		record := &model.Transaction{
			ID:                  uuid.NewString(),
			IdempotencyKey:      req.IdempotencyKey,
			RequestFingerprint:  req.Fingerprint,
			Type:                txType,
			Status:              model.TxStatusProcessing,
			Amount:              req.Amount,
			AssetTypeID:         asset.ID,
			SourceWalletID:      source.ID,
			DestinationWalletID: destination.ID,
		}
		if err := tx.SavePoint("insert_transaction").Error; err != nil {
			return err
		}
		if err := s.repo.CreateTransaction(txCtx, tx, record); err != nil {
			if !errors.Is(err, repo.ErrDuplicateIdempotencyKey) {
				return err
			}
			// a failed insert aborts the enclosing transaction on postgres;
			// roll back to the savepoint so the existing row can be read
			if err := tx.RollbackTo("insert_transaction").Error; err != nil {
				return err
			}
			replay, err := s.replayExisting(txCtx, tx, req)
			if err != nil {
				return err
			}
			result = replay
			return nil
		}

		lockedIDs := lockorder.SortUniqueWalletIDs([]string{source.ID, destination.ID})
		locked, err := s.repo.LockWallets(txCtx, tx, lockedIDs)
		if err != nil {
			return err
		}
		if len(locked) != len(lockedIDs) {
			return apperr.LockedWalletMismatch()
		}

		sourceBalance, err := s.repo.WalletBalance(txCtx, tx, source.ID, asset.ID)
		if err != nil {
			return err
		}
		if sourceBalance < req.Amount {
			failed, err := s.recordInsufficientFunds(txCtx, tx, record)
			if err != nil {
				return err
			}
			result = failed
			return nil
		}

		entries := []model.LedgerEntry{
			{ID: uuid.NewString(), TransactionID: record.ID, WalletID: source.ID,
				AssetTypeID: asset.ID, EntryType: model.EntryTypeDebit, Amount: req.Amount},
			{ID: uuid.NewString(), TransactionID: record.ID, WalletID: destination.ID,
				AssetTypeID: asset.ID, EntryType: model.EntryTypeCredit, Amount: req.Amount},
		}
		if err := s.repo.AppendLedgerEntries(txCtx, tx, entries); err != nil {
			return err
		}

		updates := make([]lockorder.UpdateResult, 0, len(locked))
		for _, w := range locked {
			count, err := s.repo.BumpWalletVersion(txCtx, tx, w.ID, w.Version)
			if err != nil {
				return err
			}
			updates = append(updates, lockorder.UpdateResult{WalletID: w.ID, UpdatedCount: count})
		}
		if err := lockorder.AssertOptimisticUpdates(updates); err != nil {
			return err
		}

		userBalance, err := s.repo.WalletBalance(txCtx, tx, userWallet.ID, asset.ID)
		if err != nil {
			return err
		}
		body, err := json.Marshal(mutationBody{
			TransactionID:  record.ID,
			IdempotencyKey: req.IdempotencyKey,
			Operation:      strings.ToLower(txType),
			UserID:         req.UserID,
			AssetCode:      assetCode,
			Amount:         decimal.NewFromInt(req.Amount).String(),
			Balance:        decimal.NewFromInt(userBalance).String(),
			FromWalletID:   source.ID,
			ToWalletID:     destination.ID,
			CreatedAt:      record.CreatedAt.UTC().Format(time.RFC3339),
		})
		if err != nil {
			return err
		}
		if err := s.repo.UpdateTransactionResult(txCtx, tx, record.ID,
			model.TxStatusPosted, 200, string(body), nil); err != nil {
			return err
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"transactionId": record.ID, "type": txType, "userId": req.UserID,
			"assetCode": assetCode, "amount": req.Amount,
		})
		evt := &model.OutboxEvent{
			Aggregate: "Transaction", AggregateID: record.ID,
			EventType: "TransactionPosted", Payload: string(payload),
		}
		if err := s.repo.CreateOutboxEvent(txCtx, tx, evt); err != nil {
			return err
		}

		result = &MutationResult{StatusCode: 200, Body: body}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.Set(ctx, req.IdempotencyKey, idemcache.Payload{
		Fingerprint: req.Fingerprint,
		StatusCode:  result.StatusCode,
		Body:        result.Body,
	})
	return result, nil
}

// replayExisting resolves a unique-violation on the idempotency key
// against the authoritative transactions row.
func (s *WalletService) replayExisting(ctx context.Context, tx *gorm.DB, req MutationRequest) (*MutationResult, error) {
	existing, err := s.repo.GetTransactionByKey(ctx, tx, req.IdempotencyKey)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.CodeIdempotencyStateLost, 500,
				"transaction for idempotency key disappeared")
		}
		return nil, err
	}
	if existing.RequestFingerprint != req.Fingerprint {
		return nil, apperr.IdempotencyKeyReused()
	}
	if existing.ResponseCode == nil {
		return nil, apperr.RequestInProgress()
	}
	return &MutationResult{
		StatusCode: *existing.ResponseCode,
		Body:       json.RawMessage(*existing.ResponseBody),
		Replayed:   true,
	}, nil
}

// recordInsufficientFunds persists the FAILED outcome so retries with the
// same key replay the same 409 instead of re-running the mutation.
func (s *WalletService) recordInsufficientFunds(ctx context.Context, tx *gorm.DB, record *model.Transaction) (*MutationResult, error) {
	ae := apperr.InsufficientFunds()
	body, err := json.Marshal(ae.Envelope())
	if err != nil {
		return nil, err
	}
	code := apperr.CodeInsufficientFunds
	if err := s.repo.UpdateTransactionResult(ctx, tx, record.ID,
		model.TxStatusFailed, ae.HTTPStatus, string(body), &code); err != nil {
		return nil, err
	}
	return &MutationResult{StatusCode: ae.HTTPStatus, Body: body}, nil
}

// GetBalance aggregates the user's per-asset balances, optionally
// filtered by asset code, sorted by assetCode ascending.
func (s *WalletService) GetBalance(ctx context.Context, userID string, assetCode *string) (*BalanceResult, error) {
	if _, err := s.repo.GetUserByID(ctx, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.UserNotFound(userID)
		}
		return nil, err
	}
	var filter *string
	if assetCode != nil && *assetCode != "" {
		upper := strings.ToUpper(*assetCode)
		filter = &upper
	}
	rows, err := s.repo.UserAssetBalances(ctx, userID, filter)
	if err != nil {
		return nil, err
	}
	if filter != nil && len(rows) == 0 {
		return nil, apperr.AssetWalletNotFound(*filter)
	}
	res := &BalanceResult{UserID: userID, Balances: make([]BalanceEntry, len(rows))}
	for i, row := range rows {
		res.Balances[i] = BalanceEntry{
			AssetCode: row.AssetCode,
			AssetName: row.AssetName,
			Balance:   decimal.NewFromInt(row.Balance).String(),
		}
	}
	return res, nil
}

// GetHistory fetches the user's recent transactions, newest first.
func (s *WalletService) GetHistory(ctx context.Context, userID string, limit int) ([]model.Transaction, error) {
	if _, err := s.repo.GetUserByID(ctx, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.UserNotFound(userID)
		}
		return nil, err
	}
	return s.repo.UserTransactions(ctx, userID, limit)
}

// Repo exposes underlying repository (unit tests helper).
func (s *WalletService) Repo() repo.RepositoryInterface {
	return s.repo
}
