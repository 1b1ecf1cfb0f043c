package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/playcoin/wallet-service/internal/apperr"
)

func testLocker(client Client) *Locker {
	return NewLocker(client, 5*time.Second, 3, time.Millisecond, zap.NewNop().Sugar())
}

func TestAcquireRelease(t *testing.T) {
	client := NewMemoryClient()
	locker := testLocker(client)

	h, err := locker.AcquireWallets(context.Background(), []string{"w2", "w1"})
	assert.NoError(t, err)
	assert.True(t, client.Held("lock:wallet:w1"))
	assert.True(t, client.Held("lock:wallet:w2"))

	h.Release(context.Background())
	assert.False(t, client.Held("lock:wallet:w1"))
	assert.False(t, client.Held("lock:wallet:w2"))
}

func TestAcquireDeduplicatesWalletIDs(t *testing.T) {
	client := NewMemoryClient()
	locker := testLocker(client)

	h, err := locker.AcquireWallets(context.Background(), []string{"w1", "w1"})
	assert.NoError(t, err)
	defer h.Release(context.Background())
	assert.True(t, client.Held("lock:wallet:w1"))
}

func TestAcquireEmptySetFails(t *testing.T) {
	locker := testLocker(NewMemoryClient())
	_, err := locker.AcquireWallets(context.Background(), nil)
	var ae *apperr.AppError
	assert.True(t, errors.As(err, &ae))
	assert.Equal(t, apperr.CodeLockKeysMissing, ae.Code)
}

func TestAcquireContendedFailsAfterRetries(t *testing.T) {
	client := NewMemoryClient()
	locker := testLocker(client)

	held, err := locker.AcquireWallets(context.Background(), []string{"w1"})
	assert.NoError(t, err)

	_, err = locker.AcquireWallets(context.Background(), []string{"w1"})
	var ae *apperr.AppError
	assert.True(t, errors.As(err, &ae))
	assert.Equal(t, apperr.CodeLockNotAcquired, ae.Code)
	assert.Equal(t, 423, ae.HTTPStatus)

	held.Release(context.Background())
	retry, err := locker.AcquireWallets(context.Background(), []string{"w1"})
	assert.NoError(t, err)
	retry.Release(context.Background())
}

func TestPartialAcquisitionIsRolledBack(t *testing.T) {
	client := NewMemoryClient()
	locker := testLocker(client)

	// hold the second key in sorted order so acquisition fails midway
	blocker, err := locker.AcquireWallets(context.Background(), []string{"w2"})
	assert.NoError(t, err)

	_, err = locker.AcquireWallets(context.Background(), []string{"w1", "w2"})
	assert.Error(t, err)
	assert.False(t, client.Held("lock:wallet:w1"))
	assert.True(t, client.Held("lock:wallet:w2"))

	blocker.Release(context.Background())
}

func TestReleaseIsTokenScoped(t *testing.T) {
	client := NewMemoryClient()
	locker := testLocker(client)

	first, err := locker.AcquireWallets(context.Background(), []string{"w1"})
	assert.NoError(t, err)
	first.Release(context.Background())

	// another caller holds the key now; the stale handle must not free it
	second, err := locker.AcquireWallets(context.Background(), []string{"w1"})
	assert.NoError(t, err)
	first.Release(context.Background())
	assert.True(t, client.Held("lock:wallet:w1"))

	second.Release(context.Background())
	assert.False(t, client.Held("lock:wallet:w1"))
}
