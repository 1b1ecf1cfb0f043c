package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/playcoin/wallet-service/internal/model"
)

// ErrDuplicateIdempotencyKey signals the unique index on
// transactions.idempotency_key rejected an insert.
var ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

// LockedWallet is the (id, version) pair observed under a row lock.
type LockedWallet struct {
	ID      string
	Version int64
}

// AssetBalance is one row of the grouped per-asset balance query.
type AssetBalance struct {
	AssetCode string
	AssetName string
	Balance   int64
}

// RepositoryInterface restricts Repo methods for unit-test mocks.
type RepositoryInterface interface {
	DB(ctx context.Context) *gorm.DB
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetAssetTypeByCode(ctx context.Context, code string) (*model.AssetType, error)
	GetUserWallet(ctx context.Context, userID, assetTypeID string) (*model.Wallet, error)
	GetSystemWallet(ctx context.Context, systemCode, assetTypeID string) (*model.Wallet, error)
	CreateTransaction(ctx context.Context, tx *gorm.DB, t *model.Transaction) error
	GetTransactionByKey(ctx context.Context, tx *gorm.DB, idemKey string) (*model.Transaction, error)
	LockWallets(ctx context.Context, tx *gorm.DB, ids []string) ([]LockedWallet, error)
	BumpWalletVersion(ctx context.Context, tx *gorm.DB, walletID string, version int64) (int64, error)
	AppendLedgerEntries(ctx context.Context, tx *gorm.DB, entries []model.LedgerEntry) error
	WalletBalance(ctx context.Context, tx *gorm.DB, walletID, assetTypeID string) (int64, error)
	UpdateTransactionResult(ctx context.Context, tx *gorm.DB, id, status string, respCode int, respBody string, errorCode *string) error
	UserAssetBalances(ctx context.Context, userID string, assetCode *string) ([]AssetBalance, error)
	UserTransactions(ctx context.Context, userID string, limit int) ([]model.Transaction, error)
	CreateOutboxEvent(ctx context.Context, tx *gorm.DB, evt *model.OutboxEvent) error
	PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	MarkOutboxProcessed(ctx context.Context, id uint64) error
	PublishEvent(ctx context.Context, evt model.OutboxEvent) error
}

// Repository implements RepositoryInterface on gorm + kafka.
type Repository struct {
	db     *gorm.DB
	writer *kafka.Writer
	log    *zap.SugaredLogger
}

// NewRepository constructs repo.
func NewRepository(db *gorm.DB, w *kafka.Writer, logger *zap.SugaredLogger) *Repository {
	return &Repository{db: db, writer: w, log: logger}
}

// DB returns underlying *gorm.DB.
func (r *Repository) DB(ctx context.Context) *gorm.DB { return r.db.WithContext(ctx) }

// GetUserByID loads a user.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetAssetTypeByCode loads an asset type by its unique code.
func (r *Repository) GetAssetTypeByCode(ctx context.Context, code string) (*model.AssetType, error) {
	var a model.AssetType
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// GetUserWallet loads the user's wallet for an asset.
func (r *Repository) GetUserWallet(ctx context.Context, userID, assetTypeID string) (*model.Wallet, error) {
	var w model.Wallet
	err := r.db.WithContext(ctx).
		Where("owner_type = ? AND user_id = ? AND asset_type_id = ?", model.OwnerTypeUser, userID, assetTypeID).
		First(&w).Error
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// GetSystemWallet loads a system wallet (TREASURY, ISSUANCE) for an asset.
func (r *Repository) GetSystemWallet(ctx context.Context, systemCode, assetTypeID string) (*model.Wallet, error) {
	var w model.Wallet
	err := r.db.WithContext(ctx).
		Where("owner_type = ? AND system_code = ? AND asset_type_id = ?", model.OwnerTypeSystem, systemCode, assetTypeID).
		First(&w).Error
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// CreateTransaction inserts the PROCESSING row that serialises competing
// requests on the idempotency key.
func (r *Repository) CreateTransaction(ctx context.Context, tx *gorm.DB, t *model.Transaction) error {
	if err := tx.WithContext(ctx).Create(t).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateIdempotencyKey
		}
		return err
	}
	return nil
}

// GetTransactionByKey loads the authoritative row for an idempotency key.
func (r *Repository) GetTransactionByKey(ctx context.Context, tx *gorm.DB, idemKey string) (*model.Transaction, error) {
	var t model.Transaction
	if err := tx.WithContext(ctx).Where("idempotency_key = ?", idemKey).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// LockWallets takes exclusive row locks on the given wallets, ordered by
// id ascending so every transaction acquires them in the same order.
func (r *Repository) LockWallets(ctx context.Context, tx *gorm.DB, ids []string) ([]LockedWallet, error) {
	var rows []model.Wallet
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).
		Order("id asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	locked := make([]LockedWallet, len(rows))
	for i, w := range rows {
		locked[i] = LockedWallet{ID: w.ID, Version: w.Version}
	}
	return locked, nil
}

// BumpWalletVersion runs the optimistic conditional update and reports
// how many rows it hit.
func (r *Repository) BumpWalletVersion(ctx context.Context, tx *gorm.DB, walletID string, version int64) (int64, error) {
	res := tx.WithContext(ctx).
		Model(&model.Wallet{}).
		Where("id = ? AND version = ?", walletID, version).
		Updates(map[string]interface{}{
			"version":    version + 1,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// AppendLedgerEntries inserts the posting legs in one batch.
func (r *Repository) AppendLedgerEntries(ctx context.Context, tx *gorm.DB, entries []model.LedgerEntry) error {
	return tx.WithContext(ctx).Create(&entries).Error
}

// WalletBalance derives a wallet's balance for one asset from the ledger.
func (r *Repository) WalletBalance(ctx context.Context, tx *gorm.DB, walletID, assetTypeID string) (int64, error) {
	var balance int64
	err := tx.WithContext(ctx).
		Model(&model.LedgerEntry{}).
		Select("COALESCE(SUM(CASE WHEN entry_type = ? THEN amount ELSE -amount END), 0)", model.EntryTypeCredit).
		Where("wallet_id = ? AND asset_type_id = ?", walletID, assetTypeID).
		Scan(&balance).Error
	return balance, err
}

// UpdateTransactionResult records the terminal status and response.
func (r *Repository) UpdateTransactionResult(ctx context.Context, tx *gorm.DB, id, status string, respCode int, respBody string, errorCode *string) error {
	updates := map[string]interface{}{
		"status":        status,
		"response_code": respCode,
		"response_body": respBody,
		"updated_at":    time.Now(),
	}
	if errorCode != nil {
		updates["error_code"] = *errorCode
	}
	return tx.WithContext(ctx).Model(&model.Transaction{}).Where("id = ?", id).Updates(updates).Error
}

// UserAssetBalances aggregates per-asset balances across all the user's
// wallets in one grouped query, sorted by asset code.
func (r *Repository) UserAssetBalances(ctx context.Context, userID string, assetCode *string) ([]AssetBalance, error) {
	q := r.db.WithContext(ctx).
		Table("wallets").
		Select("asset_types.code AS asset_code, asset_types.name AS asset_name, "+
			"COALESCE(SUM(CASE WHEN ledger_entries.entry_type = ? THEN ledger_entries.amount "+
			"WHEN ledger_entries.entry_type = ? THEN -ledger_entries.amount ELSE 0 END), 0) AS balance",
			model.EntryTypeCredit, model.EntryTypeDebit).
		Joins("JOIN asset_types ON asset_types.id = wallets.asset_type_id").
		Joins("LEFT JOIN ledger_entries ON ledger_entries.wallet_id = wallets.id").
		Where("wallets.owner_type = ? AND wallets.user_id = ?", model.OwnerTypeUser, userID).
		Group("asset_types.code, asset_types.name").
		Order("asset_types.code asc")
	if assetCode != nil {
		q = q.Where("asset_types.code = ?", *assetCode)
	}
	var rows []AssetBalance
	if err := q.Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// UserTransactions fetches the user's most recent transactions.
func (r *Repository) UserTransactions(ctx context.Context, userID string, limit int) ([]model.Transaction, error) {
	sub := r.db.Model(&model.Wallet{}).Select("id").
		Where("owner_type = ? AND user_id = ?", model.OwnerTypeUser, userID)
	var txs []model.Transaction
	err := r.db.WithContext(ctx).
		Where("source_wallet_id IN (?) OR destination_wallet_id IN (?)", sub, sub).
		Order("created_at desc").
		Limit(limit).
		Find(&txs).Error
	return txs, err
}

// CreateOutboxEvent writes event.
func (r *Repository) CreateOutboxEvent(ctx context.Context, tx *gorm.DB, evt *model.OutboxEvent) error {
	return tx.WithContext(ctx).Create(evt).Error
}

// PollOutbox pulls unprocessed events.
func (r *Repository) PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	var evts []model.OutboxEvent
	err := r.db.WithContext(ctx).Where("processed = false").Order("created_at").Limit(limit).Find(&evts).Error
	return evts, err
}

// MarkOutboxProcessed sets processed flag.
func (r *Repository) MarkOutboxProcessed(ctx context.Context, id uint64) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&model.OutboxEvent{}).Where("id = ?", id).
		Updates(map[string]interface{}{"processed": true, "processed_at": &now}).Error
}

// PublishEvent sends to Kafka.
func (r *Repository) PublishEvent(ctx context.Context, evt model.OutboxEvent) error {
	msg := kafka.Message{
		Key:   []byte(fmt.Sprintf("%d", evt.ID)),
		Value: []byte(evt.Payload),
		Time:  time.Now(),
	}
	return r.writer.WriteMessages(ctx, msg)
}
