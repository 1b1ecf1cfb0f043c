package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/playcoin/wallet-service/internal/config"
	"github.com/playcoin/wallet-service/internal/logger"
	"github.com/playcoin/wallet-service/internal/model"
)

// Operator-only bootstrap: asset types, the ISSUANCE and TREASURY system
// wallets, a demo user, and balanced funding postings. The runtime never
// touches ISSUANCE; it exists only so TREASURY starts funded without
// breaking per-asset conservation.
func main() {
	cfg, err := config.Load("internal/config/config.yaml")
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	log, err := logger.NewLogger()
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}
	if err := gdb.AutoMigrate(&model.User{}, &model.AssetType{}, &model.Wallet{},
		&model.Transaction{}, &model.LedgerEntry{}, &model.OutboxEvent{}); err != nil {
		log.Fatalf("auto-migrate: %v", err)
	}

	assets := []model.AssetType{
		{Code: "GOLD_COINS", Name: "Gold Coins"},
		{Code: "DIAMONDS", Name: "Diamonds"},
	}

	err = gdb.Transaction(func(tx *gorm.DB) error {
		alice := model.User{ID: uuid.NewString(), Email: "alice@example.com"}
		if err := tx.Where("email = ?", alice.Email).FirstOrCreate(&alice).Error; err != nil {
			return err
		}

		for i := range assets {
			asset := &assets[i]
			asset.ID = uuid.NewString()
			if err := tx.Where("code = ?", asset.Code).FirstOrCreate(asset).Error; err != nil {
				return err
			}

			issuance, err := systemWallet(tx, model.SystemCodeIssuance, asset.ID)
			if err != nil {
				return err
			}
			treasury, err := systemWallet(tx, model.SystemCodeTreasury, asset.ID)
			if err != nil {
				return err
			}
			wallet, err := userWallet(tx, alice.ID, asset.ID)
			if err != nil {
				return err
			}

			if err := post(tx, "seed:issuance:"+asset.Code, asset.ID,
				issuance, treasury, 1_000_000); err != nil {
				return err
			}
			if asset.Code == "GOLD_COINS" {
				if err := post(tx, "seed:alice:"+asset.Code, asset.ID,
					treasury, wallet, 1000); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		log.Fatalf("seed: %v", err)
	}
	log.Info("seed complete")
}

func systemWallet(tx *gorm.DB, systemCode, assetTypeID string) (*model.Wallet, error) {
	code := systemCode
	w := model.Wallet{
		ID:          uuid.NewString(),
		OwnerType:   model.OwnerTypeSystem,
		SystemCode:  &code,
		AssetTypeID: assetTypeID,
	}
	err := tx.Where("owner_type = ? AND system_code = ? AND asset_type_id = ?",
		model.OwnerTypeSystem, systemCode, assetTypeID).FirstOrCreate(&w).Error
	return &w, err
}

func userWallet(tx *gorm.DB, userID, assetTypeID string) (*model.Wallet, error) {
	uid := userID
	w := model.Wallet{
		ID:          uuid.NewString(),
		OwnerType:   model.OwnerTypeUser,
		UserID:      &uid,
		AssetTypeID: assetTypeID,
	}
	err := tx.Where("owner_type = ? AND user_id = ? AND asset_type_id = ?",
		model.OwnerTypeUser, userID, assetTypeID).FirstOrCreate(&w).Error
	return &w, err
}

// post writes one balanced double-entry posting and bumps both wallet
// versions, skipping keys that were already seeded.
func post(tx *gorm.DB, idemKey, assetTypeID string, source, destination *model.Wallet, amount int64) error {
	var existing model.Transaction
	err := tx.Where("idempotency_key = ?", idemKey).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	record := model.Transaction{
		ID:                  uuid.NewString(),
		IdempotencyKey:      idemKey,
		RequestFingerprint:  idemKey,
		Type:                model.TxTypeTopup,
		Status:              model.TxStatusPosted,
		Amount:              amount,
		AssetTypeID:         assetTypeID,
		SourceWalletID:      source.ID,
		DestinationWalletID: destination.ID,
	}
	body, err := json.Marshal(map[string]interface{}{
		"transactionId": record.ID, "seed": true, "amount": amount,
	})
	if err != nil {
		return err
	}
	code := 200
	bodyStr := string(body)
	record.ResponseCode = &code
	record.ResponseBody = &bodyStr
	if err := tx.Create(&record).Error; err != nil {
		return err
	}

	entries := []model.LedgerEntry{
		{ID: uuid.NewString(), TransactionID: record.ID, WalletID: source.ID,
			AssetTypeID: assetTypeID, EntryType: model.EntryTypeDebit, Amount: amount},
		{ID: uuid.NewString(), TransactionID: record.ID, WalletID: destination.ID,
			AssetTypeID: assetTypeID, EntryType: model.EntryTypeCredit, Amount: amount},
	}
	if err := tx.Create(&entries).Error; err != nil {
		return err
	}

	for _, id := range []string{source.ID, destination.ID} {
		if err := tx.Model(&model.Wallet{}).Where("id = ?", id).
			Update("version", gorm.Expr("version + 1")).Error; err != nil {
			return err
		}
	}
	return nil
}
