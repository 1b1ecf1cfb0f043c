package http

import (
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redismock/v8"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/playcoin/wallet-service/internal/config"
	"github.com/playcoin/wallet-service/internal/idemcache"
	"github.com/playcoin/wallet-service/internal/lock"
	"github.com/playcoin/wallet-service/internal/model"
	"github.com/playcoin/wallet-service/internal/repo"
	"github.com/playcoin/wallet-service/internal/service"
)

type testServer struct {
	router *gin.Engine
	userID string
}

func newTestServer(t *testing.T) *testServer {
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(&model.User{}, &model.AssetType{}, &model.Wallet{},
		&model.Transaction{}, &model.LedgerEntry{}, &model.OutboxEvent{}))

	log := zap.NewNop().Sugar()
	r := repo.NewRepository(db, &kafka.Writer{}, log)
	rdb, _ := redismock.NewClientMock()
	cache := idemcache.New(rdb, time.Hour, log)
	locker := lock.NewLocker(lock.NewMemoryClient(), 5*time.Second, 3, time.Millisecond, log)
	svc := service.NewWalletService(r, cache, locker, log)

	userID := uuid.NewString()
	assert.NoError(t, db.Create(&model.User{ID: userID, Email: "alice@example.com"}).Error)

	asset := model.AssetType{ID: uuid.NewString(), Code: "GOLD_COINS", Name: "Gold Coins"}
	assert.NoError(t, db.Create(&asset).Error)

	treasuryCode := model.SystemCodeTreasury
	treasury := model.Wallet{ID: uuid.NewString(), OwnerType: model.OwnerTypeSystem,
		SystemCode: &treasuryCode, AssetTypeID: asset.ID}
	assert.NoError(t, db.Create(&treasury).Error)

	wallet := model.Wallet{ID: uuid.NewString(), OwnerType: model.OwnerTypeUser,
		UserID: &userID, AssetTypeID: asset.ID}
	assert.NoError(t, db.Create(&wallet).Error)

	txID := uuid.NewString()
	entries := []model.LedgerEntry{
		{ID: uuid.NewString(), TransactionID: txID, WalletID: uuid.NewString(),
			AssetTypeID: asset.ID, EntryType: model.EntryTypeDebit, Amount: 1_000_000},
		{ID: uuid.NewString(), TransactionID: txID, WalletID: treasury.ID,
			AssetTypeID: asset.ID, EntryType: model.EntryTypeCredit, Amount: 1_000_000},
	}
	assert.NoError(t, db.Create(&entries).Error)

	healthy := func(context.Context) error { return nil }
	router := NewRouter(svc, config.RateLimitConfig{RPS: 1000, Burst: 1000}, log, healthy)
	return &testServer{router: router, userID: userID}
}

func (s *testServer) do(method, path, body, idemKey string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) topupBody(amount string) string {
	return fmt.Sprintf(`{"userId":%q,"assetCode":"GOLD_COINS","amount":%s}`, s.userID, amount)
}

func TestTopupEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := s.do("POST", "/wallet/topup", s.topupBody(`"250"`), "key-1")
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `"balance":"250"`)
	assert.Empty(t, rec.Header().Get("Idempotency-Replayed"))
}

func TestTopupEndpoint_ReplaySetsHeader(t *testing.T) {
	s := newTestServer(t)

	first := s.do("POST", "/wallet/topup", s.topupBody(`"100"`), "key-2")
	assert.Equal(t, 200, first.Code)

	second := s.do("POST", "/wallet/topup", s.topupBody(`"100"`), "key-2")
	assert.Equal(t, 200, second.Code)
	assert.Equal(t, "true", second.Header().Get("Idempotency-Replayed"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())
}

func TestTopupEndpoint_KeyReuseWithDifferentBody(t *testing.T) {
	s := newTestServer(t)

	rec := s.do("POST", "/wallet/topup", s.topupBody(`"100"`), "key-3")
	assert.Equal(t, 200, rec.Code)

	rec = s.do("POST", "/wallet/topup", s.topupBody(`"101"`), "key-3")
	assert.Equal(t, 409, rec.Code)
	assert.Contains(t, rec.Body.String(), "IDEMPOTENCY_KEY_REUSED_WITH_DIFFERENT_REQUEST")
}

func TestMutation_MissingIdempotencyKey(t *testing.T) {
	s := newTestServer(t)

	rec := s.do("POST", "/wallet/topup", s.topupBody(`"100"`), "")
	assert.Equal(t, 400, rec.Code)
	assert.Contains(t, rec.Body.String(), "IDEMPOTENCY_KEY_MISSING")
}

func TestMutation_AmountValidation(t *testing.T) {
	s := newTestServer(t)

	for i, amount := range []string{`"-5"`, `"0"`, `"1.5"`, `"abc"`} {
		key := fmt.Sprintf("key-amt-%d", i)
		rec := s.do("POST", "/wallet/topup", s.topupBody(amount), key)
		assert.Equal(t, 400, rec.Code, "amount %s", amount)
		assert.Contains(t, rec.Body.String(), "VALIDATION_ERROR")
	}
}

func TestMutation_NumericAmountAccepted(t *testing.T) {
	s := newTestServer(t)

	rec := s.do("POST", "/wallet/topup", s.topupBody(`42`), "key-num")
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `"amount":"42"`)
}

func TestSpendEndpoint_InsufficientFunds(t *testing.T) {
	s := newTestServer(t)

	body := fmt.Sprintf(`{"userId":%q,"assetCode":"GOLD_COINS","amount":"10"}`, s.userID)
	rec := s.do("POST", "/wallet/spend", body, "key-spend")
	assert.Equal(t, 409, rec.Code)
	assert.Contains(t, rec.Body.String(), "INSUFFICIENT_FUNDS")
}

func TestBalanceEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := s.do("POST", "/wallet/topup", s.topupBody(`"77"`), "key-bal")
	assert.Equal(t, 200, rec.Code)

	rec = s.do("GET", "/wallet/"+s.userID+"/balance", "", "")
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `"assetCode":"GOLD_COINS"`)
	assert.Contains(t, rec.Body.String(), `"balance":"77"`)
}

func TestBalanceEndpoint_UnknownUser(t *testing.T) {
	s := newTestServer(t)

	rec := s.do("GET", "/wallet/"+uuid.NewString()+"/balance", "", "")
	assert.Equal(t, 404, rec.Code)
	assert.Contains(t, rec.Body.String(), "USER_NOT_FOUND")
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t)

	rec := s.do("GET", "/nope", "", "")
	assert.Equal(t, 404, rec.Code)
	assert.Contains(t, rec.Body.String(), "ROUTE_NOT_FOUND")
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)

	rec := s.do("GET", "/healthz", "", "")
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}
