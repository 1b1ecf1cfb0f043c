package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/playcoin/wallet-service/internal/apperr"
	"github.com/playcoin/wallet-service/internal/service"
)

func RegisterHandlers(r *gin.Engine, svc *service.WalletService) {
	mutations := r.Group("/wallet", IdempotencyMiddleware())
	{
		mutations.POST("/topup", mutationHandler(svc.Topup))
		mutations.POST("/bonus", mutationHandler(svc.Bonus))
		mutations.POST("/spend", mutationHandler(svc.Spend))
	}
	r.GET("/wallet/:userId/balance", balanceHandler(svc))
	r.GET("/wallet/:userId/transactions", historyHandler(svc))
}

type mutationReq struct {
	UserID    string          `json:"userId" binding:"required,uuid"`
	AssetCode string          `json:"assetCode" binding:"required,max=50"`
	Amount    json.RawMessage `json:"amount" binding:"required"`
}

var maxInt64 = decimal.NewFromInt(1<<63 - 1)

// parseAmount accepts a JSON string or number holding a positive
// integer that fits int64.
func parseAmount(raw json.RawMessage) (int64, error) {
	literal := string(raw)
	var quoted string
	if err := json.Unmarshal(raw, &quoted); err == nil {
		literal = quoted
	}
	d, err := decimal.NewFromString(literal)
	if err != nil {
		return 0, apperr.Validation("amount must be a decimal integer")
	}
	if !d.IsInteger() || d.Sign() <= 0 {
		return 0, apperr.Validation("amount must be a positive integer")
	}
	if d.GreaterThan(maxInt64) {
		return 0, apperr.Validation("amount out of range")
	}
	return d.IntPart(), nil
}

func mutationHandler(op func(context.Context, service.MutationRequest) (*service.MutationResult, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req mutationReq
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, apperr.Validation(err.Error()))
			return
		}
		amount, err := parseAmount(req.Amount)
		if err != nil {
			respondError(c, err)
			return
		}
		key, fp := c.GetString(ctxIdempotencyKey), c.GetString(ctxFingerprint)
		if key == "" || fp == "" {
			respondError(c, apperr.New(apperr.CodeIdemContextMissing,
				http.StatusInternalServerError, "idempotency context was not established"))
			return
		}
		res, err := op(c.Request.Context(), service.MutationRequest{
			UserID:         req.UserID,
			AssetCode:      req.AssetCode,
			Amount:         amount,
			IdempotencyKey: key,
			Fingerprint:    fp,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		if res.Replayed {
			c.Header("Idempotency-Replayed", "true")
		}
		c.Data(res.StatusCode, "application/json", res.Body)
	}
}

func balanceHandler(svc *service.WalletService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var assetCode *string
		if code := c.Query("assetCode"); code != "" {
			assetCode = &code
		}
		res, err := svc.GetBalance(c.Request.Context(), c.Param("userId"), assetCode)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

func historyHandler(svc *service.WalletService) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
		if err != nil || limit <= 0 {
			respondError(c, apperr.Validation("invalid limit"))
			return
		}
		txs, err := svc.GetHistory(c.Request.Context(), c.Param("userId"), limit)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, txs)
	}
}
