package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Stable machine codes surfaced in error payloads.
const (
	CodeValidation             = "VALIDATION_ERROR"
	CodeIdempotencyKeyMissing  = "IDEMPOTENCY_KEY_MISSING"
	CodeUserNotFound           = "USER_NOT_FOUND"
	CodeAssetTypeNotFound      = "ASSET_TYPE_NOT_FOUND"
	CodeUserWalletNotFound     = "USER_WALLET_NOT_FOUND"
	CodeAssetWalletNotFound    = "ASSET_WALLET_NOT_FOUND"
	CodeIdempotencyKeyReused   = "IDEMPOTENCY_KEY_REUSED_WITH_DIFFERENT_REQUEST"
	CodeRequestInProgress      = "REQUEST_ALREADY_IN_PROGRESS"
	CodeIdempotencyStateLost   = "IDEMPOTENCY_STATE_NOT_FOUND"
	CodeInsufficientFunds      = "INSUFFICIENT_FUNDS"
	CodeOptimisticLockConflict = "OPTIMISTIC_LOCK_CONFLICT"
	CodeLockedWalletMismatch   = "LOCKED_WALLET_MISMATCH"
	CodeLockNotAcquired        = "DISTRIBUTED_LOCK_NOT_ACQUIRED"
	CodeLockKeysMissing        = "LOCK_KEYS_MISSING"
	CodeTreasuryNotConfigured  = "TREASURY_WALLET_NOT_CONFIGURED"
	CodeIdemContextMissing     = "IDEMPOTENCY_CONTEXT_MISSING"
	CodeRateLimited            = "RATE_LIMIT_EXCEEDED"
	CodeInternal               = "INTERNAL_SERVER_ERROR"
	CodeRouteNotFound          = "ROUTE_NOT_FOUND"
)

// AppError carries a stable machine code and the HTTP status the boundary
// should render.
type AppError struct {
	Code       string
	HTTPStatus int
	Message    string
	Details    map[string]interface{}
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Envelope is the wire form the HTTP boundary renders.
func (e *AppError) Envelope() map[string]interface{} {
	inner := map[string]interface{}{"code": e.Code, "message": e.Message}
	if len(e.Details) > 0 {
		inner["details"] = e.Details
	}
	return map[string]interface{}{"error": inner}
}

// New builds an AppError.
func New(code string, status int, msg string) *AppError {
	return &AppError{Code: code, HTTPStatus: status, Message: msg}
}

// WithDetails attaches structured details to a copy of the error.
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

func Validation(msg string) *AppError {
	return New(CodeValidation, http.StatusBadRequest, msg)
}

func UserNotFound(userID string) *AppError {
	return New(CodeUserNotFound, http.StatusNotFound, "user not found").
		WithDetails(map[string]interface{}{"userId": userID})
}

func AssetTypeNotFound(code string) *AppError {
	return New(CodeAssetTypeNotFound, http.StatusNotFound, "asset type not found").
		WithDetails(map[string]interface{}{"assetCode": code})
}

func UserWalletNotFound(userID, assetCode string) *AppError {
	return New(CodeUserWalletNotFound, http.StatusNotFound, "user wallet not found").
		WithDetails(map[string]interface{}{"userId": userID, "assetCode": assetCode})
}

func AssetWalletNotFound(assetCode string) *AppError {
	return New(CodeAssetWalletNotFound, http.StatusNotFound, "no wallet for asset").
		WithDetails(map[string]interface{}{"assetCode": assetCode})
}

func IdempotencyKeyReused() *AppError {
	return New(CodeIdempotencyKeyReused, http.StatusConflict,
		"idempotency key was already used with a different request")
}

func RequestInProgress() *AppError {
	return New(CodeRequestInProgress, http.StatusConflict,
		"a request with this idempotency key is already in progress")
}

func InsufficientFunds() *AppError {
	return New(CodeInsufficientFunds, http.StatusConflict, "insufficient funds")
}

func OptimisticLockConflict(walletID string) *AppError {
	return New(CodeOptimisticLockConflict, http.StatusConflict, "wallet was modified concurrently").
		WithDetails(map[string]interface{}{"walletId": walletID})
}

func LockedWalletMismatch() *AppError {
	return New(CodeLockedWalletMismatch, http.StatusConflict,
		"could not lock the expected wallet rows")
}

func LockNotAcquired() *AppError {
	return New(CodeLockNotAcquired, http.StatusLocked,
		"could not acquire wallet lock, try again")
}

func LockKeysMissing() *AppError {
	return New(CodeLockKeysMissing, http.StatusBadRequest, "no wallet ids to lock")
}

func TreasuryNotConfigured(assetCode string) *AppError {
	return New(CodeTreasuryNotConfigured, http.StatusInternalServerError,
		"treasury wallet is not configured for asset").
		WithDetails(map[string]interface{}{"assetCode": assetCode})
}

func Internal(msg string) *AppError {
	return New(CodeInternal, http.StatusInternalServerError, msg)
}

// From maps any error to an AppError, defaulting to an internal error so
// the boundary never leaks raw failures.
func From(err error) *AppError {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae
	}
	return Internal("unexpected error")
}
