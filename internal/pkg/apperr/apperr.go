package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

type Code int

const (
	InternalCode Code = iota + 1
	TransientCode
	InvalidArgumentCode
	UnauthenticatedCode
	UnauthorizedCode
	NotFoundCode
	AddressNotFoundCode
	OrderNotFoundCode
	ProductNotFoundCode
	CouponNotFoundCode
	EmptyCartCode
	InsufficientStockCode
	InvalidStateTransitionCode
	CouponInactiveCode
	CouponNotYetValidCode
	CouponExpiredCode
	UsageLimitReachedCode
	PerUserLimitReachedCode
	BelowMinimumOrderCode
	CouponInUseCode
	CouponAlreadyAppliedCode
	CouponCodeExistsCode
	RateLimitedCode
)

// 對外顯示的錯誤代碼
var ErrStrMap = map[Code]string{
	InternalCode:               "INTERNAL",
	TransientCode:              "TRANSIENT",
	InvalidArgumentCode:        "INVALID_ARGUMENT",
	UnauthenticatedCode:        "UNAUTHENTICATED",
	UnauthorizedCode:           "UNAUTHORIZED",
	NotFoundCode:               "NOT_FOUND",
	AddressNotFoundCode:        "ADDRESS_NOT_FOUND",
	OrderNotFoundCode:          "ORDER_NOT_FOUND",
	ProductNotFoundCode:        "PRODUCT_NOT_FOUND",
	CouponNotFoundCode:         "COUPON_NOT_FOUND",
	EmptyCartCode:              "EMPTY_CART",
	InsufficientStockCode:      "INSUFFICIENT_STOCK",
	InvalidStateTransitionCode: "INVALID_STATE_TRANSITION",
	CouponInactiveCode:         "COUPON_INACTIVE",
	CouponNotYetValidCode:      "COUPON_NOT_YET_VALID",
	CouponExpiredCode:          "COUPON_EXPIRED",
	UsageLimitReachedCode:      "USAGE_LIMIT_REACHED",
	PerUserLimitReachedCode:    "PER_USER_LIMIT_REACHED",
	BelowMinimumOrderCode:      "BELOW_MINIMUM_ORDER",
	CouponInUseCode:            "COUPON_IN_USE",
	CouponAlreadyAppliedCode:   "COUPON_ALREADY_APPLIED",
	CouponCodeExistsCode:       "COUPON_CODE_EXISTS",
	RateLimitedCode:            "RATE_LIMITED",
}

// 內部錯誤一律回這個訊息, 細節只寫 log
const GenericRetryMessage = "Something went wrong, please try again"

func (c Code) String() string {
	if s, ok := ErrStrMap[c]; ok {
		return s
	}
	return ErrStrMap[InternalCode]
}

func (c Code) HTTPStatus() int {
	switch c {
	case InvalidArgumentCode, EmptyCartCode, InsufficientStockCode,
		CouponInactiveCode, CouponNotYetValidCode, CouponExpiredCode,
		UsageLimitReachedCode, PerUserLimitReachedCode, BelowMinimumOrderCode:
		return http.StatusBadRequest
	case UnauthenticatedCode:
		return http.StatusUnauthorized
	case UnauthorizedCode:
		return http.StatusForbidden
	case NotFoundCode, AddressNotFoundCode, OrderNotFoundCode, ProductNotFoundCode, CouponNotFoundCode:
		return http.StatusNotFound
	case InvalidStateTransitionCode, CouponInUseCode, CouponAlreadyAppliedCode, CouponCodeExistsCode:
		return http.StatusConflict
	case RateLimitedCode:
		return http.StatusTooManyRequests
	case TransientCode:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error 業務錯誤, Message 可以直接顯示給使用者
type Error struct {
	Code       Code
	Message    string
	ProductID  string
	Available  int
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is 只比對 Code
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, msg string, err error) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// Transient 異動階段的失敗, 呼叫端可以重試
func Transient(err error) *Error {
	return &Error{Code: TransientCode, Message: GenericRetryMessage, Err: err}
}

func InsufficientStock(productID, productName string, available int) *Error {
	return &Error{
		Code:      InsufficientStockCode,
		Message:   fmt.Sprintf("%s only has %d items in stock", productName, available),
		ProductID: productID,
		Available: available,
	}
}

func RateLimited(msg string, retryAfter time.Duration) *Error {
	return &Error{Code: RateLimitedCode, Message: msg, RetryAfter: retryAfter}
}

// CodeOf 非 *Error 一律視為 InternalCode
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return InternalCode
}

func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// PublicMessage 內部錯誤不外流
func PublicMessage(err error) string {
	e, ok := As(err)
	if !ok || e.Code == InternalCode || e.Code == TransientCode {
		return GenericRetryMessage
	}
	return e.Message
}
