package response

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"

	"github.com/RoyceAzure/lab/storefront/internal/pkg/apperr"
	"github.com/rs/zerolog/log"
)

type Response struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

type ResponseError struct {
	Success bool      `json:"success"`
	Error   ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	ProductID string `json:"productId,omitempty"`
	Available *int   `json:"available,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}

func SuccessJSON(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Response{Success: true, Data: data})
}

// ErrorJSON 依錯誤種類決定 http status, 非業務錯誤一律回通用訊息
func ErrorJSON(w http.ResponseWriter, err error) {
	code := apperr.CodeOf(err)
	body := ErrorBody{
		Code:    code.String(),
		Message: apperr.PublicMessage(err),
	}

	if e, ok := apperr.As(err); ok {
		switch e.Code {
		case apperr.InsufficientStockCode:
			available := e.Available
			body.ProductID = e.ProductID
			body.Available = &available
		case apperr.RateLimitedCode:
			w.Header().Set("Retry-After", strconv.FormatInt(int64(math.Ceil(e.RetryAfter.Seconds())), 10))
		}
	}

	status := code.HTTPStatus()
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg("request failed")
	}
	writeJSON(w, status, ResponseError{Error: body})
}

func BadRequest(w http.ResponseWriter, msg string) {
	ErrorJSON(w, apperr.New(apperr.InvalidArgumentCode, msg))
}
