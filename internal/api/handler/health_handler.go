package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/RoyceAzure/lab/storefront/internal/api/response"
	"github.com/RoyceAzure/lab/storefront/internal/pkg/apperr"
)

type HealthChecker func(ctx context.Context) error

type HealthHandler struct {
	check HealthChecker
}

// NewHealthHandler check 為 nil 時只回報程序存活
func NewHealthHandler(check HealthChecker) *HealthHandler {
	return &HealthHandler{check: check}
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.check != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.check(ctx); err != nil {
			response.ErrorJSON(w, apperr.Transient(err))
			return
		}
	}
	response.SuccessJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
