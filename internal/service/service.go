package service

import (
	"context"
	"errors"

	"github.com/RoyceAzure/lab/storefront/internal/constants"
	"github.com/RoyceAzure/lab/storefront/internal/domain/model"
	"github.com/RoyceAzure/lab/storefront/internal/domain/repository"
	"github.com/RoyceAzure/lab/storefront/internal/pkg/apperr"
	"github.com/rs/zerolog/log"
)

// Notifier 交易 commit 後才呼叫, 失敗只記 log
type Notifier interface {
	OrderConfirmed(ctx context.Context, order *model.Order) error
	OrderShipped(ctx context.Context, order *model.Order) error
	OrderDelivered(ctx context.Context, order *model.Order) error
}

type NopNotifier struct{}

func (NopNotifier) OrderConfirmed(context.Context, *model.Order) error { return nil }
func (NopNotifier) OrderShipped(context.Context, *model.Order) error   { return nil }
func (NopNotifier) OrderDelivered(context.Context, *model.Order) error { return nil }

type Page[T any] struct {
	Items []T   `json:"items"`
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int64 `json:"pages"`
}

func newPage[T any](items []T, page, limit int, total int64) *Page[T] {
	pages := int64(0)
	if limit > 0 {
		pages = (total + int64(limit) - 1) / int64(limit)
	}
	return &Page[T]{Items: items, Page: page, Limit: limit, Total: total, Pages: pages}
}

func normalizePaging(page, pageSize, defaultSize int) (int, int) {
	if page < 1 {
		page = constants.DefaultPaging
	}
	if pageSize < 1 {
		pageSize = defaultSize
	}
	if pageSize > constants.MaxPagingSize {
		pageSize = constants.MaxPagingSize
	}
	return page, pageSize
}

// notFoundOr repository 查無資料轉成指定的業務錯誤, 其他錯誤原樣往上
func notFoundOr(err error, notFound *apperr.Error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return notFound
	}
	return err
}

// failure 業務錯誤原樣回傳, 其餘視為暫時性失敗
func failure(op string, err error) error {
	if _, ok := apperr.As(err); ok {
		return err
	}
	log.Error().Err(err).Msgf("%s failed", op)
	return apperr.Transient(err)
}
