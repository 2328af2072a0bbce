package memstore

import (
	"github.com/RoyceAzure/lab/storefront/internal/domain/model"
)

type state struct {
	products  map[string]model.Product
	cart      map[string]model.CartItem
	addresses map[string]model.Address
	coupons   map[string]model.Coupon
	usages    map[string]model.CouponUsage
	orders    map[string]*model.Order
	orderSeq  map[string]int64
	outbox    map[string]model.OutboxEvent
	seq       int64
}

func newState() *state {
	return &state{
		products:  map[string]model.Product{},
		cart:      map[string]model.CartItem{},
		addresses: map[string]model.Address{},
		coupons:   map[string]model.Coupon{},
		usages:    map[string]model.CouponUsage{},
		orders:    map[string]*model.Order{},
		orderSeq:  map[string]int64{},
		outbox:    map[string]model.OutboxEvent{},
	}
}

// clone 交易開始時複製一份, commit 才換回去
func (s *state) clone() *state {
	c := newState()
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.cart {
		c.cart[k] = v
	}
	for k, v := range s.addresses {
		c.addresses[k] = v
	}
	for k, v := range s.coupons {
		c.coupons[k] = v
	}
	for k, v := range s.usages {
		c.usages[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v.Clone()
	}
	for k, v := range s.orderSeq {
		c.orderSeq[k] = v
	}
	for k, v := range s.outbox {
		c.outbox[k] = v
	}
	c.seq = s.seq
	return c
}
