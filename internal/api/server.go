package api

import "github.com/RoyceAzure/lab/storefront/internal/api/handler"

type Server struct {
	OrderHandler  *handler.OrderHandler
	CouponHandler *handler.CouponHandler
	HealthHandler *handler.HealthHandler
}

func NewServer(orderHandler *handler.OrderHandler, couponHandler *handler.CouponHandler, healthHandler *handler.HealthHandler) *Server {
	if healthHandler == nil {
		healthHandler = handler.NewHealthHandler(nil)
	}
	return &Server{
		OrderHandler:  orderHandler,
		CouponHandler: couponHandler,
		HealthHandler: healthHandler,
	}
}
