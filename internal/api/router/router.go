package router

import (
	"net/http"

	"github.com/RoyceAzure/lab/storefront/internal/api"
	m "github.com/RoyceAzure/lab/storefront/internal/api/middleware"
	"github.com/RoyceAzure/lab/storefront/internal/auth"
	"github.com/RoyceAzure/lab/storefront/internal/constants"
	"github.com/RoyceAzure/lab/storefront/internal/ratelimit"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

/*
限流掛載
general: 全部路由
api: /api/v1
auth: 優惠券試算與套用, 防止猜碼
*/
func SetupRouter(server *api.Server, tokenMaker auth.Maker, limiters *ratelimit.Registry, logger *zerolog.Logger) *chi.Mux {
	r := chi.NewRouter()

	// 全局中間件
	r.Use(m.RequestIdMiddleware)
	r.Use(middleware.RealIP)
	r.Use(m.LoggerMiddleware(logger))
	r.Use(ratelimit.Middleware(limiters.MustGet(constants.LimiterGeneral), nil))

	r.Get("/healthz", server.HealthHandler.Healthz)

	authenticate := m.Authenticate(tokenMaker)
	authLimit := ratelimit.Middleware(limiters.MustGet(constants.LimiterAuth), nil)

	// API 路由
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(ratelimit.Middleware(limiters.MustGet(constants.LimiterAPI), nil))

		r.Route("/orders", func(r chi.Router) {
			r.Use(authenticate)
			r.Post("/", server.OrderHandler.PlaceOrder)
			r.Get("/", server.OrderHandler.ListMyOrders)
			r.Get("/{orderNumber}", server.OrderHandler.GetOrder)
			r.Post("/{orderNumber}/cancel", server.OrderHandler.CancelOrder)
			r.With(m.RequireAdmin).Patch("/{orderNumber}/status", server.OrderHandler.UpdateStatus)
		})

		r.Route("/coupons", func(r chi.Router) {
			r.Use(authLimit)
			r.With(m.OptionalAuth(tokenMaker)).Post("/validate", server.CouponHandler.ValidateCoupon)
			r.With(authenticate).Post("/apply", server.CouponHandler.ApplyCoupon)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(authenticate, m.RequireAdmin)
			r.Get("/orders", server.OrderHandler.ListAllOrders)
			r.Route("/coupons", func(r chi.Router) {
				r.Get("/", server.CouponHandler.ListCoupons)
				r.Post("/", server.CouponHandler.CreateCoupon)
				r.Put("/{id}", server.CouponHandler.UpdateCoupon)
				r.Delete("/{id}", server.CouponHandler.DeleteCoupon)
			})
		})
	})

	if logger != nil {
		_ = chi.Walk(r, func(method string, route string, handler http.Handler, middlewares ...func(http.Handler) http.Handler) error {
			logger.Debug().Str("method", method).Str("route", route).Msg("route registered")
			return nil
		})
	}
	return r
}
