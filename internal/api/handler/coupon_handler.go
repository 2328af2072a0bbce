package handler

import (
	"net/http"
	"strings"

	"github.com/RoyceAzure/lab/storefront/internal/api/dto"
	"github.com/RoyceAzure/lab/storefront/internal/api/response"
	"github.com/RoyceAzure/lab/storefront/internal/domain/model"
	"github.com/RoyceAzure/lab/storefront/internal/service"
	"github.com/RoyceAzure/lab/storefront/internal/util"
	"github.com/go-chi/chi/v5"
)

type CouponHandler struct {
	couponService service.ICouponService
}

func NewCouponHandler(couponService service.ICouponService) *CouponHandler {
	if couponService == nil {
		panic("couponService cannot be nil")
	}
	return &CouponHandler{couponService: couponService}
}

// ValidateCoupon POST /coupons/validate, 匿名也可以試算
func (h *CouponHandler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	var req dto.ValidateCouponRequest
	if err := decodeBody(w, r, &req); err != nil {
		response.ErrorJSON(w, err)
		return
	}
	if req.Subtotal.IsNegative() {
		response.BadRequest(w, "subtotal cannot be negative")
		return
	}

	var userID string
	if identity, ok := util.GetIdentityFromContext(r.Context()); ok {
		userID = identity.UserID
	}

	quote, err := h.couponService.ValidateCoupon(r.Context(), req.Code, req.Subtotal, userID)
	if err != nil {
		response.ErrorJSON(w, err)
		return
	}
	response.SuccessJSON(w, http.StatusOK, quote)
}

// ApplyCoupon POST /coupons/apply
func (h *CouponHandler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	identity, err := caller(r)
	if err != nil {
		response.ErrorJSON(w, err)
		return
	}

	var req dto.ApplyCouponRequest
	if err := decodeBody(w, r, &req); err != nil {
		response.ErrorJSON(w, err)
		return
	}

	order, err := h.couponService.ApplyCoupon(r.Context(), identity.UserID, req.Code, req.OrderNumber)
	if err != nil {
		response.ErrorJSON(w, err)
		return
	}
	response.SuccessJSON(w, http.StatusOK, dto.ApplyCouponResponse{
		Code:        *order.CouponCode,
		OrderNumber: order.OrderNumber,
		Discount:    order.Discount,
		Total:       order.Total,
	})
}

// ListCoupons GET /admin/coupons
func (h *CouponHandler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page")
	if err != nil {
		response.ErrorJSON(w, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		response.ErrorJSON(w, err)
		return
	}

	coupons, err := h.couponService.ListCoupons(r.Context(), page, limit)
	if err != nil {
		response.ErrorJSON(w, err)
		return
	}
	response.SuccessJSON(w, http.StatusOK, coupons)
}

// CreateCoupon POST /admin/coupons
func (h *CouponHandler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateCouponRequest
	if err := decodeBody(w, r, &req); err != nil {
		response.ErrorJSON(w, err)
		return
	}

	coupon, err := h.couponService.CreateCoupon(r.Context(), service.CreateCouponInput{
		Code:           req.Code,
		Description:    req.Description,
		DiscountType:   model.DiscountType(strings.ToUpper(req.DiscountType)),
		DiscountValue:  req.DiscountValue,
		MinOrderAmount: req.MinOrderAmount,
		MaxDiscount:    req.MaxDiscount,
		UsageLimit:     req.UsageLimit,
		PerUserLimit:   req.PerUserLimit,
		IsActive:       req.IsActive,
		ValidFrom:      req.ValidFrom,
		ValidTo:        req.ValidTo,
	})
	if err != nil {
		response.ErrorJSON(w, err)
		return
	}
	response.SuccessJSON(w, http.StatusCreated, coupon)
}

// UpdateCoupon PUT /admin/coupons/{id}
func (h *CouponHandler) UpdateCoupon(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdateCouponRequest
	if err := decodeBody(w, r, &req); err != nil {
		response.ErrorJSON(w, err)
		return
	}

	in := service.UpdateCouponInput{
		Description:    req.Description,
		DiscountValue:  req.DiscountValue,
		MinOrderAmount: req.MinOrderAmount,
		MaxDiscount:    req.MaxDiscount,
		UsageLimit:     req.UsageLimit,
		PerUserLimit:   req.PerUserLimit,
		IsActive:       req.IsActive,
		ValidFrom:      req.ValidFrom,
		ValidTo:        req.ValidTo,
	}
	if req.DiscountType != nil {
		t := model.DiscountType(strings.ToUpper(*req.DiscountType))
		in.DiscountType = &t
	}

	coupon, err := h.couponService.UpdateCoupon(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		response.ErrorJSON(w, err)
		return
	}
	response.SuccessJSON(w, http.StatusOK, coupon)
}

// DeleteCoupon DELETE /admin/coupons/{id}
func (h *CouponHandler) DeleteCoupon(w http.ResponseWriter, r *http.Request) {
	if err := h.couponService.DeleteCoupon(r.Context(), chi.URLParam(r, "id")); err != nil {
		response.ErrorJSON(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
