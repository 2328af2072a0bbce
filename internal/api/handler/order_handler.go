package handler

import (
	"net/http"
	"strings"

	"github.com/RoyceAzure/lab/storefront/internal/api/dto"
	"github.com/RoyceAzure/lab/storefront/internal/api/response"
	"github.com/RoyceAzure/lab/storefront/internal/domain/model"
	"github.com/RoyceAzure/lab/storefront/internal/service"
	"github.com/go-chi/chi/v5"
)

type OrderHandler struct {
	orderService service.IOrderService
}

func NewOrderHandler(orderService service.IOrderService) *OrderHandler {
	if orderService == nil {
		panic("orderService cannot be nil")
	}
	return &OrderHandler{orderService: orderService}
}

// PlaceOrder POST /orders
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	identity, err := caller(r)
	if err != nil {
		response.ErrorJSON(w, err)
		return
	}

	var req dto.PlaceOrderRequest
	if err := decodeBody(w, r, &req); err != nil {
		response.ErrorJSON(w, err)
		return
	}

	order, err := h.orderService.PlaceOrder(r.Context(), service.PlaceOrderInput{
		UserID:        identity.UserID,
		AddressID:     req.AddressID,
		PaymentMethod: model.PaymentMethod(strings.ToUpper(req.PaymentMethod)),
		CouponCode:    req.CouponCode,
		Notes:         req.Notes,
	})
	if err != nil {
		response.ErrorJSON(w, err)
		return
	}
	response.SuccessJSON(w, http.StatusCreated, order)
}

func listInput(r *http.Request) (service.ListOrdersInput, error) {
	page, err := queryInt(r, "page")
	if err != nil {
		return service.ListOrdersInput{}, err
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		return service.ListOrdersInput{}, err
	}
	return service.ListOrdersInput{
		Status:   model.OrderStatus(strings.ToUpper(r.URL.Query().Get("status"))),
		Page:     page,
		PageSize: limit,
	}, nil
}

// ListMyOrders GET /orders
func (h *OrderHandler) ListMyOrders(w http.ResponseWriter, r *http.Request) {
	identity, err := caller(r)
	if err != nil {
		response.ErrorJSON(w, err)
		return
	}
	in, err := listInput(r)
	if err != nil {
		response.ErrorJSON(w, err)
		return
	}

	page, err := h.orderService.ListOrders(r.Context(), identity.UserID, in)
	if err != nil {
		response.ErrorJSON(w, err)
		return
	}
	response.SuccessJSON(w, http.StatusOK, page)
}

// ListAllOrders GET /admin/orders
func (h *OrderHandler) ListAllOrders(w http.ResponseWriter, r *http.Request) {
	in, err := listInput(r)
	if err != nil {
		response.ErrorJSON(w, err)
		return
	}

	page, err := h.orderService.ListAllOrders(r.Context(), in)
	if err != nil {
		response.ErrorJSON(w, err)
		return
	}
	response.SuccessJSON(w, http.StatusOK, page)
}

// GetOrder GET /orders/{orderNumber}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	identity, err := caller(r)
	if err != nil {
		response.ErrorJSON(w, err)
		return
	}

	order, err := h.orderService.GetOrder(r.Context(), chi.URLParam(r, "orderNumber"), identity)
	if err != nil {
		response.ErrorJSON(w, err)
		return
	}
	response.SuccessJSON(w, http.StatusOK, order)
}

// CancelOrder POST /orders/{orderNumber}/cancel
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	identity, err := caller(r)
	if err != nil {
		response.ErrorJSON(w, err)
		return
	}

	order, err := h.orderService.CancelOrder(r.Context(), chi.URLParam(r, "orderNumber"), identity.UserID)
	if err != nil {
		response.ErrorJSON(w, err)
		return
	}
	response.SuccessJSON(w, http.StatusOK, order)
}

// UpdateStatus PATCH /orders/{orderNumber}/status, 只有管理員
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdateOrderStatusRequest
	if err := decodeBody(w, r, &req); err != nil {
		response.ErrorJSON(w, err)
		return
	}

	cmd, err := service.ParseOrderCommand(req.Action, req.TrackingNumber, req.PaymentStatus)
	if err != nil {
		response.ErrorJSON(w, err)
		return
	}

	order, err := h.orderService.UpdateStatus(r.Context(), chi.URLParam(r, "orderNumber"), cmd)
	if err != nil {
		response.ErrorJSON(w, err)
		return
	}
	response.SuccessJSON(w, http.StatusOK, order)
}
