package dto

type PlaceOrderRequest struct {
	AddressID     string `json:"addressId"`
	PaymentMethod string `json:"paymentMethod"`
	CouponCode    string `json:"couponCode"`
	Notes         string `json:"notes"`
}

// UpdateOrderStatusRequest action: confirm|process|ship|deliver|cancel|return|payment
type UpdateOrderStatusRequest struct {
	Action         string `json:"action"`
	TrackingNumber string `json:"trackingNumber"`
	PaymentStatus  string `json:"paymentStatus"`
}
