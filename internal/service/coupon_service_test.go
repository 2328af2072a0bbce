package service

import (
	"context"
	"testing"
	"time"

	"github.com/RoyceAzure/lab/storefront/internal/domain/model"
	"github.com/RoyceAzure/lab/storefront/internal/pkg/apperr"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type CouponServiceTestSuite struct {
	suite.Suite
	fx      *shopFixture
	coupons *CouponService
	orders  *OrderService
}

func (s *CouponServiceTestSuite) SetupTest() {
	s.fx = newShopFixture(s.T(), 50)
	s.coupons = NewCouponService(s.fx.store, WithCouponClock(fixedClock))
	s.orders = NewOrderService(s.fx.store, nil, ShippingPolicy{FreeShippingThreshold: dec(5000), FlatFee: dec(50)}, WithOrderClock(fixedClock))
}

func TestCouponServiceSuite(t *testing.T) {
	suite.Run(t, new(CouponServiceTestSuite))
}

func (s *CouponServiceTestSuite) validate(code string, subtotal int64, userID string) (*CouponQuote, error) {
	return s.coupons.ValidateCoupon(context.Background(), code, dec(subtotal), userID)
}

func (s *CouponServiceTestSuite) TestValidatePercentageCappedByMaxDiscount() {
	s.fx.addCoupon(s.T(), &model.Coupon{Code: "HALF", DiscountType: model.DiscountTypePercentage, DiscountValue: dec(50), MaxDiscount: decPtr(1000), IsActive: true})

	quote, err := s.validate("HALF", 10000, s.fx.userID)
	require.NoError(s.T(), err)
	require.True(s.T(), dec(1000).Equal(quote.DiscountAmount), "折扣應被 maxDiscount 限制")
	require.Equal(s.T(), "HALF", quote.Coupon.Code)

	quote, err = s.validate("HALF", 1000, s.fx.userID)
	require.NoError(s.T(), err)
	require.True(s.T(), dec(500).Equal(quote.DiscountAmount))
}

func (s *CouponServiceTestSuite) TestValidatePercentageRoundsToPaise() {
	s.fx.addCoupon(s.T(), &model.Coupon{Code: "ODD", DiscountType: model.DiscountTypePercentage, DiscountValue: dec(15), IsActive: true})

	quote, err := s.coupons.ValidateCoupon(context.Background(), "ODD", decimal.RequireFromString("333.33"), "")
	require.NoError(s.T(), err)
	require.Equal(s.T(), "50", quote.DiscountAmount.String())
}

func (s *CouponServiceTestSuite) TestValidateFixedDiscountNotComparedToSubtotal() {
	s.fx.addCoupon(s.T(), &model.Coupon{Code: "FLAT700", DiscountType: model.DiscountTypeFixed, DiscountValue: dec(700), IsActive: true})

	quote, err := s.validate("flat700", 300, s.fx.userID)
	require.NoError(s.T(), err)
	require.True(s.T(), dec(700).Equal(quote.DiscountAmount))
}

func (s *CouponServiceTestSuite) TestValidateCodeIsCaseInsensitive() {
	s.fx.addCoupon(s.T(), &model.Coupon{Code: "DIWALI", DiscountType: model.DiscountTypeFixed, DiscountValue: dec(100), IsActive: true})

	for _, code := range []string{"diwali", " Diwali ", "DIWALI"} {
		_, err := s.validate(code, 1000, s.fx.userID)
		require.NoError(s.T(), err, code)
	}
}

func (s *CouponServiceTestSuite) TestValidateFailureKinds() {
	tests := []struct {
		name   string
		coupon *model.Coupon
		code   apperr.Code
	}{
		{
			name:   "停用",
			coupon: &model.Coupon{Code: "OFF", DiscountType: model.DiscountTypeFixed, DiscountValue: dec(10), IsActive: false},
			code:   apperr.CouponInactiveCode,
		},
		{
			name: "尚未生效",
			coupon: &model.Coupon{Code: "SOON", DiscountType: model.DiscountTypeFixed, DiscountValue: dec(10), IsActive: true,
				ValidFrom: testNow.Add(time.Hour), ValidTo: testNow.Add(48 * time.Hour)},
			code: apperr.CouponNotYetValidCode,
		},
		{
			name: "已過期",
			coupon: &model.Coupon{Code: "PAST", DiscountType: model.DiscountTypeFixed, DiscountValue: dec(10), IsActive: true,
				ValidFrom: testNow.Add(-48 * time.Hour), ValidTo: testNow.Add(-time.Second)},
			code: apperr.CouponExpiredCode,
		},
		{
			name: "總次數用完",
			coupon: &model.Coupon{Code: "GONE", DiscountType: model.DiscountTypeFixed, DiscountValue: dec(10), IsActive: true,
				UsageLimit: intPtr(5), UsageCount: 5},
			code: apperr.UsageLimitReachedCode,
		},
		{
			name: "未達最低金額",
			coupon: &model.Coupon{Code: "BIG", DiscountType: model.DiscountTypeFixed, DiscountValue: dec(10), IsActive: true,
				MinOrderAmount: decPtr(5000)},
			code: apperr.BelowMinimumOrderCode,
		},
		{
			name: "停用優先於過期",
			coupon: &model.Coupon{Code: "BOTH", DiscountType: model.DiscountTypeFixed, DiscountValue: dec(10), IsActive: false,
				ValidFrom: testNow.Add(-48 * time.Hour), ValidTo: testNow.Add(-time.Hour)},
			code: apperr.CouponInactiveCode,
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.fx.addCoupon(s.T(), tt.coupon)
			_, err := s.validate(tt.coupon.Code, 1000, s.fx.userID)
			requireCode(s.T(), err, tt.code)
		})
	}

	_, err := s.validate("NOPE", 1000, s.fx.userID)
	requireCode(s.T(), err, apperr.CouponNotFoundCode)

	_, err = s.validate("  ", 1000, s.fx.userID)
	requireCode(s.T(), err, apperr.InvalidArgumentCode)
}

func (s *CouponServiceTestSuite) TestBelowMinimumMessage() {
	s.fx.addCoupon(s.T(), &model.Coupon{Code: "MIN5K", DiscountType: model.DiscountTypeFixed, DiscountValue: dec(10), IsActive: true, MinOrderAmount: decPtr(5000)})

	_, err := s.validate("MIN5K", 4999, s.fx.userID)
	requireCode(s.T(), err, apperr.BelowMinimumOrderCode)
	require.Equal(s.T(), "Minimum order amount of Rs 5,000 required for this coupon", apperr.PublicMessage(err))

	_, err = s.validate("MIN5K", 5000, s.fx.userID)
	require.NoError(s.T(), err, "等於最低金額可以使用")
}

func (s *CouponServiceTestSuite) placeOrder(userID, addressID, coupon string) *model.Order {
	s.fx.addToCart(s.T(), userID, s.fx.product.ID, 1)
	order, err := s.orders.PlaceOrder(context.Background(), PlaceOrderInput{
		UserID: userID, AddressID: addressID, PaymentMethod: model.PaymentMethodCOD, CouponCode: coupon,
	})
	require.NoError(s.T(), err)
	return order
}

func (s *CouponServiceTestSuite) TestPerUserLimitAndAnonymousCaller() {
	s.fx.addCoupon(s.T(), &model.Coupon{Code: "ONCE", DiscountType: model.DiscountTypeFixed, DiscountValue: dec(100), IsActive: true})
	s.placeOrder(s.fx.userID, s.fx.address.ID, "ONCE")

	_, err := s.validate("ONCE", 1000, s.fx.userID)
	requireCode(s.T(), err, apperr.PerUserLimitReachedCode)

	_, err = s.validate("ONCE", 1000, "")
	require.NoError(s.T(), err, "匿名呼叫不檢查個人次數")

	_, err = s.validate("ONCE", 1000, "user-2")
	require.NoError(s.T(), err)
}

func (s *CouponServiceTestSuite) TestValidateHasNoSideEffects() {
	c := s.fx.addCoupon(s.T(), &model.Coupon{Code: "LOOK", DiscountType: model.DiscountTypeFixed, DiscountValue: dec(10), IsActive: true})
	for i := 0; i < 3; i++ {
		_, err := s.validate("LOOK", 1000, s.fx.userID)
		require.NoError(s.T(), err)
	}
	got, err := s.fx.store.GetCoupon(context.Background(), c.ID)
	require.NoError(s.T(), err)
	require.Zero(s.T(), got.UsageCount)
}

func (s *CouponServiceTestSuite) TestApplyCoupon() {
	ctx := context.Background()
	c := s.fx.addCoupon(s.T(), &model.Coupon{Code: "LATE", DiscountType: model.DiscountTypeFixed, DiscountValue: dec(10), IsActive: true, PerUserLimit: 5})
	order := s.placeOrder(s.fx.userID, s.fx.address.ID, "")

	_, err := s.coupons.ApplyCoupon(ctx, "user-2", "LATE", order.OrderNumber)
	requireCode(s.T(), err, apperr.UnauthorizedCode)
	_, err = s.coupons.ApplyCoupon(ctx, s.fx.userID, "LATE", "HOL-NONE-0000")
	requireCode(s.T(), err, apperr.OrderNotFoundCode)
	_, err = s.coupons.ApplyCoupon(ctx, s.fx.userID, "MISSING", order.OrderNumber)
	requireCode(s.T(), err, apperr.CouponNotFoundCode)

	applied, err := s.coupons.ApplyCoupon(ctx, s.fx.userID, "late", order.OrderNumber)
	require.NoError(s.T(), err)
	require.Equal(s.T(), "LATE", *applied.CouponCode)
	require.True(s.T(), dec(10).Equal(applied.Discount))
	require.True(s.T(), dec(540).Equal(applied.Total), "500 + 50 - 10")

	stored, err := s.fx.store.GetOrderByNumber(ctx, order.OrderNumber)
	require.NoError(s.T(), err)
	require.True(s.T(), dec(540).Equal(stored.Total))
	require.Equal(s.T(), "LATE", *stored.CouponCode)
	got, err := s.fx.store.GetCoupon(ctx, c.ID)
	require.NoError(s.T(), err)
	require.Equal(s.T(), 1, got.UsageCount)

	_, err = s.coupons.ApplyCoupon(ctx, s.fx.userID, "LATE", order.OrderNumber)
	requireCode(s.T(), err, apperr.CouponAlreadyAppliedCode)
}

func (s *CouponServiceTestSuite) TestApplyCouponRespectsUsageLimit() {
	ctx := context.Background()
	s.fx.addCoupon(s.T(), &model.Coupon{Code: "ONE", DiscountType: model.DiscountTypeFixed, DiscountValue: dec(10), IsActive: true, UsageLimit: intPtr(1), PerUserLimit: 5})
	first := s.placeOrder(s.fx.userID, s.fx.address.ID, "")
	second := s.placeOrder(s.fx.userID, s.fx.address.ID, "")

	_, err := s.coupons.ApplyCoupon(ctx, s.fx.userID, "ONE", first.OrderNumber)
	require.NoError(s.T(), err)
	_, err = s.coupons.ApplyCoupon(ctx, s.fx.userID, "ONE", second.OrderNumber)
	requireCode(s.T(), err, apperr.UsageLimitReachedCode)
}

// 補套優惠券與下單時套用的規則一致, 失敗時不留下任何使用紀錄
func (s *CouponServiceTestSuite) TestApplyCouponRulesMatchCheckout() {
	ctx := context.Background()
	s.fx.addCoupon(s.T(), &model.Coupon{Code: "OFF", DiscountType: model.DiscountTypeFixed, DiscountValue: dec(10), IsActive: false, PerUserLimit: 5})
	s.fx.addCoupon(s.T(), &model.Coupon{Code: "OLD", DiscountType: model.DiscountTypeFixed, DiscountValue: dec(10), IsActive: true,
		ValidFrom: testNow.Add(-48 * time.Hour), ValidTo: testNow.Add(-time.Hour)})
	s.fx.addCoupon(s.T(), &model.Coupon{Code: "BIG", DiscountType: model.DiscountTypeFixed, DiscountValue: dec(10), IsActive: true, MinOrderAmount: decPtr(2000)})
	huge := s.fx.addCoupon(s.T(), &model.Coupon{Code: "HUGE", DiscountType: model.DiscountTypeFixed, DiscountValue: dec(9999), IsActive: true})
	order := s.placeOrder(s.fx.userID, s.fx.address.ID, "")

	testCases := []struct {
		code string
		want apperr.Code
	}{
		{code: "OFF", want: apperr.CouponInactiveCode},
		{code: "OLD", want: apperr.CouponExpiredCode},
		{code: "BIG", want: apperr.BelowMinimumOrderCode},
	}
	for _, tc := range testCases {
		_, err := s.coupons.ApplyCoupon(ctx, s.fx.userID, tc.code, order.OrderNumber)
		requireCode(s.T(), err, tc.want)
	}
	has, err := s.fx.store.HasUsageForOrder(ctx, order.ID)
	require.NoError(s.T(), err)
	require.False(s.T(), has)

	// 固定面額超過應付金額時折到 0
	applied, err := s.coupons.ApplyCoupon(ctx, s.fx.userID, "HUGE", order.OrderNumber)
	require.NoError(s.T(), err)
	require.True(s.T(), dec(550).Equal(applied.Discount))
	require.True(s.T(), applied.Total.IsZero())
	got, err := s.fx.store.GetCoupon(ctx, huge.ID)
	require.NoError(s.T(), err)
	require.Equal(s.T(), 1, got.UsageCount)
}

func (s *CouponServiceTestSuite) TestApplyCouponRequiresOpenOrderWithoutCoupon() {
	ctx := context.Background()
	c := s.fx.addCoupon(s.T(), &model.Coupon{Code: "LATE", DiscountType: model.DiscountTypeFixed, DiscountValue: dec(10), IsActive: true, PerUserLimit: 5})
	s.fx.addCoupon(s.T(), &model.Coupon{Code: "FIRST", DiscountType: model.DiscountTypeFixed, DiscountValue: dec(20), IsActive: true, PerUserLimit: 5})

	cancelled := s.placeOrder(s.fx.userID, s.fx.address.ID, "")
	_, err := s.orders.CancelOrder(ctx, cancelled.OrderNumber, s.fx.userID)
	require.NoError(s.T(), err)
	_, err = s.coupons.ApplyCoupon(ctx, s.fx.userID, "LATE", cancelled.OrderNumber)
	requireCode(s.T(), err, apperr.InvalidStateTransitionCode)

	withCoupon := s.placeOrder(s.fx.userID, s.fx.address.ID, "FIRST")
	_, err = s.coupons.ApplyCoupon(ctx, s.fx.userID, "LATE", withCoupon.OrderNumber)
	requireCode(s.T(), err, apperr.CouponAlreadyAppliedCode)

	got, err := s.fx.store.GetCoupon(ctx, c.ID)
	require.NoError(s.T(), err)
	require.Zero(s.T(), got.UsageCount)
	stored, err := s.fx.store.GetOrderByNumber(ctx, withCoupon.OrderNumber)
	require.NoError(s.T(), err)
	require.Equal(s.T(), "FIRST", *stored.CouponCode)
	require.True(s.T(), dec(530).Equal(stored.Total))
}

func (s *CouponServiceTestSuite) TestCreateCouponDefaults() {
	validTo := testNow.Add(30 * 24 * time.Hour)
	c, err := s.coupons.CreateCoupon(context.Background(), CreateCouponInput{
		Code:          " holi25 ",
		DiscountValue: dec(25),
		ValidTo:       &validTo,
	})
	require.NoError(s.T(), err)
	require.Equal(s.T(), "HOLI25", c.Code)
	require.Equal(s.T(), model.DiscountTypePercentage, c.DiscountType)
	require.Equal(s.T(), 1, c.PerUserLimit)
	require.True(s.T(), c.IsActive)
	require.True(s.T(), testNow.Equal(c.ValidFrom))
	require.Zero(s.T(), c.UsageCount)

	_, err = s.coupons.CreateCoupon(context.Background(), CreateCouponInput{Code: "HOLI25", DiscountValue: dec(5), ValidTo: &validTo})
	requireCode(s.T(), err, apperr.CouponCodeExistsCode)
}

func (s *CouponServiceTestSuite) TestCreateCouponValidation() {
	ctx := context.Background()
	validTo := testNow.Add(time.Hour)
	past := testNow.Add(-time.Hour)

	_, err := s.coupons.CreateCoupon(ctx, CreateCouponInput{Code: "X", DiscountValue: dec(10)})
	requireCode(s.T(), err, apperr.InvalidArgumentCode)

	_, err = s.coupons.CreateCoupon(ctx, CreateCouponInput{Code: "X", DiscountValue: dec(120), ValidTo: &validTo})
	requireCode(s.T(), err, apperr.InvalidArgumentCode)

	_, err = s.coupons.CreateCoupon(ctx, CreateCouponInput{Code: "X", DiscountValue: dec(10), ValidTo: &past})
	requireCode(s.T(), err, apperr.InvalidArgumentCode)

	_, err = s.coupons.CreateCoupon(ctx, CreateCouponInput{Code: "X", DiscountType: "BOGO", DiscountValue: dec(10), ValidTo: &validTo})
	requireCode(s.T(), err, apperr.InvalidArgumentCode)
}

func (s *CouponServiceTestSuite) TestUpdateCoupon() {
	ctx := context.Background()
	c := s.fx.addCoupon(s.T(), &model.Coupon{Code: "EDIT", DiscountType: model.DiscountTypeFixed, DiscountValue: dec(10), IsActive: true})

	inactive := false
	value := dec(20)
	updated, err := s.coupons.UpdateCoupon(ctx, c.ID, UpdateCouponInput{IsActive: &inactive, DiscountValue: &value})
	require.NoError(s.T(), err)
	require.False(s.T(), updated.IsActive)
	require.True(s.T(), dec(20).Equal(updated.DiscountValue))
	require.Equal(s.T(), "EDIT", updated.Code)

	_, err = s.validate("EDIT", 1000, "")
	requireCode(s.T(), err, apperr.CouponInactiveCode)

	zero := 0
	_, err = s.coupons.UpdateCoupon(ctx, c.ID, UpdateCouponInput{PerUserLimit: &zero})
	requireCode(s.T(), err, apperr.InvalidArgumentCode)

	_, err = s.coupons.UpdateCoupon(ctx, "missing", UpdateCouponInput{IsActive: &inactive})
	requireCode(s.T(), err, apperr.CouponNotFoundCode)
}

func (s *CouponServiceTestSuite) TestUpdateCouponUsageLimitNotBelowUsage() {
	ctx := context.Background()
	c := s.fx.addCoupon(s.T(), &model.Coupon{Code: "POPULAR", DiscountType: model.DiscountTypeFixed, DiscountValue: dec(10), IsActive: true, PerUserLimit: 5})
	s.placeOrder(s.fx.userID, s.fx.address.ID, "POPULAR")
	s.placeOrder(s.fx.userID, s.fx.address.ID, "POPULAR")

	_, err := s.coupons.UpdateCoupon(ctx, c.ID, UpdateCouponInput{UsageLimit: intPtr(1)})
	requireCode(s.T(), err, apperr.InvalidArgumentCode)
	got, err := s.fx.store.GetCoupon(ctx, c.ID)
	require.NoError(s.T(), err)
	require.Nil(s.T(), got.UsageLimit)

	updated, err := s.coupons.UpdateCoupon(ctx, c.ID, UpdateCouponInput{UsageLimit: intPtr(2)})
	require.NoError(s.T(), err)
	require.Equal(s.T(), 2, *updated.UsageLimit)
	_, err = s.validate("POPULAR", 1000, "")
	requireCode(s.T(), err, apperr.UsageLimitReachedCode)
}

func (s *CouponServiceTestSuite) TestDeleteCoupon() {
	ctx := context.Background()
	unused := s.fx.addCoupon(s.T(), &model.Coupon{Code: "UNUSED", DiscountType: model.DiscountTypeFixed, DiscountValue: dec(10), IsActive: true})
	used := s.fx.addCoupon(s.T(), &model.Coupon{Code: "USED", DiscountType: model.DiscountTypeFixed, DiscountValue: dec(10), IsActive: true})
	s.placeOrder(s.fx.userID, s.fx.address.ID, "USED")

	err := s.coupons.DeleteCoupon(ctx, used.ID)
	requireCode(s.T(), err, apperr.CouponInUseCode)

	require.NoError(s.T(), s.coupons.DeleteCoupon(ctx, unused.ID))
	err = s.coupons.DeleteCoupon(ctx, unused.ID)
	requireCode(s.T(), err, apperr.CouponNotFoundCode)
}

func (s *CouponServiceTestSuite) TestListCoupons() {
	for _, code := range []string{"A1", "A2", "A3"} {
		s.fx.addCoupon(s.T(), &model.Coupon{Code: code, DiscountType: model.DiscountTypeFixed, DiscountValue: dec(10), IsActive: true})
	}
	page, err := s.coupons.ListCoupons(context.Background(), 2, 2)
	require.NoError(s.T(), err)
	require.EqualValues(s.T(), 3, page.Total)
	require.EqualValues(s.T(), 2, page.Pages)
	require.Len(s.T(), page.Items, 1)
}
