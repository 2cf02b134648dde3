package order

import (
	"errors"
	"testing"
	"time"

	"qrmenu-be/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(v float64) *float64 { return &v }

func validInput() CreateOrderInput {
	return CreateOrderInput{
		RestaurantID: "rest-1",
		TableNumber:  utils.StrPtr("T4"),
		DeliveryType: DeliveryDineIn,
		Items: []CreateItemInput{
			{MenuItemID: "menu-1", Quantity: 2, UnitPrice: 5},
			{MenuItemID: "menu-2", Quantity: 1, UnitPrice: 7.5},
		},
		TotalAmount: floatPtr(17.5),
	}
}

func TestValidateCreateInput(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		assert.NoError(t, validateCreateInput(validInput()))
	})

	cases := map[string]struct {
		mutate func(in *CreateOrderInput)
		field  string
	}{
		"MissingRestaurant": {func(in *CreateOrderInput) { in.RestaurantID = "  " }, "restaurantId"},
		"BadDeliveryType":   {func(in *CreateOrderInput) { in.DeliveryType = "drone" }, "deliveryType"},
		"NoItems":           {func(in *CreateOrderInput) { in.Items = nil }, "items"},
		"MissingMenuItem":   {func(in *CreateOrderInput) { in.Items[0].MenuItemID = "" }, "items.menuItemId"},
		"ZeroQuantity":      {func(in *CreateOrderInput) { in.Items[1].Quantity = 0 }, "items.quantity"},
		"NegativePrice":     {func(in *CreateOrderInput) { in.Items[0].UnitPrice = -1 }, "items.unitPrice"},
		"MissingTotal":      {func(in *CreateOrderInput) { in.TotalAmount = nil }, "totalAmount"},
		"NegativeTotal":     {func(in *CreateOrderInput) { in.TotalAmount = floatPtr(-3) }, "totalAmount"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			in := validInput()
			tc.mutate(&in)

			err := validateCreateInput(in)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve), "expected validation error, got %v", err)
			assert.Equal(t, tc.field, ve.Field)
		})
	}
}

func TestNewOrderFromInput(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

	t.Run("Defaults", func(t *testing.T) {
		o := newOrderFromInput(validInput(), "ORD-1", now)

		assert.NotEmpty(t, o.ID)
		assert.Equal(t, "ORD-1", o.OrderNumber)
		assert.Equal(t, StatusPending, o.Status)
		assert.Equal(t, 1, o.Version)
		assert.Equal(t, PaymentPending, o.PaymentStatus)
		assert.Equal(t, DefaultPaymentMethod, o.PaymentMethod)
		assert.Equal(t, now, o.CreatedAt)
		assert.Equal(t, now, o.UpdatedAt)
		assert.Equal(t, 17.5, o.TotalAmount)
		require.Len(t, o.Items, 2)
		assert.Equal(t, 10.0, o.Items[0].TotalPrice)
		assert.Equal(t, o.ID, o.Items[0].OrderID)
		assert.NotEqual(t, o.Items[0].ID, o.Items[1].ID)
	})

	t.Run("KeepsPaymentMethod", func(t *testing.T) {
		in := validInput()
		in.PaymentMethod = "card"
		o := newOrderFromInput(in, "ORD-2", now)
		assert.Equal(t, "card", o.PaymentMethod)
	})

	t.Run("DeclaredLineTotalKept", func(t *testing.T) {
		in := validInput()
		in.Items[0].TotalPrice = floatPtr(3)
		o := newOrderFromInput(in, "ORD-3", now)
		assert.Equal(t, 3.0, o.Items[0].TotalPrice)
	})
}

func TestReconcile(t *testing.T) {
	now := time.Now()

	t.Run("Matches", func(t *testing.T) {
		computed, ok := reconcile(newOrderFromInput(validInput(), "n", now))
		assert.True(t, ok)
		assert.InDelta(t, 17.5, computed, 0.0001)
	})

	t.Run("LineMismatch", func(t *testing.T) {
		in := validInput()
		in.Items[0].TotalPrice = floatPtr(1)
		_, ok := reconcile(newOrderFromInput(in, "n", now))
		assert.False(t, ok)
	})

	t.Run("TotalMismatch", func(t *testing.T) {
		in := validInput()
		in.TotalAmount = floatPtr(99)
		computed, ok := reconcile(newOrderFromInput(in, "n", now))
		assert.False(t, ok)
		assert.InDelta(t, 17.5, computed, 0.0001)
	})
}

func TestOrderClone(t *testing.T) {
	o := newOrderFromInput(validInput(), "n", time.Now())
	c := o.Clone()
	c.Items[0].Quantity = 99
	c.Status = StatusCancelled

	assert.Equal(t, 2, o.Items[0].Quantity)
	assert.Equal(t, StatusPending, o.Status)
	assert.Nil(t, (*Order)(nil).Clone())
}

func TestListFilterNormalized(t *testing.T) {
	f := ListFilter{}.normalized()
	assert.Equal(t, 50, f.Limit)
	assert.Equal(t, 1, f.Page)
	assert.Equal(t, 0, f.offset())

	f = ListFilter{Limit: 1000, Page: 3}.normalized()
	assert.Equal(t, 200, f.Limit)
	assert.Equal(t, 400, f.offset())
}
