package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderStatus_CheckTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    OrderStatus
		to      OrderStatus
		wantErr bool
	}{
		{"pending to confirmed", OrderStatusPending, OrderStatusConfirmed, false},
		{"confirmed to delivered", OrderStatusConfirmed, OrderStatusDelivered, false},
		{"pending to delivered skip", OrderStatusPending, OrderStatusDelivered, false},
		{"same status", OrderStatusConfirmed, OrderStatusConfirmed, false},
		{"delivered back to pending", OrderStatusDelivered, OrderStatusPending, true},
		{"confirmed back to pending", OrderStatusConfirmed, OrderStatusPending, true},
		{"unknown target", OrderStatusPending, OrderStatus("cancelled"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.from.CheckTransition(tt.to)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidTransition))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestOrder_Assigned(t *testing.T) {
	empty := ""
	v := "배송차1"

	assert.False(t, (&Order{}).Assigned())
	assert.False(t, (&Order{DeliveryVehicle: &empty}).Assigned())
	assert.True(t, (&Order{DeliveryVehicle: &v}).Assigned())
	assert.Equal(t, "배송차1", (&Order{DeliveryVehicle: &v}).VehicleLabel())
}

func TestOrderItem_LineTotal(t *testing.T) {
	item := OrderItem{Price: 12000, Quantity: 3}
	assert.Equal(t, int64(36000), item.LineTotal())
}
