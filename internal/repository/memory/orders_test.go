package memory

import (
	"context"
	"errors"
	"testing"
	"time"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/coolpis/internal/models"
	"github.com/example/coolpis/internal/repository"
)

func strPtr(s string) *string { return &s }

func TestOrderStore_TransactionRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderStore().Repository()

	require.NoError(t, repo.Create(ctx, &models.Order{BaseModel: models.BaseModel{ID: "o1"}, Status: models.OrderStatusPending}))

	boom := errors.New("boom")
	err := repo.Transaction(ctx, func(tx repository.OrderRepository) error {
		require.NoError(t, tx.SetDispatch(ctx, "o1", strPtr("배송차1"), 1))
		got, err := tx.FindByID(ctx, "o1")
		require.NoError(t, err)
		assert.Equal(t, "배송차1", got.VehicleLabel())
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := repo.FindByID(ctx, "o1")
	require.NoError(t, err)
	assert.Nil(t, got.DeliveryVehicle)
	assert.Equal(t, 0, got.DeliverySequence)
}

func TestOrderStore_TransactionCommits(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderStore().Repository()
	require.NoError(t, repo.Create(ctx, &models.Order{BaseModel: models.BaseModel{ID: "o1"}}))
	require.NoError(t, repo.Create(ctx, &models.Order{BaseModel: models.BaseModel{ID: "o2"}}))

	err := repo.Transaction(ctx, func(tx repository.OrderRepository) error {
		if err := tx.SetDispatch(ctx, "o1", strPtr("A"), 2); err != nil {
			return err
		}
		return tx.SetDispatch(ctx, "o2", strPtr("A"), 1)
	})
	require.NoError(t, err)

	orders, err := repo.ListByVehicle(ctx, "A")
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "o2", orders[0].ID)
	assert.Equal(t, "o1", orders[1].ID)

	vehicles, err := repo.Vehicles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, vehicles)
}

func TestOrderStore_ListFiltersAndOrder(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderStore().Repository()
	base := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(ctx, &models.Order{BaseModel: models.BaseModel{ID: "old", CreatedAt: base}, UID: "u1", Status: models.OrderStatusPending}))
	require.NoError(t, repo.Create(ctx, &models.Order{BaseModel: models.BaseModel{ID: "new", CreatedAt: base.Add(time.Hour)}, UID: "u1", Status: models.OrderStatusDelivered}))
	require.NoError(t, repo.Create(ctx, &models.Order{BaseModel: models.BaseModel{ID: "other", CreatedAt: base}, UID: "u2", Status: models.OrderStatusPending}))

	mine, err := repo.List(ctx, repository.OrderFilter{UID: "u1"})
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "new", mine[0].ID)

	open, err := repo.List(ctx, repository.OrderFilter{ExcludeDelivered: true, UnassignedOnly: true})
	require.NoError(t, err)
	assert.Len(t, open, 2)

	n, err := repo.Count(ctx, repository.OrderFilter{Status: models.OrderStatusPending, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestOrderStore_DeleteThenFind(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderStore().Repository()
	require.NoError(t, repo.Create(ctx, &models.Order{BaseModel: models.BaseModel{ID: "o1"}}))
	require.NoError(t, repo.Delete(ctx, "o1"))

	_, err := repo.FindByID(ctx, "o1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, "o1"), repository.ErrNotFound)
}

func TestOrderStore_UpdateKeepsKeyWhenCallerBufferIsReused(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderStore().Repository()
	require.NoError(t, repo.Create(ctx, &models.Order{BaseModel: models.BaseModel{ID: "order-0001"}, Status: models.OrderStatusConfirmed}))

	// Request routers hand out ids backed by buffers they later reuse.
	buf := []byte("order-0001")
	id := unsafe.String(&buf[0], len(buf))
	require.NoError(t, repo.UpdateStatus(ctx, id, models.OrderStatusDelivered))
	require.NoError(t, repo.SetDispatch(ctx, id, strPtr("A"), 1))
	copy(buf, "xxxxxxxxxx")

	got, err := repo.FindByID(ctx, "order-0001")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusDelivered, got.Status)
	assert.Equal(t, "order-0001", got.ID)

	require.NoError(t, repo.Delete(ctx, "order-0001"))
	_, err = repo.FindByID(ctx, "order-0001")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
