package db

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPing(t *testing.T) {
	require.NoError(t, testStore.Ping(context.Background()))
}

func TestListOrders(t *testing.T) {
	orders, err := testStore.ListOrders(context.Background())
	require.NoError(t, err)

	for _, order := range orders {
		require.NotEmpty(t, order.ID)
		require.NotZero(t, order.Merchant.Lat)
		require.NotZero(t, order.Customer.Lat)
	}
}

func TestGetOrderNotFound(t *testing.T) {
	_, err := testStore.GetOrder(context.Background(), "no-such-order")
	require.True(t, errors.Is(err, ErrOrderNotFound))
}

func TestListRiders(t *testing.T) {
	riders, err := testStore.ListRiders(context.Background())
	require.NoError(t, err)

	for _, rider := range riders {
		require.NotEmpty(t, rider.ID)
		require.NotEmpty(t, rider.Name)
	}
}
