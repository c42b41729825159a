package catalog

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/pickup-orders/pkg/db"
	"github.com/angelmondragon/pickup-orders/pkg/db/dbtest"
	"github.com/angelmondragon/pickup-orders/pkg/db/models"
)

func TestGetItemsReturnsOnlyRequested(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)

	outletID := uuid.New()
	a := models.MenuItem{ID: uuid.New(), OutletID: outletID, Name: "Masala Dosa", PriceMinor: 14900, IsAvailable: true}
	b := models.MenuItem{ID: uuid.New(), OutletID: outletID, Name: "Filter Coffee", PriceMinor: 4000, IsAvailable: false}
	c := models.MenuItem{ID: uuid.New(), OutletID: outletID, Name: "Vada", PriceMinor: 6000, IsAvailable: true}
	require.NoError(t, conn.Create(&[]models.MenuItem{a, b, c}).Error)

	items, err := repo.GetItems(context.Background(), []uuid.UUID{a.ID, b.ID, uuid.New()})
	require.NoError(t, err)
	require.Len(t, items, 2)

	byID := map[uuid.UUID]models.MenuItem{}
	for _, item := range items {
		byID[item.ID] = item
	}
	assert.Equal(t, int64(14900), byID[a.ID].PriceMinor)
	assert.False(t, byID[b.ID].IsAvailable)
}

func TestGetItemsEmptyInput(t *testing.T) {
	items, err := NewRepository(dbtest.Open(t)).GetItems(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestGetOutletNotFound(t *testing.T) {
	_, err := NewRepository(dbtest.Open(t)).GetOutlet(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, db.IsNotFound(err))
}
