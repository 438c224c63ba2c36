package persistence

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/littleloop/backend/internal/domain/order"
	"github.com/littleloop/backend/internal/domain/retailer"
	"github.com/littleloop/backend/internal/domain/shared"
	"github.com/littleloop/backend/internal/domain/shared/valueobject"
	"github.com/littleloop/backend/internal/infrastructure/persistence/models"
)

func setupTransactionTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&models.ReorderTransactionModel{},
		&models.OrderLineItemModel{},
		&models.OrderStatusUpdateModel{},
	)
	require.NoError(t, err)

	return db
}

func newTestTransaction(t *testing.T) *order.Transaction {
	t.Helper()
	txID := uuid.New()
	item, err := order.NewLineItem(txID, "B0TEST1", "Pampers Swaddlers Size 4, 144 Count", 1, decimal.RequireFromString("54.99"))
	require.NoError(t, err)

	addr, err := valueobject.NewAddress("123 Main St", "Toronto", "ON", "M5V 1A1", "CA")
	require.NoError(t, err)

	tx, err := order.NewTransaction(
		uuid.New(), uuid.New(), retailer.CodeAmazon,
		[]order.LineItem{*item},
		decimal.Zero, decimal.RequireFromString("7.15"), addr,
	)
	require.NoError(t, err)
	return tx
}

func TestTransactionRepository_SaveAndFind(t *testing.T) {
	db := setupTransactionTestDB(t)
	repo := NewGormTransactionRepository(db)
	ctx := context.Background()

	tx := newTestTransaction(t)
	require.NoError(t, repo.Save(ctx, tx))

	t.Run("round-trips the aggregate", func(t *testing.T) {
		found, err := repo.FindByID(ctx, tx.ID)
		require.NoError(t, err)

		assert.Equal(t, tx.OrderRef, found.OrderRef)
		assert.Equal(t, order.StatusPending, found.Status)
		require.Len(t, found.Items, 1)
		assert.Equal(t, "B0TEST1", found.Items[0].RetailerProductID)
		assert.True(t, found.TotalsConsistent())
		assert.Equal(t, "62.14", found.Total.StringFixed(2))
		assert.Equal(t, "ON", found.Address.Province())
		require.Len(t, found.Updates, 1)
		assert.Equal(t, order.StatusPending, found.Updates[0].ToStatus)
	})

	t.Run("finds by order ref", func(t *testing.T) {
		found, err := repo.FindByOrderRef(ctx, tx.OrderRef)
		require.NoError(t, err)
		assert.Equal(t, tx.ID, found.ID)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := repo.FindByID(ctx, uuid.New())
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestTransactionRepository_StatusHistoryAccumulates(t *testing.T) {
	db := setupTransactionTestDB(t)
	repo := NewGormTransactionRepository(db)
	ctx := context.Background()

	tx := newTestTransaction(t)
	require.NoError(t, repo.Save(ctx, tx))

	require.NoError(t, tx.Authorize("pi_test123"))
	require.NoError(t, repo.Save(ctx, tx))

	require.NoError(t, tx.Confirm("AMZN-123", "track-1", nil))
	require.NoError(t, repo.Save(ctx, tx))

	found, err := repo.FindByPaymentRef(ctx, "pi_test123")
	require.NoError(t, err)
	assert.Equal(t, order.StatusConfirmed, found.Status)
	assert.Equal(t, "AMZN-123", found.RetailerOrderID)

	// created -> authorized -> confirmed, in order
	require.Len(t, found.Updates, 3)
	assert.Equal(t, order.StatusPending, found.Updates[0].ToStatus)
	assert.Equal(t, order.StatusAuthorized, found.Updates[1].ToStatus)
	assert.Equal(t, order.StatusConfirmed, found.Updates[2].ToStatus)
}

func TestTransactionRepository_SaveIsIdempotentForHistory(t *testing.T) {
	db := setupTransactionTestDB(t)
	repo := NewGormTransactionRepository(db)
	ctx := context.Background()

	tx := newTestTransaction(t)
	require.NoError(t, repo.Save(ctx, tx))
	require.NoError(t, repo.Save(ctx, tx))

	found, err := repo.FindByID(ctx, tx.ID)
	require.NoError(t, err)
	assert.Len(t, found.Updates, 1)
	assert.Len(t, found.Items, 1)
}

func TestTransactionRepository_FindByHousehold(t *testing.T) {
	db := setupTransactionTestDB(t)
	repo := NewGormTransactionRepository(db)
	ctx := context.Background()

	tx := newTestTransaction(t)
	require.NoError(t, repo.Save(ctx, tx))

	list, err := repo.FindByHousehold(ctx, tx.HouseholdID, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, tx.ID, list[0].ID)

	empty, err := repo.FindByHousehold(ctx, uuid.New(), 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
