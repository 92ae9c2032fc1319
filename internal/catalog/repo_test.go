package catalog

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/rmolina-dev/libris-backend/pkg/db/models"
	"github.com/rmolina-dev/libris-backend/pkg/enums"
)

func setupCatalogTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:catalog_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.LibraryItem{}))
	return conn
}

func seedItem(t *testing.T, conn *gorm.DB, itemType enums.ItemType, status enums.ItemStatus, archived bool) models.LibraryItem {
	t.Helper()
	item := models.LibraryItem{
		ID:         uuid.New(),
		Title:      "Seeded " + string(itemType),
		Type:       itemType,
		Status:     status,
		IsArchived: archived,
	}
	require.NoError(t, conn.Create(&item).Error)
	return item
}

func TestRepositoryMarkBorrowedWinsOnlyOnce(t *testing.T) {
	conn := setupCatalogTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	item := seedItem(t, conn, enums.ItemTypeBook, enums.ItemStatusAvailable, false)

	won, err := repo.MarkBorrowed(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, won)

	// The flip is conditional on AVAILABLE, so a second borrow loses.
	won, err = repo.MarkBorrowed(ctx, item.ID)
	require.NoError(t, err)
	assert.False(t, won)

	stored, err := repo.GetByID(ctx, item.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, enums.ItemStatusBorrowed, stored.Status)
}

func TestRepositoryMarkBorrowedSkipsArchived(t *testing.T) {
	conn := setupCatalogTestDB(t)
	repo := NewRepository(conn)

	item := seedItem(t, conn, enums.ItemTypeDVD, enums.ItemStatusAvailable, true)

	won, err := repo.MarkBorrowed(context.Background(), item.ID)
	require.NoError(t, err)
	assert.False(t, won)
}

func TestRepositoryListFilters(t *testing.T) {
	conn := setupCatalogTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	book := seedItem(t, conn, enums.ItemTypeBook, enums.ItemStatusAvailable, false)
	seedItem(t, conn, enums.ItemTypeDVD, enums.ItemStatusBorrowed, false)
	archived := seedItem(t, conn, enums.ItemTypeBook, enums.ItemStatusAvailable, true)

	items, err := repo.List(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, items, 2)
	for _, it := range items {
		assert.NotEqual(t, archived.ID, it.ID)
	}

	bookType := enums.ItemTypeBook
	items, err = repo.List(ctx, ListFilter{Type: &bookType})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, book.ID, items[0].ID)

	items, err = repo.List(ctx, ListFilter{IncludeArchived: true})
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestRepositoryListSearchMatchesTitle(t *testing.T) {
	conn := setupCatalogTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	wanted := models.LibraryItem{
		ID:     uuid.New(),
		Title:  "The Go Programming Language",
		Type:   enums.ItemTypeBook,
		Status: enums.ItemStatusAvailable,
	}
	require.NoError(t, conn.Create(&wanted).Error)
	seedItem(t, conn, enums.ItemTypeBook, enums.ItemStatusAvailable, false)

	items, err := repo.List(ctx, ListFilter{Search: "Programming"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, wanted.ID, items[0].ID)

	items, err = repo.List(ctx, ListFilter{Search: "no such title"})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestRepositoryGetByIDMissingReturnsNil(t *testing.T) {
	conn := setupCatalogTestDB(t)
	repo := NewRepository(conn)

	item, err := repo.GetByID(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestRepositorySetArchivedRoundTrip(t *testing.T) {
	conn := setupCatalogTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	item := seedItem(t, conn, enums.ItemTypeEquipment, enums.ItemStatusAvailable, false)

	require.NoError(t, repo.SetArchived(ctx, item.ID, true))
	stored, err := repo.GetByID(ctx, item.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.True(t, stored.IsArchived)

	require.NoError(t, repo.SetArchived(ctx, item.ID, false))
	stored, err = repo.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsArchived)
}
