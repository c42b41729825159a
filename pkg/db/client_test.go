package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/pickup-orders/pkg/config"
)

type testModel struct {
	ID   int
	Name string `gorm:"uniqueIndex"`
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:db_client_test?mode=memory&cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	require.NoError(t, conn.Migrator().DropTable(&testModel{}))
	require.NoError(t, conn.AutoMigrate(&testModel{}))
	return conn
}

func TestWithTx_CommitsAndRollbacks(t *testing.T) {
	db := newTestDB(t)
	client := NewFromGorm(db)

	ctx := context.Background()
	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&testModel{Name: "committed"}).Error
	}))

	var count int64
	require.NoError(t, db.Model(&testModel{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&testModel{Name: "rolled"}).Error; err != nil {
			return err
		}
		return errors.New("boom")
	})
	require.Error(t, err)

	require.NoError(t, db.Model(&testModel{}).Count(&count).Error)
	assert.Equal(t, int64(1), count, "rollback should leave a single record")
}

func TestWithTx_RollsBackOnPanic(t *testing.T) {
	db := newTestDB(t)
	client := NewFromGorm(db)

	assert.Panics(t, func() {
		_ = client.WithTx(context.Background(), func(tx *gorm.DB) error {
			if err := tx.Create(&testModel{Name: "panicky"}).Error; err != nil {
				return err
			}
			panic("boom")
		})
	})

	var count int64
	require.NoError(t, db.Model(&testModel{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestPing(t *testing.T) {
	client := NewFromGorm(newTestDB(t))
	require.NoError(t, client.Ping(context.Background()))
}

func TestNew_SQLiteDriver(t *testing.T) {
	client, err := New(context.Background(), config.DBConfig{
		DSN:    "file:db_client_new?mode=memory&cache=shared",
		Driver: "sqlite",
	}, nil)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Ping(context.Background()))
	require.NoError(t, client.Exec(context.Background(), "CREATE TABLE IF NOT EXISTS probes (id INTEGER PRIMARY KEY)").Error)
}

func TestNew_RequiresDSN(t *testing.T) {
	_, err := New(context.Background(), config.DBConfig{Driver: "sqlite"}, nil)
	require.Error(t, err)
}

func TestErrorHelpers(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&testModel{Name: "dup"}).Error)
	err := db.Create(&testModel{Name: "dup"}).Error
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err, ""))
	assert.True(t, IsUniqueViolation(err, "test_models.name"))
	assert.False(t, IsUniqueViolation(err, "orders.payment_intent_id"))
	assert.False(t, IsUniqueViolation(nil, ""))

	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_orders_payment_intent_id"}
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", pgErr), "ux_orders_payment_intent_id"))
	assert.False(t, IsUniqueViolation(pgErr, "other"))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}, ""))

	var missing testModel
	err = db.Where("name = ?", "nope").First(&missing).Error
	assert.True(t, IsNotFound(err))
}
