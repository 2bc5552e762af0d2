package db

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/stkpush-backend/pkg/config"
	"github.com/angelmondragon/stkpush-backend/pkg/logger"
)

type ledgerRow struct {
	ID   int
	Note string
}

func newSQLiteClient(t *testing.T) *Client {
	t.Helper()
	cfg := config.DBConfig{
		SQLitePath:   filepath.Join(t.TempDir(), "stkpush.db"),
		MaxOpenConns: 1,
	}
	client, err := New(context.Background(), cfg, logger.New(logger.Options{Output: io.Discard}), WithSQLite(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.DB().AutoMigrate(&ledgerRow{}))
	return client
}

func TestNewOpensSQLite(t *testing.T) {
	client := newSQLiteClient(t)
	require.Equal(t, "sqlite", client.Dialect())
	require.NoError(t, client.Ping(context.Background()))
}

func TestNewRequiresDataSource(t *testing.T) {
	_, err := New(context.Background(), config.DBConfig{}, nil)
	require.Error(t, err)

	_, err = New(context.Background(), config.DBConfig{}, nil, WithSQLite(true))
	require.Error(t, err)
}

func TestWithTxCommitsAndRollsBack(t *testing.T) {
	client := newSQLiteClient(t)
	ctx := context.Background()

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&ledgerRow{Note: "committed"}).Error
	}))

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&ledgerRow{Note: "rolled"}).Error; err != nil {
			return err
		}
		return errors.New("boom")
	})
	require.EqualError(t, err, "boom")

	var count int64
	require.NoError(t, client.DB().Model(&ledgerRow{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	client := newSQLiteClient(t)

	require.Panics(t, func() {
		_ = client.WithTx(context.Background(), func(tx *gorm.DB) error {
			tx.Create(&ledgerRow{Note: "panicked"})
			panic("boom")
		})
	})

	var count int64
	require.NoError(t, client.DB().Model(&ledgerRow{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestNewFromGormWrapsConnection(t *testing.T) {
	client := newSQLiteClient(t)
	wrapped := NewFromGorm(client.DB())
	require.Equal(t, "sqlite", wrapped.Dialect())
	require.NoError(t, wrapped.Ping(context.Background()))
}
