// Package dbtest opens throwaway SQLite databases carrying the payments schema.
package dbtest

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/stkpush-backend/pkg/db"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  subscription_tier TEXT NOT NULL DEFAULT 'free',
  subscription_tier_updated_at DATETIME,
  entitlement_schema_version INTEGER NOT NULL DEFAULT 2
);
CREATE TABLE IF NOT EXISTS payment_intents (
  id TEXT PRIMARY KEY,
  status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'paid', 'failed')),
  method TEXT NOT NULL DEFAULT 'mpesa_stk',
  currency TEXT NOT NULL DEFAULT 'KES',
  amount INTEGER NOT NULL CHECK (amount > 0),
  payer_phone TEXT NOT NULL,
  account_ref TEXT NOT NULL,
  description TEXT NOT NULL,
  target_tier TEXT,
  charge_mode TEXT NOT NULL DEFAULT 'paybill',
  merchant_request_id TEXT,
  checkout_request_id TEXT,
  user_id TEXT,
  product_id TEXT,
  payer_phone_confirmed TEXT,
  mpesa_receipt TEXT,
  result_code INTEGER,
  result_desc TEXT,
  raw_callback TEXT,
  entitlement_granted_at DATETIME,
  entitlement_error TEXT,
  entitlement_attempted_at DATETIME,
  last_queried_at DATETIME,
  paid_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME,
  CHECK ((status = 'paid') = (paid_at IS NOT NULL))
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_payment_intents_checkout_request_id ON payment_intents (checkout_request_id);
CREATE TABLE IF NOT EXISTS payment_callbacks (
  id TEXT PRIMARY KEY,
  merchant_request_id TEXT,
  checkout_request_id TEXT,
  result_code INTEGER NOT NULL,
  result_desc TEXT NOT NULL,
  payload TEXT NOT NULL,
  intent_id TEXT,
  outcome TEXT NOT NULL DEFAULT 'received',
  received_at DATETIME,
  processed_at DATETIME
);`

// Open returns a private in-memory database for the calling test.
// Connections are capped at one so concurrent goroutines serialize on SQLite.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		NowFunc:                db.NowUTC,
	})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		require.NoError(t, conn.Exec(stmt).Error)
	}
	return conn
}
