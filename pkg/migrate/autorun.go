package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/stkpush-backend/pkg/config"
	"github.com/angelmondragon/stkpush-backend/pkg/db"
	"github.com/angelmondragon/stkpush-backend/pkg/db/models"
	"github.com/angelmondragon/stkpush-backend/pkg/logger"
)

// MaybeRunDev migrates the schema on boot when running in dev with auto-migrate enabled.
// SQLite databases are migrated from the models since the SQL files target Postgres.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "dialect": client.Dialect()})

	if client.Dialect() == "sqlite" {
		logg.Info(ctx, "auto-migrating sqlite schema from models")
		if err := AutoMigrateModels(ctx, client); err != nil {
			return err
		}
		logg.Info(ctx, "sqlite schema ready")
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	ctx = logg.WithField(ctx, "dir", DefaultDir)
	logg.Info(ctx, "running goose migrations (dev auto-run)")
	if err := Run(ctx, sqlDB, DefaultDir, "up"); err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}
	logg.Info(ctx, "goose migrations completed")
	return nil
}

// AutoMigrateModels creates the payments tables through GORM.
func AutoMigrateModels(ctx context.Context, client *db.Client) error {
	if err := client.DB().WithContext(ctx).AutoMigrate(
		&models.User{},
		&models.PaymentIntent{},
		&models.PaymentCallback{},
	); err != nil {
		return fmt.Errorf("auto-migrating models: %w", err)
	}
	// AutoMigrate does not create the correlation unique index.
	if err := client.DB().WithContext(ctx).Exec(
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_payment_intents_checkout_request_id ON payment_intents (checkout_request_id)",
	).Error; err != nil {
		return fmt.Errorf("creating checkout index: %w", err)
	}
	return nil
}
