package pg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// Migrate applies goose SQL migrations from cfg.MigrationsPath. The pgx
// pool is bridged to database/sql because goose does not speak pgx
// natively; the wrapper shares the underlying connections.
func Migrate(ctx context.Context, pool *pgxpool.Pool, cfg Config, log *slog.Logger) error {
	if cfg.MigrationsPath == "" {
		return errors.Join(ErrMigrationsFailed, ErrMigrationsDirEmpty)
	}
	if _, err := os.Stat(cfg.MigrationsPath); err != nil {
		if os.IsNotExist(err) {
			return errors.Join(ErrMigrationsDirAbsent, err)
		}
		return errors.Join(ErrMigrationsFailed, err)
	}

	db := stdlib.OpenDBFromPool(pool)
	defer func() {
		if err := db.Close(); err != nil {
			log.ErrorContext(ctx, "failed to close migration db handle", slog.String("error", err.Error()))
		}
	}()

	goose.SetLogger(gooseLogger{log: log})
	goose.SetTableName(cfg.MigrationsTable)

	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Join(ErrMigrationsFailed, err)
	}
	if err := goose.UpContext(ctx, db, cfg.MigrationsPath); err != nil {
		return errors.Join(ErrMigrationsFailed, err)
	}
	return nil
}

// gooseLogger routes goose's Printf-style output through slog.
type gooseLogger struct {
	log *slog.Logger
}

func (g gooseLogger) Fatalf(format string, v ...any) {
	g.log.Error(fmt.Sprintf(format, v...))
}

func (g gooseLogger) Printf(format string, v ...any) {
	g.log.Info(fmt.Sprintf(format, v...))
}
