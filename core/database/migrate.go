package database

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/m3rciful/godialogue/core/logger"
)

// Migrations locates a set of golang-migrate files inside an fs.FS.
type Migrations struct {
	FS  fs.FS
	Dir string
}

// Files lists the up migrations in version order.
func (m Migrations) Files() ([]string, error) {
	entries, err := fs.ReadDir(m.FS, m.Dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			names = append(names, e.Name())
		}
	}
	sort.Slice(names, func(i, j int) bool { return parseVersion(names[i]) < parseVersion(names[j]) })
	return names, nil
}

// RunMigrations waits for the server and applies every pending up migration.
func RunMigrations(ctx context.Context, cfg Config, src Migrations) error {
	if src.FS == nil {
		return fmt.Errorf("migrations: nil source")
	}
	dsn := cfg.URL()
	if err := WaitForPostgres(ctx, dsn, 30*time.Second); err != nil {
		logger.Error(ctx, logger.ComponentMigrate, "db.migrate",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("database not ready: %w", err)
	}

	files, err := src.Files()
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	if logger.ShouldSampleDebug() {
		preview, truncated := logger.SummarizeStrings(files, 6)
		logger.Debug(ctx, logger.ComponentMigrate, "resolve",
			slog.String("status", "ok"),
			slog.String("path", src.Dir),
			slog.Int("count", len(files)),
			slog.String("files_preview", preview),
			slog.Bool("files_truncated", truncated),
		)
	}

	driver, err := iofs.New(src.FS, src.Dir)
	if err != nil {
		return fmt.Errorf("open migrations source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", driver, dsn)
	if err != nil {
		logger.Error(ctx, logger.ComponentMigrate, "db.migrate",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}
	defer m.Close()

	fromVer, _, _ := m.Version()
	start := time.Now()
	upErr := m.Up()
	took := logger.Took(start)

	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		logger.Error(ctx, logger.ComponentMigrate, "apply",
			slog.String("status", "fail"),
			slog.String("err", upErr.Error()),
			slog.Duration("duration", took),
		)
		return fmt.Errorf("migration execution failed: %w", upErr)
	}

	toVer, _, _ := m.Version()
	applied := selectApplied(files, uint64(fromVer), uint64(toVer))
	logger.Info(ctx, logger.ComponentMigrate, "summary",
		slog.String("status", "ok"),
		slog.Uint64("from_ver", uint64(fromVer)),
		slog.Uint64("to_ver", uint64(toVer)),
		slog.Int("files", len(applied)),
		slog.Duration("duration", took),
	)
	return nil
}

func parseVersion(name string) uint64 {
	prefix, _, _ := strings.Cut(name, "_")
	v, _ := strconv.ParseUint(prefix, 10, 64)
	return v
}

// selectApplied returns the files with versions in (from, to].
func selectApplied(files []string, from, to uint64) []string {
	var out []string
	for _, f := range files {
		if v := parseVersion(f); v > from && v <= to {
			out = append(out, f)
		}
	}
	return out
}
