package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	coreconfig "github.com/m3rciful/godialogue/core/config"
	coredatabase "github.com/m3rciful/godialogue/core/database"
	"github.com/m3rciful/godialogue/core/dialogue/serializer"
	"github.com/m3rciful/godialogue/core/dialogue/storage"
	"github.com/m3rciful/godialogue/core/logger"
)

// Options control the generic bootstrap pipeline shared between bots.
type Options struct {
	Config *coreconfig.Config
	// Database is used only when the dialogue storage is postgres.
	Database coredatabase.Config

	LoggerInit  func(*coreconfig.Config) error
	Connect     func(context.Context, coredatabase.Config) (*sqlx.DB, error)
	Migrate     func(context.Context, coredatabase.Config, coredatabase.Migrations) error
	RedisClient func(coreconfig.RedisConfig) redis.UniversalClient
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
type Result struct {
	Storage    storage.Storage
	Serializer serializer.Serializer
	// DB is set when the storage runs on postgres.
	DB *sqlx.DB
}

// Close releases connections and file handles held by the storage.
func (r *Result) Close() error {
	if r == nil || r.Storage == nil {
		return nil
	}
	if c, ok := r.Storage.(storage.Closer); ok {
		return c.Close()
	}
	return nil
}

// Run initializes the logger and opens the configured dialogue storage.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	d := opts.Config.Dialogue
	ser, err := serializer.ByName(d.Serializer)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	start := time.Now()
	res := &Result{Serializer: ser}
	switch d.Storage {
	case coreconfig.StorageMemory, "":
		res.Storage = storage.NewMemory()
	case coreconfig.StorageRedis:
		res.Storage, err = openRedis(ctx, opts)
	case coreconfig.StoragePostgres:
		res.Storage, res.DB, err = openPostgres(ctx, opts)
	case coreconfig.StorageBolt:
		res.Storage, err = storage.OpenBolt(d.Bolt.Path, d.Bolt.Bucket, ms(d.Bolt.TimeoutMS))
	default:
		err = fmt.Errorf("unknown storage %q", d.Storage)
	}
	if err != nil {
		logger.Error(ctx, logger.ComponentStorage, "storage.open",
			slog.String("status", "fail"),
			slog.String("storage", d.Storage),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("bootstrap: %s storage: %w", d.Storage, err)
	}

	logger.Info(ctx, logger.ComponentStorage, "storage.open",
		slog.String("status", "ok"),
		slog.String("storage", d.Storage),
		slog.String("serializer", ser.Name()),
		slog.Duration("duration", logger.Took(start)),
	)
	return res, nil
}

func openRedis(ctx context.Context, opts Options) (storage.Storage, error) {
	rc := opts.Config.Dialogue.Redis
	newClient := opts.RedisClient
	if newClient == nil {
		newClient = defaultRedisClient
	}
	s := storage.NewRedis(newClient(rc),
		storage.WithRedisPrefix(rc.Prefix),
		storage.WithRedisTimeout(ms(rc.TimeoutMS)),
		storage.WithRedisStateTTL(time.Duration(rc.StateTTLSeconds)*time.Second),
		storage.WithRedisLock(ms(rc.LockTTLMS), ms(rc.LockRetryMS)),
		storage.WithRedisOwnedClient(),
	)
	if err := s.Ping(ctx); err != nil {
		return nil, errors.Join(err, s.Close())
	}
	return s, nil
}

func defaultRedisClient(rc coreconfig.RedisConfig) redis.UniversalClient {
	return redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{rc.Addr},
		Password: rc.Password,
		DB:       rc.DB,
	})
}

func openPostgres(ctx context.Context, opts Options) (storage.Storage, *sqlx.DB, error) {
	connect := opts.Connect
	if connect == nil {
		connect = coredatabase.Connect
	}
	migrate := opts.Migrate
	if migrate == nil {
		migrate = coredatabase.RunMigrations
	}

	db, err := connect(ctx, opts.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("database initialization failed: %w", err)
	}
	src := coredatabase.Migrations{FS: storage.Migrations, Dir: storage.MigrationsDir}
	if err := migrate(ctx, opts.Database, src); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("migrations failed: %w", err)
	}
	return storage.NewPostgres(db), db, nil
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}
