package chessbuilder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/cheese-chess-server/internal/config"
	"github.com/park285/cheese-chess-server/internal/identity"
	"github.com/park285/cheese-chess-server/internal/match"
	"github.com/park285/cheese-chess-server/internal/msgcat"
	"github.com/park285/cheese-chess-server/internal/protocol"
	"github.com/park285/cheese-chess-server/internal/session"
	"github.com/park285/cheese-chess-server/internal/wsserver"
)

type Deps struct {
	Store    match.Store
	Resolver identity.Resolver
	Archive  *match.Archive
	Redis    *redis.Client
	Registry *session.Registry
	Handler  *protocol.Handler
	Server   *wsserver.Server
}

func New(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (deps *Deps, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Deps{}
	defer func() {
		if err != nil {
			d.Close()
		}
	}()

	// Redis (store and/or credential table)
	if strings.TrimSpace(cfg.RedisURL) != "" {
		dctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		d.Redis, err = match.DialRedis(dctx, cfg.RedisURL)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("init redis: %w", err)
		}
	}

	switch cfg.Store {
	case config.StoreMemory:
		mem := match.NewMemoryStore()
		if err := seed(ctx, mem, cfg, logger); err != nil {
			return nil, err
		}
		d.Store = mem
	default:
		d.Store = match.NewRedisStore(d.Redis, cfg.MatchTTL)
	}

	switch cfg.AuthMode {
	case config.AuthJWT:
		d.Resolver, err = identity.NewJWTResolver(cfg.JWTSecret)
		if err != nil {
			return nil, fmt.Errorf("init jwt resolver: %w", err)
		}
	case config.AuthHTTP:
		d.Resolver = identity.NewHTTPResolver(cfg.AuthBaseURL)
	default:
		if d.Redis == nil {
			return nil, fmt.Errorf("REDIS_URL is required for redis credentials")
		}
		d.Resolver = identity.NewRedisResolver(d.Redis, 0)
	}

	cat, err := msgcat.New(cfg.MsgTemplateDir)
	if err != nil {
		return nil, fmt.Errorf("load message catalog: %w", err)
	}

	opts := []protocol.Option{protocol.WithCatalog(cat), protocol.WithLogger(logger)}
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		d.Archive, err = match.NewArchive(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init archive: %w", err)
		}
		sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = d.Archive.EnsureSchema(sctx)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("archive schema: %w", err)
		}
		opts = append(opts, protocol.WithArchive(d.Archive))
	} else {
		logger.Info("archive_disabled", zap.String("reason", "DATABASE_URL not set"))
	}

	d.Registry = session.NewRegistry()
	d.Handler = protocol.NewHandler(d.Store, d.Resolver, d.Registry, opts...)
	d.Server = wsserver.New(d.Handler, wsserver.Config{
		ReadLimit:      cfg.WSReadLimit,
		PingInterval:   cfg.WSPingInterval,
		OriginPatterns: cfg.AllowedOrigins,
	}, d.health)
	return d, nil
}

func (d *Deps) health(ctx context.Context) error {
	if d.Redis == nil {
		return nil
	}
	return d.Redis.Ping(ctx).Err()
}

// Close releases backend connections. Safe on a partially built Deps.
func (d *Deps) Close() {
	if d == nil {
		return
	}
	if d.Archive != nil {
		_ = d.Archive.Close()
	}
	if d.Redis != nil {
		_ = d.Redis.Close()
	}
}

// seed creates one match for local runs against the memory store.
func seed(ctx context.Context, store *match.MemoryStore, cfg *config.AppConfig, logger *zap.Logger) error {
	name := strings.TrimSpace(cfg.SeedMatchName)
	if name == "" {
		return nil
	}
	rec, err := store.CreateMatch(ctx, name)
	if err != nil {
		return fmt.Errorf("seed match: %w", err)
	}
	rec.WhiteID, rec.BlackID = cfg.SeedWhite, cfg.SeedBlack
	if err := store.UpdateMatch(ctx, rec); err != nil {
		return fmt.Errorf("seed match: %w", err)
	}
	logger.Info("match_seeded",
		zap.Int("match_id", rec.ID),
		zap.String("name", name),
		zap.String("white", rec.WhiteID),
		zap.String("black", rec.BlackID),
	)
	return nil
}
