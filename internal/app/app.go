// Package app wires the storage adapters and the wallet components shared by the binaries.
package app

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/robertarktes/googlepaypasses/internal/adapters/crdb"
	mongoadapter "github.com/robertarktes/googlepaypasses/internal/adapters/mongo"
	redisadapter "github.com/robertarktes/googlepaypasses/internal/adapters/redis"
	"github.com/robertarktes/googlepaypasses/internal/config"
	"github.com/robertarktes/googlepaypasses/internal/geocode"
	"github.com/robertarktes/googlepaypasses/internal/observability"
	"github.com/robertarktes/googlepaypasses/internal/settings"
	"github.com/robertarktes/googlepaypasses/internal/wallet"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Stores struct {
	Pool    *pgxpool.Pool
	Repo    *crdb.Repository
	Mongo   *mongo.Client
	Catalog *mongoadapter.CatalogRepository
	Audit   *mongoadapter.AuditLogger
	Redis   *redisclient.Client
	Cache   *redisadapter.Cache
}

func OpenStores(ctx context.Context, cfg *config.Config, logger observability.Logger) (*Stores, error) {
	pool, err := pgxpool.New(ctx, cfg.CRDBDSN)
	if err != nil {
		return nil, errors.Wrap(err, "connect to crdb")
	}

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "connect to mongo")
	}
	db := mongoClient.Database(cfg.MongoDB)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})

	return &Stores{
		Pool:    pool,
		Repo:    crdb.NewRepository(pool),
		Mongo:   mongoClient,
		Catalog: mongoadapter.NewCatalogRepository(db, logger),
		Audit:   mongoadapter.NewAuditLogger(db, logger),
		Redis:   redisClient,
		Cache:   redisadapter.NewCache(redisClient),
	}, nil
}

func (s *Stores) Close(ctx context.Context) {
	s.Pool.Close()
	_ = s.Mongo.Disconnect(ctx)
	_ = s.Redis.Close()
}

// Wallet holds the components that talk to Google. Client, Credentials and
// Synchronizer stay nil while the installation is not configured.
type Wallet struct {
	Installation *settings.Installation
	Credentials  *wallet.Credentials
	Client       *wallet.Client
	Builder      *wallet.Builder
	Synchronizer *wallet.Synchronizer
}

func NewWallet(ctx context.Context, cfg *config.Config, stores *Stores, logger observability.Logger) (*Wallet, error) {
	inst, err := settings.Resolve(ctx, stores.Repo, cfg)
	if err != nil {
		return nil, err
	}

	var geocoder wallet.Geocoder
	if inst.MapsAPIKey != "" {
		g, err := geocode.New(inst.MapsAPIKey, logger)
		if err != nil {
			return nil, err
		}
		geocoder = geocode.NewCached(g, stores.Cache, logger)
	}
	w := &Wallet{
		Installation: inst,
		Builder:      wallet.NewBuilder(inst.Namespace(), cfg.SiteURL, geocoder, logger),
	}
	if !inst.Configured() {
		logger.Warn("wallet issuer id or credentials missing; passes cannot be issued")
		return w, nil
	}

	creds, err := wallet.ParseCredentials(inst.Credentials)
	if err != nil {
		return nil, err
	}
	w.Credentials = creds
	w.Client = wallet.NewClient(ctx, creds, wallet.WithBaseURL(cfg.WalletAPIBase), wallet.WithLogger(logger))
	w.Synchronizer = wallet.NewSynchronizer(w.Client, stores.Repo, stores.Catalog, w.Builder, stores.Audit, logger)
	return w, nil
}
