package global

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"PPGate/data/database"
	"PPGate/data/database/mgo/mongoutil"
	"PPGate/logger"
	"PPGate/service/events"
	"PPGate/service/storage"
	"PPGate/service/storage/redis"
	"PPGate/tools/errs"
	"PPGate/tools/ids"
	"PPGate/tools/security"
)

// Resources are the collaborators the gateway and the HTTP modules share.
type Resources struct {
	Messages storage.MessageStore
	Users    storage.UserStore
	Objects  storage.ObjectStore
	Events   events.Publisher
	Verifier *security.Verifier
	Auth     security.Options

	mongo   *mongoutil.Client
	rdb     *goredis.Client
	pg      *pgxpool.Pool
	closers []func(context.Context) error
}

// Build opens only the backends the configured drivers need. On error every
// backend opened so far is closed again.
func Build(ctx context.Context, cfg *AppConfig) (res *Resources, err error) {
	ids.SetNodeID(cfg.Gateway.NodeID)

	res = &Resources{}
	defer func() {
		if err != nil {
			_ = res.Close(context.Background())
			res = nil
		}
	}()

	res.Auth = security.Options{Secret: []byte(cfg.Auth.Secret), Alg: "HS256", TTL: cfg.Auth.TTL}
	res.Verifier = security.NewVerifier(res.Auth)

	if res.Messages, err = res.buildMessages(ctx, cfg); err != nil {
		return
	}
	if res.Users, err = res.buildUsers(ctx, cfg); err != nil {
		return
	}
	if res.Objects, err = res.buildObjects(ctx, cfg); err != nil {
		return
	}
	if res.Events, err = res.buildEvents(cfg); err != nil {
		return
	}
	logger.Info("resources ready",
		zap.String("messages", cfg.Store.Messages),
		zap.String("users", cfg.Store.Users),
		zap.String("objects", cfg.Store.Objects),
		zap.String("events", cfg.Events.Driver))
	return res, nil
}

func (r *Resources) mongoDB(ctx context.Context, cfg *AppConfig) (*mongo.Database, error) {
	if r.mongo == nil {
		mc := cfg.Mongo
		cli, err := mongoutil.NewMongoDB(ctx, &mc)
		if err != nil {
			return nil, err
		}
		r.mongo = cli
		r.closers = append(r.closers, cli.Close)
	}
	return r.mongo.GetDB(), nil
}

func (r *Resources) postgres(ctx context.Context, cfg *AppConfig) (*pgxpool.Pool, error) {
	if r.pg == nil {
		if cfg.Postgres.URL == "" {
			return nil, errs.ErrArgs.WrapMsg("postgres.url is required")
		}
		pool, err := storage.OpenPostgres(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, err
		}
		r.pg = pool
		r.closers = append(r.closers, func(context.Context) error {
			pool.Close()
			return nil
		})
	}
	return r.pg, nil
}

func (r *Resources) buildMessages(ctx context.Context, cfg *AppConfig) (storage.MessageStore, error) {
	switch cfg.Store.Messages {
	case "mongo":
		db, err := r.mongoDB(ctx, cfg)
		if err != nil {
			return nil, err
		}
		s := storage.NewMongoMessages(db, cfg.Gateway.NodeID)
		if err := database.EnsureIndexes(ctx, s); err != nil {
			return nil, err
		}
		return s, nil
	case "redis":
		if r.rdb == nil {
			rdb, err := redis.New(ctx, cfg.Redis)
			if err != nil {
				return nil, err
			}
			r.rdb = rdb
			r.closers = append(r.closers, func(context.Context) error { return rdb.Close() })
		}
		return storage.NewRedisMessages(r.rdb, cfg.Gateway.NodeID, 0), nil
	case "postgres":
		pool, err := r.postgres(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return storage.NewPgMessages(pool, cfg.Gateway.NodeID), nil
	default:
		return storage.NewMemMessages(), nil
	}
}

func (r *Resources) buildUsers(ctx context.Context, cfg *AppConfig) (storage.UserStore, error) {
	switch cfg.Store.Users {
	case "mongo":
		db, err := r.mongoDB(ctx, cfg)
		if err != nil {
			return nil, err
		}
		s := storage.NewMongoUsers(db)
		if err := database.EnsureIndexes(ctx, s); err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		pool, err := r.postgres(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return storage.NewPgUsers(pool), nil
	default:
		return storage.NewMemUsers(), nil
	}
}

func (r *Resources) buildObjects(ctx context.Context, cfg *AppConfig) (storage.ObjectStore, error) {
	switch cfg.Store.Objects {
	case "gridfs":
		db, err := r.mongoDB(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return storage.NewGridFSObjects(db, cfg.Objects.Bucket)
	case "memory":
		return storage.NewMemObjects(), nil
	default:
		return storage.NewDiskObjects(cfg.Objects.Dir)
	}
}

// buildEvents always returns an events.Async so publishing never blocks the
// registry or the router.
func (r *Resources) buildEvents(cfg *AppConfig) (events.Publisher, error) {
	var next events.Publisher
	switch cfg.Events.Driver {
	case "nats":
		nc := cfg.Nats
		if nc.Name == "" {
			nc.Name = cfg.Gateway.ID
		}
		p, err := events.NewNatsPublisher(nc, cfg.Events.SubjectPrefix)
		if err != nil {
			return nil, err
		}
		next = p
	case "kafka":
		p, err := events.NewKafkaPublisher(cfg.Kafka, cfg.Events.SubjectPrefix)
		if err != nil {
			return nil, err
		}
		next = p
	default:
		next = events.Noop{}
	}
	a := events.NewAsync(next, cfg.Events.QueueSize, 3*time.Second)
	r.closers = append(r.closers, func(context.Context) error { return a.Close() })
	return a, nil
}

// Close releases backends in reverse order of opening.
func (r *Resources) Close(ctx context.Context) error {
	var first error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](ctx); err != nil && first == nil {
			first = err
		}
	}
	r.closers = nil
	return first
}
