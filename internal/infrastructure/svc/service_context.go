package svc

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"time"

	redisclient "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"tickcast/internal/application/port"
	"tickcast/internal/application/service"
	"tickcast/internal/application/usecase/broadcast"
	"tickcast/internal/domain"
	domainservice "tickcast/internal/domain/service"
	"tickcast/internal/infrastructure/config"
	kafkasink "tickcast/internal/infrastructure/messaging/kafka"
	"tickcast/internal/infrastructure/storage/composite"
	pgrepo "tickcast/internal/infrastructure/storage/postgres"
	redisrepo "tickcast/internal/infrastructure/storage/redis"
	sqliterepo "tickcast/internal/infrastructure/storage/sqlite"
	"tickcast/internal/interfaces/console"
	"tickcast/internal/interfaces/httpapi"
)

type ServiceContext struct {
	Ctx    context.Context
	Config *config.Config

	// 领域状态
	Catalog *domain.Catalog
	Book    *domain.PriceBook

	// 基础设施层
	userRepo    port.UserRepository
	redisClient *redisclient.Client
	Console     *console.Sink

	// 应用组件
	Users         *service.UserService
	Tokens        *service.UserIDToken
	Subscriptions *broadcast.Subscriptions
	Connections   *broadcast.Connections
	Broadcast     *broadcast.Service
	Handler       http.Handler

	// 资源管理
	closerChain []func() error
}

// New 创建并初始化 ServiceContext
// 这是应用启动的唯一入口点，所有依赖初始化都在这里完成
func New(ctx context.Context, cfg *config.Config) (*ServiceContext, error) {
	sc := &ServiceContext{
		Ctx:         ctx,
		Config:      cfg,
		closerChain: make([]func() error, 0),
	}

	if err := sc.initializeComponents(); err != nil {
		// 清理已初始化的资源
		_ = sc.Close()
		return nil, err
	}
	return sc, nil
}

// initializeComponents 按依赖顺序初始化
func (sc *ServiceContext) initializeComponents() error {
	cfg := sc.Config

	catalog, err := domain.NewCatalog(cfg.Symbols.List)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoCatalog, err)
	}
	sc.Catalog = catalog

	rnd := newRand(cfg.Prices.Seed)
	sc.Book = domain.NewPriceBook(catalog.Symbols(), func(string) float64 {
		return cfg.Prices.InitialBase + rnd.Float64()*cfg.Prices.InitialSpread
	})
	walk, err := domainservice.NewRandomWalk(cfg.Prices.MaxChange, rnd)
	if err != nil {
		return fmt.Errorf("price simulator: %w", err)
	}

	if err := sc.initializeStorage(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageInitFailed, err)
	}

	sc.Subscriptions = broadcast.NewSubscriptions(catalog)
	users, err := service.NewUserService(sc.Ctx, sc.userRepo, sc.Subscriptions)
	if err != nil {
		return err
	}
	if err := users.Seed(sc.Ctx, seedUsers(cfg.Users.Seed)); err != nil {
		return err
	}
	sc.Users = users
	sc.Tokens = service.NewUserIDToken(users)
	sc.Connections = broadcast.NewConnections(sc.Tokens)
	sc.closerChain = append(sc.closerChain, func() error {
		sc.Connections.CloseAll()
		return nil
	})

	sink, err := sc.initializeSinks()
	if err != nil {
		return err
	}

	sc.Broadcast = broadcast.NewService(broadcast.ServiceDeps{
		Book:          sc.Book,
		Walk:          walk,
		Subscriptions: sc.Subscriptions,
		Connections:   sc.Connections,
		Sink:          sink,
		Interval:      cfg.TickInterval(),
		PushTimeout:   cfg.PushTimeout(),
		SinkTimeout:   cfg.SinkTimeout(),
		FanoutWorkers: cfg.Broadcast.FanoutWorkers,
	})

	sc.Handler = httpapi.NewRouter(httpapi.NewHandler(httpapi.Deps{
		Users:         sc.Users,
		Tokens:        sc.Tokens,
		Subscriptions: sc.Subscriptions,
		Connections:   sc.Connections,
		CORSOrigin:    cfg.HTTP.CORSOrigin,
	}))

	log.Info().
		Strs("symbols", catalog.Symbols()).
		Int("seed_users", len(cfg.Users.Seed)).
		Msg("✓ All components initialized")
	return nil
}

// initializeStorage 初始化用户存储 (SQLite 或 Postgres)
func (sc *ServiceContext) initializeStorage() error {
	var (
		repo port.UserRepository
		err  error
	)
	switch sc.Config.Storage.Driver {
	case config.DriverPostgres:
		repo, err = pgrepo.New(sc.Config.Storage.DSN)
	default:
		repo, err = sqliterepo.New(sc.Config.Storage.DSN)
	}
	if err != nil {
		return err
	}
	sc.userRepo = repo

	// 注册关闭回调
	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Str("driver", sc.Config.Storage.Driver).Msg("closing user store")
		return repo.Close()
	})

	log.Info().
		Str("driver", sc.Config.Storage.Driver).
		Msg("✓ User store initialized")
	return nil
}

// initializeSinks 组装行情出口：Redis、Kafka、控制台
func (sc *ServiceContext) initializeSinks() (port.QuoteSink, error) {
	var sinks []port.QuoteSink

	if sc.Config.Redis.Enabled {
		r, err := sc.initRedis()
		if err != nil {
			return nil, fmt.Errorf("redis initialization failed: %w", err)
		}
		sinks = append(sinks, r)
	}

	if sc.Config.Kafka.Enabled {
		w := kafkasink.NewWriter(sc.Config.Kafka.Brokers, sc.Config.Kafka.Topic)
		k := kafkasink.NewSink(w)
		sc.closerChain = append(sc.closerChain, func() error {
			log.Info().Msg("closing kafka writer")
			return k.Close()
		})
		sinks = append(sinks, k)
		log.Info().
			Strs("brokers", sc.Config.Kafka.Brokers).
			Str("topic", sc.Config.Kafka.Topic).
			Msg("✓ Kafka initialized")
	}

	if sc.Config.App.Console {
		sc.Console = console.NewSink(nil)
		sinks = append(sinks, sc.Console)
	}

	if len(sinks) == 0 {
		return nil, nil
	}
	return composite.New(sinks...), nil
}

// initRedis 初始化 Redis 连接
func (sc *ServiceContext) initRedis() (*redisrepo.Repo, error) {
	rdb := redisclient.NewClient(&redisclient.Options{
		Addr:     sc.Config.Redis.Addr,
		Password: sc.Config.Redis.Password,
		DB:       sc.Config.Redis.DB,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(sc.Ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	sc.redisClient = rdb
	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("closing redis connection")
		return rdb.Close()
	})

	log.Info().
		Str("addr", sc.Config.Redis.Addr).
		Int("db", sc.Config.Redis.DB).
		Msg("✓ Redis initialized")

	ttl := time.Duration(sc.Config.Redis.TTLSeconds) * time.Second
	return redisrepo.New(rdb, sc.Config.Redis.Prefix, ttl, sc.Config.Redis.Channel), nil
}

// Close 按初始化的逆序释放资源
func (sc *ServiceContext) Close() error {
	var errs []error
	for i := len(sc.closerChain) - 1; i >= 0; i-- {
		if err := sc.closerChain[i](); err != nil {
			errs = append(errs, err)
		}
	}
	sc.closerChain = nil
	return errors.Join(errs...)
}

func newRand(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func seedUsers(in []config.SeedUser) []service.SeedUser {
	out := make([]service.SeedUser, 0, len(in))
	for _, su := range in {
		out = append(out, service.SeedUser{
			ID:            su.ID,
			Email:         su.Email,
			Name:          su.Name,
			Subscriptions: su.Subscriptions,
		})
	}
	return out
}
