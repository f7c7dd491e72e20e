package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/api"
	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/event"
	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/generate"
	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/ipfs"
	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/ledger"
	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/metadata"
	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/registry"
	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/reward"
	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/scrape"
	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/session"
	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/telemetry"
)

type Config struct {
	HTTP struct {
		Port int32
	}

	Redis struct {
		Addrs  []string
		Pass   string
		Prefix string
	}

	Postgres struct {
		Addr string
		User string
		Pass string
		Name string
	}

	IPFS struct {
		PinURL   string
		Gateway  string
		JWT      string
		CacheTTL time.Duration
	}

	Scraper struct {
		Endpoint    string
		APIKey      string
		Concurrency int
	}

	Generator struct {
		URL        string
		APIKey     string
		Model      string
		MaxRetries int
	}

	Ledger struct {
		RPCURL         string
		Package        string
		RewardCoinType string
		CoinDecimals   int32
		GasBudget      uint64
		SignerSeed     string
	}

	Session struct {
		TTL time.Duration
	}
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis    redis.UniversalClient
		postgres *pgxpool.Pool
	}

	service struct {
		ipfs        *ipfs.Client
		scraper     *scrape.Pipeline
		generator   *generate.Service
		metadata    *metadata.Publisher
		coordinator *ledger.Coordinator
		verifier    *reward.Verifier
		session     *session.Service
		registry    *registry.Service
	}

	http *http.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus()

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	if err := s.initService(); err != nil {
		return nil, fmt.Errorf("server: init service: %w", err)
	}

	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initPostgres(); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	return nil
}

func (s *Server) initRedis() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	r := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    s.c.Redis.Addrs,
		Password: s.c.Redis.Pass,
	})

	if err := telemetry.MonitorRedis(r); err != nil {
		return err
	}

	if err := r.Ping(ctx).Err(); err != nil {
		return err
	}

	s.infra.redis = r
	return nil
}

func (s *Server) initPostgres() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s",
		s.c.Postgres.User, s.c.Postgres.Pass, s.c.Postgres.Addr, s.c.Postgres.Name))
	if err != nil {
		return err
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return err
	}

	if err := db.Ping(ctx); err != nil {
		return err
	}

	s.infra.postgres = db
	return nil
}

func (s *Server) initService() error {
	s.service.ipfs = ipfs.NewClient(ipfs.Config{
		PinURL:   s.c.IPFS.PinURL,
		Gateway:  s.c.IPFS.Gateway,
		JWT:      s.c.IPFS.JWT,
		Redis:    s.infra.redis,
		CacheTTL: s.c.IPFS.CacheTTL,
	})

	s.service.scraper = scrape.NewPipeline(scrape.Config{
		Endpoint:    s.c.Scraper.Endpoint,
		APIKey:      s.c.Scraper.APIKey,
		Concurrency: s.c.Scraper.Concurrency,
	})

	s.service.generator = generate.NewService(generate.Config{
		Backend: generate.NewHTTPBackend(generate.HTTPBackendConfig{
			URL:    s.c.Generator.URL,
			APIKey: s.c.Generator.APIKey,
			Model:  s.c.Generator.Model,
		}),
		Source:     s.service.scraper,
		MaxRetries: s.c.Generator.MaxRetries,
	})

	s.service.metadata = metadata.NewPublisher(s.service.ipfs)

	signer, err := ledger.NewSigner(s.c.Ledger.SignerSeed)
	if err != nil {
		return fmt.Errorf("ledger signer: %w", err)
	}

	s.service.coordinator = ledger.NewCoordinator(ledger.Config{
		Client: ledger.NewClient(ledger.ClientConfig{URL: s.c.Ledger.RPCURL}),
		Signer: signer,
		Targets: ledger.Targets{
			Package:        s.c.Ledger.Package,
			RewardCoinType: s.c.Ledger.RewardCoinType,
		},
		GasBudget: s.c.Ledger.GasBudget,
		EventBus:  s.eb,
	})

	s.service.verifier = reward.NewVerifier(reward.Config{
		Ledger:   s.service.coordinator,
		EventBus: s.eb,
	})

	s.service.session = session.NewService(session.Config{
		Ledger:    s.service.coordinator,
		Store:     s.service.ipfs,
		Generator: s.service.generator,
		Settler:   s.service.verifier,
		TTL:       s.c.Session.TTL,
	})

	s.service.registry = registry.NewService(registry.Config{
		DB:       s.infra.postgres,
		EventBus: s.eb,
	})

	return nil
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery())

	api.New(api.Config{
		Router:       e,
		EventBus:     s.eb,
		Store:        s.service.ipfs,
		Generator:    s.service.generator,
		Sessions:     s.service.session,
		Metadata:     s.service.metadata,
		Minter:       s.service.coordinator,
		Ledger:       s.service.coordinator,
		Registry:     s.service.registry,
		Redis:        s.infra.redis,
		PubsubPrefix: s.c.Redis.Prefix,
		CoinDecimals: s.c.Ledger.CoinDecimals,
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) Start() {
	ctx := context.TODO()

	slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.eb.Stop()
	s.infra.postgres.Close()

	slog.InfoContext(ctx, "server: shutdown completed")
}
