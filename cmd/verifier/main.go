package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	cacheadapter "github.com/smallbiznis/valora-verify/internal/adapter/cache"
	oauthadapter "github.com/smallbiznis/valora-verify/internal/adapter/oauth"
	registryadapter "github.com/smallbiznis/valora-verify/internal/adapter/registry"
	"github.com/smallbiznis/valora-verify/internal/bootstrap"
	"github.com/smallbiznis/valora-verify/internal/config"
	httptransport "github.com/smallbiznis/valora-verify/internal/http"
	"github.com/smallbiznis/valora-verify/internal/http/handler"
	httpmiddleware "github.com/smallbiznis/valora-verify/internal/http/middleware"
	"github.com/smallbiznis/valora-verify/internal/jwt"
	"github.com/smallbiznis/valora-verify/internal/metrics"
	apimiddleware "github.com/smallbiznis/valora-verify/internal/middleware"
	"github.com/smallbiznis/valora-verify/internal/repository"
	"github.com/smallbiznis/valora-verify/internal/server"
	verifysvc "github.com/smallbiznis/valora-verify/internal/service/verification"
	"github.com/smallbiznis/valora-verify/internal/telemetry"
	"github.com/smallbiznis/valora-verify/internal/zk"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newSnowflake,
			metrics.NewRecorder,
			newProver,
			newSessionStore,
			newRegistry,
			newProviderClient,
			newExchanger,
			newSubmitter,
			newVerificationService,
			verifysvc.NewReader,
			newIdentityTokens,
			newAuthMiddleware,
			newRateLimiter,
			newVerifyHandler,
			newRegistryHandler,
			newRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger.With(zap.String("service", cfg.ServiceName)), nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}

func newProver(cfg config.Config, logger *zap.Logger) (*zk.Groth16Prover, error) {
	prover, err := zk.NewGroth16Prover(cfg.ZKKeyDir, logger)
	if err != nil {
		return nil, fmt.Errorf("zk setup: %w", err)
	}
	return prover, nil
}

func newSessionStore(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (repository.SessionStore, error) {
	if cfg.SessionStore == config.SessionStoreMemory {
		logger.Warn("using in-memory session store; sessions are lost on restart")
		return cacheadapter.NewMemorySessionStore(nil), nil
	}
	client, err := newRedisClient(lc, cfg, logger)
	if err != nil {
		return nil, err
	}
	return cacheadapter.NewRedisSessionStore(client), nil
}

// newRedisClient connects the session store. Sessions are small and short-lived,
// so the pool stays small and commands fail fast.
func newRedisClient(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (redis.UniversalClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		ClientName:   cfg.ServiceName + "-sessions",
		PoolSize:     16,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("session store ping %s: %w", cfg.RedisAddr, err)
	}
	logger.Info("session store connected", zap.String("addr", cfg.RedisAddr), zap.Int("db", cfg.RedisDB))
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

func newRegistry(lc fx.Lifecycle, cfg config.Config, node *snowflake.Node, prover *zk.Groth16Prover, tokens *jwt.Generator, logger *zap.Logger) (repository.Registry, error) {
	backend, err := newRegistryBackend(lc, cfg, node, prover, tokens, logger)
	if err != nil || cfg.RegistryCacheTTL <= 0 {
		return backend, err
	}
	cached, err := cacheadapter.NewCachedRegistry(context.Background(), backend, cfg.RegistryCacheTTL, logger.Named("registry_cache"))
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return cached.Close()
		},
	})
	return cached, nil
}

func newRegistryBackend(lc fx.Lifecycle, cfg config.Config, node *snowflake.Node, prover *zk.Groth16Prover, tokens *jwt.Generator, logger *zap.Logger) (repository.Registry, error) {
	switch cfg.RegistryBackend {
	case config.RegistryMemory:
		logger.Warn("using in-memory registry; verified identities are lost on restart")
		return repository.NewMemoryRegistry(prover), nil
	case config.RegistryHTTP:
		client := &http.Client{Timeout: cfg.ProviderTimeout}
		// The remote gateway must share IDENTITY_TOKEN_SECRET and issuer.
		return registryadapter.NewHTTPClient(cfg.RegistryURL, client, tokens, logger.Named("registry")), nil
	default:
		pool, err := newPGXPool(lc, cfg)
		if err != nil {
			return nil, err
		}
		bootstrap.EnsureSchema(lc, pool, logger)
		return repository.NewPostgresRegistry(pool, node, prover, logger.Named("registry")), nil
	}
}

// newPGXPool opens the registry pool. Writes happen once per successful
// verification, so a handful of connections is enough.
func newPGXPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.ServiceName
	if poolCfg.MaxConns > 8 {
		poolCfg.MaxConns = 8
	}
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect registry database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping registry database: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})
	return pool, nil
}

func newProviderClient(cfg config.Config) oauthadapter.ProviderClient {
	return oauthadapter.NewHTTPProviderClient(&http.Client{Timeout: cfg.ProviderTimeout})
}

func newExchanger(client oauthadapter.ProviderClient, cfg config.Config, logger *zap.Logger) verifysvc.Exchanger {
	return verifysvc.NewCodeExchanger(client, cfg.Provider(), logger.Named("exchanger"))
}

func newSubmitter(registry repository.Registry, logger *zap.Logger) verifysvc.Submitter {
	return verifysvc.NewProofSubmitter(registry, logger.Named("submitter"))
}

func newVerificationService(
	sessions repository.SessionStore,
	exchanger verifysvc.Exchanger,
	prover *zk.Groth16Prover,
	submitter verifysvc.Submitter,
	cfg config.Config,
	recorder *metrics.Recorder,
	logger *zap.Logger,
) *verifysvc.Service {
	return verifysvc.NewService(
		sessions,
		exchanger,
		prover,
		submitter,
		cfg.Provider(),
		verifysvc.Options{SessionTTL: cfg.SessionTTL},
		recorder,
		logger.Named("verification"),
	)
}

func newIdentityTokens(cfg config.Config) (*jwt.Generator, error) {
	return jwt.NewGenerator([]byte(cfg.IdentityTokenSecret), cfg.IdentityTokenIssuer, 0)
}

func newAuthMiddleware(tokens *jwt.Generator) *httpmiddleware.Auth {
	return &httpmiddleware.Auth{Resolver: tokens}
}

func newRateLimiter(cfg config.Config, recorder *metrics.Recorder) *apimiddleware.RateLimiter {
	return apimiddleware.NewRateLimiter(cfg.RateLimitRPM, apimiddleware.WithRejectHook(recorder.RateLimited))
}

func newVerifyHandler(svc *verifysvc.Service, reader *verifysvc.Reader, prover *zk.Groth16Prover, cfg config.Config, logger *zap.Logger) *handler.VerifyHandler {
	return handler.NewVerifyHandler(svc, reader, prover, cfg.ResultRedirectURL, logger)
}

func newRegistryHandler(cfg config.Config, registry repository.Registry, logger *zap.Logger) *handler.RegistryHandler {
	if !cfg.RegistryGateway {
		return nil
	}
	return handler.NewRegistryHandler(registry, logger.Named("gateway"))
}

func newRouter(
	cfg config.Config,
	verify *handler.VerifyHandler,
	gateway *handler.RegistryHandler,
	auth *httpmiddleware.Auth,
	limiter *apimiddleware.RateLimiter,
	recorder *metrics.Recorder,
	logger *zap.Logger,
) *gin.Engine {
	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	return httptransport.NewRouter(httptransport.RouterParams{
		Config:      cfg,
		Verify:      verify,
		Gateway:     gateway,
		Auth:        auth,
		RateLimiter: limiter,
		Recorder:    recorder,
		Logger:      logger,
	})
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			logger.Info("http server listening",
				zap.String("addr", addr),
				zap.String("registry", cfg.RegistryBackend),
				zap.String("sessions", cfg.SessionStore),
				zap.Bool("gateway", cfg.RegistryGateway),
			)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(*telemetry.Provider) {}
