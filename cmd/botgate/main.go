package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	cacheadapter "github.com/smallbiznis/botgate/internal/adapter/cache"
	oauthadapter "github.com/smallbiznis/botgate/internal/adapter/oauth"
	queueadapter "github.com/smallbiznis/botgate/internal/adapter/queue"
	"github.com/smallbiznis/botgate/internal/config"
	"github.com/smallbiznis/botgate/internal/crypto"
	httptransport "github.com/smallbiznis/botgate/internal/http"
	"github.com/smallbiznis/botgate/internal/http/handler"
	"github.com/smallbiznis/botgate/internal/identity"
	apimiddleware "github.com/smallbiznis/botgate/internal/middleware"
	"github.com/smallbiznis/botgate/internal/repository"
	"github.com/smallbiznis/botgate/internal/server"
	"github.com/smallbiznis/botgate/internal/service"
	"github.com/smallbiznis/botgate/internal/signature"
	"github.com/smallbiznis/botgate/internal/telemetry"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newSnowflake,
			newRedisClient,
			newCipher,
			newVerifier,
			newSessionStore,
			newProviderConfig,
			newProviderClient,
			newTicketMinter,
			newQueueClient,
			newRateLimiter,
			newSessionService,
			newDispatchService,
			newWebhookHandler,
			newOAuthHandler,
			httptransport.NewRouter,
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
	return logger, nil
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

func newSnowflake() (*snowflake.Node, error) {
	node, err := snowflake.NewNode(1)
	return node, err
}

func newRedisClient(lc fx.Lifecycle, cfg config.Config) (redis.UniversalClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

func newCipher(cfg config.Config, logger *zap.Logger) (*crypto.Cipher, error) {
	key := cfg.EncryptionKey
	if len(key) == 0 {
		// An ephemeral key invalidates every existing session on restart and
		// breaks multi-instance deployments sharing one store.
		logger.Warn("BOTGATE_ENCRYPTION_KEY not set, generating an ephemeral key")
		generated, err := crypto.GenerateKey()
		if err != nil {
			return nil, err
		}
		key = generated
	}
	return crypto.NewCipher(key)
}

func newVerifier(cfg config.Config) *signature.Verifier {
	return signature.NewVerifier(cfg.SigningSecret, signature.WithReplayWindow(cfg.ReplayWindow))
}

func newSessionStore(client redis.UniversalClient, cipher *crypto.Cipher, cfg config.Config, logger *zap.Logger) repository.SessionStore {
	return cacheadapter.NewRedisSessionStore(client, cipher, cfg.SessionTTL, logger)
}

func newProviderConfig(cfg config.Config) oauthadapter.ProviderConfig {
	return oauthadapter.ProviderConfig{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
	}
}

func newProviderClient() oauthadapter.ProviderClient {
	return oauthadapter.NewHTTPProviderClient(nil)
}

func newTicketMinter(cfg config.Config, logger *zap.Logger) (identity.Minter, error) {
	key := cfg.DispatchKey
	if len(key) == 0 {
		logger.Warn("DISPATCH_SIGNING_KEY not set, generating an ephemeral key; the execution tier cannot verify tickets signed with it")
		generated, err := crypto.GenerateKey()
		if err != nil {
			return nil, err
		}
		key = generated
	}
	return identity.NewJoseMinter(cfg.ServiceAccount, key, nil)
}

func newQueueClient(cfg config.Config) queueadapter.Client {
	return queueadapter.NewHTTPClient(nil, cfg.QueueURL, cfg.QueueName)
}

func newRateLimiter(cfg config.Config) *apimiddleware.RateLimiter {
	return apimiddleware.NewRateLimiter(cfg.RateLimitRPM)
}

func newSessionService(store repository.SessionStore, client oauthadapter.ProviderClient, provider oauthadapter.ProviderConfig, logger *zap.Logger) *service.SessionService {
	return service.NewSessionService(store, client, provider, logger)
}

func newDispatchService(minter identity.Minter, queueClient queueadapter.Client, node *snowflake.Node, cfg config.Config, logger *zap.Logger) *service.DispatchService {
	return service.NewDispatchService(minter, queueClient, node, cfg.WorkerURL, cfg.DispatchTimeout, logger)
}

func newWebhookHandler(sessions *service.SessionService, dispatch *service.DispatchService, logger *zap.Logger) *handler.WebhookHandler {
	return handler.NewWebhookHandler(sessions, dispatch, logger)
}

func newOAuthHandler(sessions *service.SessionService, client oauthadapter.ProviderClient, provider oauthadapter.ProviderConfig, cfg config.Config, logger *zap.Logger) *handler.OAuthHandler {
	return handler.NewOAuthHandler(sessions, client, provider, cfg.RedirectURI, logger)
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
