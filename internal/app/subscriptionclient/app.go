package subscriptionclient

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/course-subscriptions/internal/apiclient"
	"github.com/magabrotheeeer/course-subscriptions/internal/cache"
	"github.com/magabrotheeeer/course-subscriptions/internal/config"
	"github.com/magabrotheeeer/course-subscriptions/internal/http/middlewarectx"
	"github.com/magabrotheeeer/course-subscriptions/internal/lib/jwt"
	"github.com/magabrotheeeer/course-subscriptions/internal/lib/sl"
	"github.com/magabrotheeeer/course-subscriptions/internal/metrics"
	"github.com/magabrotheeeer/course-subscriptions/internal/paymentprovider"
	"github.com/magabrotheeeer/course-subscriptions/internal/rabbitmq"
	"github.com/magabrotheeeer/course-subscriptions/internal/services/events"
	"github.com/magabrotheeeer/course-subscriptions/internal/session"
)

const shutdownTimeout = 15 * time.Second

// App: собранный процесс BFF.
type App struct {
	server   *http.Server
	logger   *slog.Logger
	sessions *session.Registry
	cfg      config.Sessions

	cache   *cache.Cache
	amqp    *amqp.Connection
	channel *amqp.Channel
}

// New собирает приложение. Redis и RabbitMQ необязательны: без адреса
// каталог не кэшируется, события не публикуются и не читаются.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	app := &App{logger: logger, cfg: cfg.Sessions}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	subMetrics := metrics.New(registry)

	deps := session.Deps{
		Client: apiclient.NewClient(cfg.BaseURL, nil,
			apiclient.WithHTTPClient(&http.Client{Timeout: cfg.TimeoutAPI}),
			apiclient.WithReadRetry(cfg.ReadRetries, cfg.ReadRetryDelay),
			apiclient.WithLogger(logger),
		),
		Provider: paymentprovider.NewStripe(cfg.SecretKey, cfg.CircuitBreaker, logger),
		Metrics:  subMetrics,
		PlansTTL: cfg.PlansCacheTTL,
		Log:      logger,
	}

	if cfg.AddressRedis != "" {
		cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
		if err != nil {
			return nil, err
		}
		app.cache = cacheRedis
		deps.PlansCache = cacheRedis
	} else {
		logger.Warn("redis address is not set, plans catalog is not cached")
	}

	if cfg.RabbitMQURL != "" {
		conn, err := rabbitmq.Connect(ctx, cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay, logger)
		if err != nil {
			app.close()
			return nil, err
		}
		app.amqp = conn
		ch, err := rabbitmq.SetupChannel(conn, rabbitmq.Exchange, rabbitmq.GetSubscriptionQueues())
		if err != nil {
			app.close()
			return nil, err
		}
		app.channel = ch
		deps.Publisher = events.NewPublisher(ch, logger)
	} else {
		logger.Warn("rabbitmq url is not set, checkout events are not published")
	}

	app.sessions = session.NewRegistry(deps)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, RouteDeps{
		Tokens:       jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL),
		Sessions:     app.sessions,
		Limiter:      middlewarectx.NewRateLimiter(cfg.RateLimit, cfg.RateBurst),
		Metrics:      promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		SessionCount: app.sessions.Len,
	})

	app.server = &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP * 3, // оплата ждёт провайдера и платформу
		IdleTimeout:  cfg.IdleTimeout,
	}
	return app, nil
}

// Run запускает HTTP-сервер, уборку сессий и чтение уведомлений платформы
// до отмены ctx.
func (a *App) Run(ctx context.Context) error {
	const op = "subscriptionclient.Run"

	go a.sessions.RunSweeper(ctx, a.cfg.SessionSweep, a.cfg.SessionIdle)

	if a.channel != nil {
		handler := events.SubscriptionUpdatedHandler(a.sessions, a.logger)
		if err := rabbitmq.ConsumerMessage(ctx, a.channel, rabbitmq.UpdatedQueue, handler, a.logger); err != nil {
			a.close()
			return err
		}
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		a.close()
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		if err != nil {
			a.logger.Error("graceful shutdown failed", sl.Op(op), sl.Err(err))
		}
		a.close()
		return err
	}
}

func (a *App) close() {
	if a.channel != nil {
		if err := a.channel.Close(); err != nil {
			a.logger.Warn("failed to close rabbitmq channel", sl.Err(err))
		}
	}
	if a.amqp != nil {
		if err := a.amqp.Close(); err != nil {
			a.logger.Warn("failed to close rabbitmq connection", sl.Err(err))
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn("failed to close redis", sl.Err(err))
		}
	}
}
