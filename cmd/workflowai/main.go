package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/tcdynamics/workflowai/app/controllers"
	"github.com/tcdynamics/workflowai/app/repository"
	"github.com/tcdynamics/workflowai/internal/pkg/billing"
	"github.com/tcdynamics/workflowai/internal/pkg/cache"
	"github.com/tcdynamics/workflowai/internal/pkg/config"
	"github.com/tcdynamics/workflowai/internal/pkg/database"
	"github.com/tcdynamics/workflowai/internal/pkg/dedup"
	"github.com/tcdynamics/workflowai/internal/pkg/env"
	"github.com/tcdynamics/workflowai/internal/pkg/hcaptcha"
	"github.com/tcdynamics/workflowai/internal/pkg/jobqueue"
	"github.com/tcdynamics/workflowai/internal/pkg/logging"
	"github.com/tcdynamics/workflowai/internal/pkg/mail"
	"github.com/tcdynamics/workflowai/internal/pkg/polar"
	"github.com/tcdynamics/workflowai/internal/pkg/ratelimit"
	"github.com/tcdynamics/workflowai/internal/pkg/router"
	"github.com/tcdynamics/workflowai/internal/pkg/stripeconnect"
)

const (
	shutdownTimeout = 10 * time.Second
	bodyLimit       = 1 << 20
	defaultFrom     = "no-reply@workflowai.local"
	mailWorkers     = 2
)

func main() {
	loadedEnvFile := env.SetupEnvFile()
	cfg := config.Load()

	format := "json"
	if cfg.IsDev() {
		format = "console"
	}
	logging.Init(logging.Config{Level: cfg.App.LogLevel, Format: format, Component: "workflowai"})
	if !loadedEnvFile {
		log.Info().Msg("no .env file found, using process environment")
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	app, cleanup, err := NewApplication(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
	defer cleanup()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	log.Info().Str("addr", cfg.ListenAddr()).Str("env", cfg.App.Env).Msg("workflowai listening")
	if err := serve(app, cfg.ListenAddr(), quit); err != nil {
		log.Error().Err(err).Msg("http server stopped")
		// os.Exit skips deferred calls
		cleanup()
		os.Exit(1)
	}
}

// serve runs the listener until a signal arrives, then shuts down within
// shutdownTimeout. A listener failure is returned to the caller.
func serve(app *fiber.App, addr string, quit <-chan os.Signal) error {
	listenErr := make(chan error, 1)
	go func() {
		listenErr <- app.Listen(addr)
	}()

	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			log.Error().Err(err).Msg("graceful shutdown failed")
		}
		return nil
	case err := <-listenErr:
		return err
	}
}

// NewApplication wires storage, billing and HTTP layers. The returned cleanup
// releases the database and cache connections.
func NewApplication(cfg config.Config) (*fiber.App, func(), error) {
	db, err := database.SetupDatabase(cfg.Database)
	if err != nil {
		return nil, nil, err
	}

	var redisClient *goredis.Client
	if cfg.Cache.Enabled() {
		client, err := cache.SetupCache(context.Background(), cache.Config{
			Host:     cfg.Cache.Host,
			Port:     cfg.Cache.Port,
			Password: cfg.Cache.Password,
		})
		switch {
		case err == nil:
			redisClient = client
		case cfg.Polar.DedupBackend == config.DedupBackendRedis:
			return nil, nil, err
		default:
			log.Warn().Err(err).Msg("redis unavailable, continuing without cache")
		}
	}

	sender, from := newMailSender(cfg)
	var queue *jobqueue.Queue
	if redisClient != nil {
		queue = jobqueue.NewQueue(redisClient, mailWorkers)
		queue.Register(jobqueue.JobTypeSendMail, jobqueue.MailDeliveryHandler(sender))
		sender = jobqueue.NewMailSender(queue)
		queue.Start()
	}

	cleanup := func() {
		if queue != nil {
			queue.Stop()
		}
		if err := cache.Close(); err != nil {
			log.Warn().Err(err).Msg("closing redis client failed")
		}
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}

	billingRepo := billing.NewRepository(db)
	plans, err := billing.NewPlanResolver(cfg.Polar.PlanConfig())
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	dispatcher := billing.NewDispatcher(billingRepo, plans, billing.NewMailNotifier(sender, from, cfg.NotificationEmail))
	polarProcessor := billing.NewWebhookProcessor(
		polar.NewVerifier(cfg.Polar.WebhookSecret),
		newDedupCache(cfg, redisClient),
		billingRepo,
		dispatcher,
	)
	if cfg.Polar.WebhookSecret == "" {
		log.Warn().Msg("POLAR_WEBHOOK_SECRET is not set, polar webhooks will be rejected")
	}
	stripeProcessor := stripeconnect.NewProcessor(cfg.StripeWebhookSecret, billingRepo, billingRepo,
		stripeconnect.WithNotifications(sender, from, cfg.NotificationEmail))

	var captcha hcaptcha.Verifier = hcaptcha.Disabled{}
	if client := hcaptcha.NewClient(cfg.HCaptchaSecret); client.Enabled() {
		captcha = client
	}

	repos := repository.NewFactory(db)
	submissions := repos.GetSubmissionRepository()
	apiKeys := repos.GetAPIKeyRepository()

	appCfg := fiber.Config{
		AppName:      "WorkFlowAI",
		BodyLimit:    bodyLimit,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		ErrorHandler: jsonErrorHandler,
	}
	router.ProxyConfig{Header: cfg.ProxyHeader, Trusted: cfg.TrustedProxies}.Apply(&appCfg)
	app := fiber.New(appCfg)

	// recovery and logging
	app.Use(recover.New(), logger.New())

	if specPath, ok := findOpenAPISpec(); ok {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/docs/api/",
			FilePath: specPath,
			Path:     "v1",
		}))
	} else {
		log.Warn().Msg("openapi document not found, /docs/api disabled")
	}

	router.InstallRouter(app, router.Dependencies{
		Webhooks:         controllers.NewWebhookController(polarProcessor, stripeProcessor),
		Forms:            controllers.NewFormController(submissions, captcha, sender, from, cfg.NotificationEmail),
		APIKeys:          controllers.NewAPIKeyController(apiKeys, billingRepo),
		Health:           controllers.NewHealthController(db, redisClient),
		APIKeyRepository: apiKeys,
		AdminToken:       cfg.DashboardAdminToken,
		MetricsUser:      cfg.MetricsUser,
		MetricsPassword:  cfg.MetricsPassword,
		CORSAllowOrigins: cfg.CORSAllowOrigins,
		FormLimiter: ratelimit.New(ratelimit.Config{
			Max:        cfg.FormRateLimit,
			Expiration: time.Minute,
			Storage:    ratelimit.NewStorage(redisClient),
			KeyGenerator: func(c *fiber.Ctx) string {
				return "form:" + controllers.GetClientIP(c)
			},
		}),
	})

	return app, cleanup, nil
}

func newMailSender(cfg config.Config) (mail.Sender, string) {
	if cfg.SMTP.Host == "" {
		log.Warn().Msg("SMTP_HOST not set, mails are logged instead of sent")
		from := cfg.SMTP.Sender
		if from == "" {
			from = defaultFrom
		}
		return mail.LogSender{}, from
	}
	sender := mail.NewSMTPSender(cfg.SMTP)
	return sender, sender.DefaultFrom()
}

func newDedupCache(cfg config.Config, client *goredis.Client) dedup.Cache {
	if cfg.Polar.DedupBackend == config.DedupBackendRedis && client != nil {
		log.Info().Msg("using redis webhook dedup cache")
		return dedup.NewRedisCache(client, "", dedup.DefaultTTL)
	}
	return dedup.NewMemoryCache(dedup.DefaultTTL, dedup.DefaultMaxEntries)
}

// findOpenAPISpec looks for the OpenAPI document relative to the working directory.
func findOpenAPISpec() (string, bool) {
	for _, base := range []string{"./", "../../", "../../../"} {
		path := base + "public/docs/v1/openapi.yml"
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}

func jsonErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := "Internal server error"
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		msg = fe.Message
	} else {
		log.Error().Err(err).Str("path", c.Path()).Msg("unhandled request error")
	}
	return c.Status(code).JSON(fiber.Map{"error": msg})
}
