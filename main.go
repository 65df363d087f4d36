package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	aws_config "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/PabloIxcamparij/SEGIREC-Server/internal/api"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/api/handlers"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/audit"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/cache"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/config"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/db"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/dispatch"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/email"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/logging"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/notify"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/services"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/storage"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/tasks"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/templates"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/whatsapp"
)

var runMode = flag.String("m", "all", "Run mode: 'api', 'bg' (queued runs worker), 'all' (default)")

// auditStore is what both audit backends provide.
type auditStore interface {
	audit.Store
	handlers.ActivityLister
}

func main() {
	flag.Parse()

	cfg, err := config.Load(*runMode)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := logging.Setup(cfg); err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}

	mongoClient, mongoDb, err := db.ConnectDB(cfg.MongoURI, cfg.MongoDbName)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() {
		if err := db.DisconnectDB(mongoClient); err != nil {
			log.Errorf("Error disconnecting from MongoDB: %v", err)
		}
	}()
	indexCtx, cancelIndex := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.EnsureIndexes(indexCtx, mongoDb); err != nil {
		log.Fatalf("Failed to create indexes: %v", err)
	}
	cancelIndex()

	redisClient, err := cache.ConnectRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer func() {
		if err := cache.DisconnectRedis(redisClient); err != nil {
			log.Errorf("Error disconnecting from Redis: %v", err)
		}
	}()

	// Audit store
	var store auditStore = audit.NewMongoStore(mongoDb)
	if cfg.AuditStore == "postgres" {
		var sqlDB *sql.DB
		sqlDB, err = db.ConnectPostgres(cfg.PostgresURL)
		if err != nil {
			log.Fatalf("Failed to connect to PostgreSQL: %v", err)
		}
		defer sqlDB.Close()
		if err := db.MigrateUp(sqlDB); err != nil {
			log.Fatalf("Failed to migrate audit schema: %v", err)
		}
		store = audit.NewPostgresStore(sqlDB)
	}
	log.Infof("Audit store: %s", cfg.AuditStore)

	// Email
	sender, err := newEmailSender(cfg, redisClient)
	if err != nil {
		log.Fatalf("Failed to initialize email sender: %v", err)
	}
	mailer := email.NewMailer(sender, cfg.SmtpFromAddress)

	// WhatsApp
	var waSender dispatch.WhatsAppSender
	if waClient := whatsapp.NewClient(cfg); waClient.Configured() {
		waSender = waClient
	} else {
		log.Warn("WhatsApp credentials not configured; WhatsApp sends will fail.")
	}

	// Templates and settings
	templateService := services.NewTemplateService(mongoDb)
	resolver := templates.NewResolver(templateService, cfg.DefaultSubject)
	templateService.SetCompiler(resolver)

	settingsService := services.NewSettingsService(services.NewMongoSettingsRepository(mongoDb), cfg, redisClient)
	loadCtx, cancelLoad := context.WithTimeout(context.Background(), 10*time.Second)
	if err := settingsService.Load(loadCtx); err != nil {
		log.Fatalf("Failed to load settings: %v", err)
	}
	cancelLoad()

	// Completion reports
	var archive storage.ReportArchive
	s3Archive, err := storage.NewS3Archive(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize report archive: %v", err)
	}
	if s3Archive != nil {
		archive = s3Archive
	}

	// Pipeline
	dispatcher := dispatch.NewDispatcher(mailer, waSender, resolver, dispatch.DispatcherConfig{
		Concurrency:    cfg.DispatchConcurrency,
		EmailRetry:     dispatch.RetryPolicy{Attempts: cfg.EmailAttempts, BaseDelay: cfg.EmailRetryBaseDelay},
		WhatsAppRetry:  dispatch.RetryPolicy{Attempts: cfg.WhatsAppAttempts, BaseDelay: cfg.WhatsAppRetryBaseDelay},
		NormalizePhone: whatsapp.PhoneNormalizer(cfg.WhatsAppCountryCode),
	})
	pipeline := dispatch.NewPipeline(dispatch.PipelineDeps{
		Dispatcher:       dispatcher,
		Policy:           settingsService,
		Recorder:         audit.NewPersister(store),
		Notifier:         notify.NewNotifier(mailer, archive),
		WhatsAppTemplate: cfg.WhatsAppTemplate,
		DefaultSubject:   cfg.DefaultSubject,
	})
	runner := dispatch.NewRunner()

	// Services used by the API
	userService := services.NewUserService(mongoDb)
	authService := services.NewAuthService(userService, cfg.JwtSecret, cfg.JwtTTL)
	priorityService := services.NewPriorityService(userService, cache.NewRedisStore(redisClient), mailer, services.PriorityConfig{
		Secret:      cfg.JwtSecret,
		CodeTTL:     cfg.PriorityCodeTTL,
		TokenTTL:    cfg.PriorityTokenTTL,
		MaxAttempts: cfg.PriorityCodeMaxAttempts,
	})

	taskClient := tasks.NewClient(redisClient)
	defer taskClient.Close()

	if err := handlers.RegisterValidators(); err != nil {
		log.Fatalf("Failed to register validators: %v", err)
	}

	// Settings changes made by other instances.
	bgCtx, cancelBg := context.WithCancel(context.Background())
	defer cancelBg()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := settingsService.SubscribeToChanges(bgCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Errorf("Settings subscription stopped: %v", err)
		}
	}()

	shutdownChan := make(chan struct{}, 1)

	// Service API (always runs)
	serviceSrv := &http.Server{
		Addr:    ":" + cfg.ServiceApiPort,
		Handler: api.SetupServiceRouter(redisClient, shutdownChan),
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Infof("Service API listening on :%s", cfg.ServiceApiPort)
		if err := serviceSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Service API ListenAndServe error: %v", err)
		}
		log.Info("Service API server stopped.")
	}()

	var (
		mainApiSrv  *http.Server
		rateLimiter interface{ Close() }
		worker      *asynq.Server
	)

	log.Infof("Starting application in '%s' mode (dispatch mode %s)...", cfg.RunMode, cfg.DispatchMode)

	apiMode := func() {
		router, limiter := api.SetupRouter(cfg, api.Deps{
			Users:      userService,
			Auth:       authService,
			Priority:   priorityService,
			Templates:  templateService,
			Settings:   settingsService,
			Activities: store,
			Planner:    pipeline,
			Runner:     runner,
			Queue:      tasks.NewEnqueuer(taskClient),
		})
		rateLimiter = limiter
		mainApiSrv = &http.Server{
			Addr:    ":" + cfg.ApiPort,
			Handler: router,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Infof("Main API listening on :%s", cfg.ApiPort)
			if err := mainApiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatalf("Main API ListenAndServe error: %v", err)
			}
			log.Info("Main API server stopped.")
		}()
	}

	bgMode := func() {
		worker = tasks.NewServer(redisClient, 2)
		mux := tasks.NewServeMux(tasks.NewTaskProcessor(pipeline))
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info("Background worker starting...")
			if err := worker.Run(mux); err != nil {
				log.Fatalf("Background worker error: %v", err)
			}
			log.Info("Background worker stopped.")
		}()
	}

	switch cfg.RunMode {
	case "api":
		apiMode()
	case "bg":
		bgMode()
	case "all":
		apiMode()
		bgMode()
	default:
		log.Fatalf("Invalid run mode: %s", cfg.RunMode)
	}

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Infof("Received signal: %s. Shutting down gracefully...", sig)
	case <-shutdownChan:
		log.Info("Shutdown requested via Service API. Shutting down gracefully...")
	}

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()

	if mainApiSrv != nil {
		if err := mainApiSrv.Shutdown(ctxShutdown); err != nil {
			log.Errorf("Main API server shutdown error: %v", err)
		}
		rateLimiter.Close()
	}
	// In-flight runs stop between batches, then record and report what they sent.
	if err := runner.Shutdown(ctxShutdown); err != nil {
		log.Errorf("Runs still active at shutdown: %v (%v)", runner.Active(), err)
	}
	if worker != nil {
		worker.Shutdown()
	}
	sender.Close()
	if err := serviceSrv.Shutdown(ctxShutdown); err != nil {
		log.Errorf("Service API server shutdown error: %v", err)
	}
	cancelBg()

	wg.Wait()
	log.Info("Server gracefully stopped")
}

// newEmailSender picks the transport. MOCK_SERVICES overrides it with the
// Redis sender so end-to-end tests can read mail back, and LOG_EMAILS adds a
// file copy of everything sent.
func newEmailSender(cfg *config.Config, rdb *redis.Client) (*email.CompositeEmailSender, error) {
	var primary email.Sender
	switch {
	case cfg.MockServices:
		log.Info("MOCK_SERVICES enabled: using Redis email sender.")
		primary = email.NewRedisSender(rdb, cfg.SmtpFromAddress)
	case cfg.EmailTransport == "ses":
		awsCfg, err := aws_config.LoadDefaultConfig(context.TODO(),
			aws_config.WithRegion(cfg.AwsRegion),
			aws_config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AwsAccessKeyID,
				cfg.AwsSecretAccessKey,
				"",
			)),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config for SES: %w", err)
		}
		primary = email.NewSESSender(sesv2.NewFromConfig(awsCfg), cfg.SmtpFromAddress)
	case cfg.EmailTransport == "log":
		primary = email.NewLoggingSender(cfg.SmtpFromAddress)
	default:
		primary = email.NewSMTPSender(cfg, cfg.DispatchConcurrency)
	}

	composite := email.NewCompositeEmailSender(primary)
	if cfg.LogEmails != "" {
		fileSender, err := email.NewFileEmailSender(cfg.LogEmails)
		if err != nil {
			log.Warnf("Failed to initialize file email sender (LOG_EMAILS=%q): %v", cfg.LogEmails, err)
		} else {
			composite.AddSender(fileSender)
			log.Infof("Copying sent emails to %s", cfg.LogEmails)
		}
	}
	return composite, nil
}
