package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/sharon232323/bidmate/internal/api"
	"github.com/sharon232323/bidmate/internal/cache"
	"github.com/sharon232323/bidmate/internal/captcha"
	"github.com/sharon232323/bidmate/internal/config"
	"github.com/sharon232323/bidmate/internal/db"
	"github.com/sharon232323/bidmate/internal/email"
	"github.com/sharon232323/bidmate/internal/events"
	"github.com/sharon232323/bidmate/internal/notify"
	"github.com/sharon232323/bidmate/internal/services"
	"github.com/sharon232323/bidmate/internal/storage"
	"github.com/sharon232323/bidmate/internal/store"
	"github.com/sharon232323/bidmate/internal/store/mongostore"
	"github.com/sharon232323/bidmate/internal/store/pgstore"
	"github.com/sharon232323/bidmate/internal/tasks"
)

var runMode = flag.String("m", "all", "Run mode: 'api', 'bg' (background tasks), 'all' (default)")

// openStore connects the persistence backend selected by STORE_DRIVER and
// prepares its indexes or schema.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		sqlDB, err := db.ConnectPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		st := pgstore.New(sqlDB)
		if err := st.InitSchema(ctx); err != nil {
			_ = st.Close(ctx)
			return nil, err
		}
		return st, nil
	default:
		client, mongoDb, err := db.ConnectMongo(cfg.MongoURI, cfg.MongoDbName)
		if err != nil {
			return nil, err
		}
		st := mongostore.New(client, mongoDb)
		if err := st.EnsureIndexes(ctx); err != nil {
			_ = st.Close(ctx)
			return nil, err
		}
		return st, nil
	}
}

// buildEmailSender picks the primary sender and optionally tees into a file.
func buildEmailSender(cfg *config.Config, rdb *redis.Client) email.Sender {
	var primaryEmailSender email.Sender
	if os.Getenv("MOCK_SERVICES") == "true" {
		log.Println("MOCK_SERVICES enabled: Using Redis email sender.")
		primaryEmailSender = email.NewRedisSender(rdb, cfg)
	} else {
		log.Println("MOCK_SERVICES disabled or not set: Using SMTP/Logging email sender.")
		primaryEmailSender = email.NewSMTPSender(cfg)
	}

	compositeSender := email.NewCompositeEmailSender(primaryEmailSender)
	if cfg.LogEmails != "" {
		log.Printf("LOG_EMAILS set to '%s', enabling file email logger.", cfg.LogEmails)
		fileSender, err := email.NewFileEmailSender(cfg.LogEmails)
		if err != nil {
			log.Printf("WARNING: Failed to initialize file email sender (LOG_EMAILS='%s'): %v. Proceeding without file logging.", cfg.LogEmails, err)
		} else {
			compositeSender.AddSender(fileSender)
		}
	}
	return compositeSender
}

func main() {
	flag.Parse()

	cfg, err := config.Load(*runMode)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appCtx, cancelApp := context.WithCancel(context.Background())
	defer cancelApp()

	st, err := openStore(appCtx, cfg)
	if err != nil {
		log.Fatalf("Failed to open %s store: %v", cfg.StoreDriver, err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := st.Close(ctx); err != nil {
			log.Printf("Error closing store: %v", err)
		}
	}()

	redisClient, err := cache.ConnectRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer func() {
		if err := cache.DisconnectRedis(redisClient); err != nil {
			log.Printf("Error disconnecting from Redis: %v", err)
		}
	}()

	itemCache := cache.NewItemCache(redisClient, cfg.GetCacheTTL)
	itemService := services.NewItemService(st, itemCache)
	offerService := services.NewOfferService(st, itemCache)
	lifecycleService := services.NewLifecycleService(st, itemCache)
	contactService := services.NewContactService(st)

	// Post-commit notifications: asynq always, NATS when configured
	taskClient := tasks.NewClient(redisClient)
	defer taskClient.Close()
	taskNotifier := tasks.NewNotifier(taskClient)
	notifiers := notify.Composite{taskNotifier}
	var natsConn *nats.Conn
	if cfg.NatsURL != "" {
		var publisher *events.NATSPublisher
		publisher, natsConn, err = events.Connect(cfg.NatsURL)
		if err != nil {
			log.Fatalf("Failed to connect to NATS: %v", err)
		}
		defer natsConn.Drain()
		notifiers = append(notifiers, publisher)
	}

	var wg sync.WaitGroup

	shutdownChan := make(chan struct{}, 1)

	// Service API always runs
	serviceSrv := &http.Server{
		Addr:    ":" + cfg.ServiceApiPort,
		Handler: api.SetupServiceRouter(redisClient, shutdownChan),
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("Service API listening on :%s", cfg.ServiceApiPort)
		if err := serviceSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Service API ListenAndServe error: %v", err)
		}
		log.Println("Service API server stopped.")
	}()

	var mainApiSrv *http.Server
	var backgroundTaskSrv *asynq.Server

	log.Printf("Starting application in '%s' mode...", cfg.RunMode)

	apiMode := func() {
		s3StorageService, err := storage.NewS3Storage(appCtx, cfg)
		if err != nil {
			log.Fatalf("Failed to initialize S3 storage: %v", err)
		}
		mainApiRouter := api.SetupRouter(appCtx, cfg, itemService, offerService, lifecycleService, contactService,
			s3StorageService, captcha.NewTurnstileVerifier(cfg), notifiers, taskNotifier)
		mainApiSrv = &http.Server{
			Addr:    ":" + cfg.ApiPort,
			Handler: mainApiRouter,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Printf("Main API listening on :%s", cfg.ApiPort)
			if err := mainApiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Main API ListenAndServe error: %v", err)
			}
			log.Println("Main API server stopped.")
		}()
	}

	bgMode := func() {
		taskProcessor := tasks.NewTaskProcessor(cfg, buildEmailSender(cfg, redisClient), taskClient, itemService, offerService, contactService)
		var mux *asynq.ServeMux
		backgroundTaskSrv, mux = tasks.NewServer(redisClient, taskProcessor)
		// Start does not block; Shutdown below stops the workers.
		if err := backgroundTaskSrv.Start(mux); err != nil {
			log.Fatalf("Background task server error: %v", err)
		}
		log.Println("Background task server started.")
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
		log.Fatalf("Invalid run mode specified in config: %s.", cfg.RunMode)
	}

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("Received signal: %s. Shutting down gracefully...", sig)
	case <-shutdownChan:
		log.Println("Shutdown requested via Service API. Shutting down gracefully...")
	}

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()

	if err := serviceSrv.Shutdown(ctxShutdown); err != nil {
		log.Printf("Service API server shutdown error: %v", err)
	}
	if mainApiSrv != nil {
		if err := mainApiSrv.Shutdown(ctxShutdown); err != nil {
			log.Printf("Main API server shutdown error: %v", err)
		}
	}
	if backgroundTaskSrv != nil {
		backgroundTaskSrv.Shutdown()
	}
	cancelApp()

	log.Println("Waiting for servers to stop...")
	wg.Wait()

	log.Println("Server gracefully stopped")
}
