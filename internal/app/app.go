package app

import (
	"context"
	"fmt"
	"os"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/promolink/internal/common"
	"github.com/ternarybob/promolink/internal/handlers"
	"github.com/ternarybob/promolink/internal/httpclient"
	"github.com/ternarybob/promolink/internal/interfaces"
	"github.com/ternarybob/promolink/internal/metrics"
	"github.com/ternarybob/promolink/internal/services/affiliate"
	"github.com/ternarybob/promolink/internal/services/dedup"
	"github.com/ternarybob/promolink/internal/services/links"
	"github.com/ternarybob/promolink/internal/services/metadata"
	"github.com/ternarybob/promolink/internal/services/pipeline"
	"github.com/ternarybob/promolink/internal/services/publisher"
	"github.com/ternarybob/promolink/internal/services/rewriter"
	"github.com/ternarybob/promolink/internal/services/settings"
	"github.com/ternarybob/promolink/internal/storage/badger"
	"github.com/ternarybob/promolink/internal/storage/redis"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	ctx            context.Context
	cancelCtx      context.CancelFunc
	wg             sync.WaitGroup
	StorageManager interfaces.StorageManager
	redisClient    *goredis.Client

	// Shared infrastructure
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry
	Secrets  *common.SecretResolver
	Fetcher  *httpclient.Fetcher

	// Link services
	Converters *affiliate.Registry
	Processor  *links.Processor
	Scraper    *metadata.Scraper

	// Offer pipeline
	Settings   *settings.Service
	Gate       *dedup.Gate
	Rewriter   *rewriter.Service
	Publishers []interfaces.Publisher
	Telegram   *publisher.Telegram
	Queue      *pipeline.Queue
	Pipeline   *pipeline.Service
	Worker     *pipeline.Worker
	Scheduler  *pipeline.Scheduler

	// HTTP handlers
	APIHandler      *handlers.APIHandler
	LinksHandler    *handlers.LinksHandler
	OffersHandler   *handlers.OffersHandler
	SettingsHandler *handlers.SettingsHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())

	app := &App{
		Config:    cfg,
		Logger:    logger,
		ctx:       ctx,
		cancelCtx: cancel,
	}

	if err := app.initDatabase(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := app.initServices(); err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	logger.Info().
		Str("history_backend", cfg.History.Backend).
		Str("rewriter", cfg.Rewriter.Provider).
		Int("publishers", len(app.Publishers)).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase initializes the storage layer (Badger, plus Redis for history when configured)
func (a *App) initDatabase() error {
	storageManager, err := badger.NewManager(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}

	a.StorageManager = storageManager
	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")

	if a.Config.History.Backend == "redis" {
		client, err := redis.Connect(a.ctx, a.Config.History.RedisURL)
		if err != nil {
			return err
		}
		a.redisClient = client
		a.Logger.Debug().Msg("Redis history backend connected")
	}

	return nil
}

func (a *App) historyStorage() interfaces.HistoryStorage {
	if a.redisClient != nil {
		return redis.NewHistoryStorage(a.redisClient, a.Config.History.Retention.Std(), a.Logger)
	}
	return a.StorageManager.HistoryStorage()
}

// initServices initializes all business services in dependency order
func (a *App) initServices() error {
	cfg := a.Config

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.New(a.Registry)

	kv := a.StorageManager.KeyValueStorage()
	a.Secrets = common.NewSecretResolver(kv)

	a.Settings = settings.NewService(kv, a.Logger)
	if err := a.Settings.SeedDefaults(a.ctx); err != nil {
		return fmt.Errorf("failed to seed settings: %w", err)
	}

	a.Fetcher = httpclient.NewFetcher(a.Logger,
		httpclient.WithUserAgent(cfg.Links.UserAgent),
		httpclient.WithTimeout(cfg.Scraper.RequestTimeout.Std()),
	)

	// 1. Affiliate converters
	shopee := affiliate.NewShopeeConverter(cfg.Shopee, a.Fetcher, a.Secrets, a.Metrics, a.Logger)
	a.Converters = affiliate.NewRegistry(a.Logger,
		affiliate.NewAmazonConverter(cfg.Amazon.Tag, a.Metrics, a.Logger),
		affiliate.NewMercadoLivreConverter(cfg.MercadoLivre, a.Fetcher, a.Secrets, a.Metrics, a.Logger),
		affiliate.NewAliExpressConverter(cfg.AliExpress, a.Fetcher, a.Secrets, a.Metrics, a.Logger),
		shopee,
	)

	// 2. Link processing
	a.Processor = links.NewProcessor(
		links.NewDomainList(cfg.Links.Blacklist),
		links.NewDomainList(cfg.Links.OwnChannels),
		links.NewExpander(a.Fetcher, cfg.Links.ExpandTimeout.Std(), a.Logger),
		a.Converters,
		a.Logger,
		links.WithMaxParallel(cfg.Links.MaxParallel),
		links.WithMetrics(a.Metrics),
	)
	a.Scraper = metadata.NewScraper(cfg.Scraper, a.Fetcher, shopee, a.Logger)

	// 3. Duplicate gate
	a.Gate = dedup.NewGate(a.historyStorage(), a.StorageManager.PostStorage(), cfg.Dedup, a.Logger,
		dedup.WithGateMetrics(a.Metrics))

	// 4. Rewriter (provider "none" passes text through)
	provider, err := rewriter.NewProvider(cfg.Rewriter, a.Secrets, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create rewriter provider: %w", err)
	}
	a.Rewriter = rewriter.NewService(provider, cfg.Rewriter, a.Logger)

	// 5. Publishers: Telegram first so it is the primary destination
	if err := a.initPublishers(); err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.Pipeline.DownloadsDir, 0755); err != nil {
		return fmt.Errorf("failed to create downloads directory: %w", err)
	}

	// 6. Pipeline, worker and history purge
	a.Queue = pipeline.NewQueue(cfg.Pipeline.QueueSize)

	var notifier interfaces.Notifier
	if a.Telegram != nil {
		notifier = a.Telegram
	}

	a.Pipeline = pipeline.NewService(pipeline.Dependencies{
		Settings:  a.Settings,
		Processor: a.Processor,
		Scraper:   a.Scraper,
		Gate:      a.Gate,
		Rewriter:  a.Rewriter,
		Offers:    a.StorageManager.OfferStore(),
		Notifier:  notifier,
		Queue:     a.Queue,
	}, cfg.Pipeline, a.Logger)

	a.Worker = pipeline.NewWorker(a.Queue, a.Publishers, a.Gate, a.Settings, a.Logger,
		pipeline.WithWorkerMetrics(a.Metrics),
		pipeline.WithWorkerNotifier(notifier),
	)

	a.Scheduler = pipeline.NewScheduler(a.Gate, cfg.History, a.Logger)
	return nil
}

func (a *App) initPublishers() error {
	cfg := a.Config

	token := a.Secrets.Resolve(a.ctx, common.SecretTelegramBotToken, cfg.Telegram.BotToken)
	if token == "" {
		a.Logger.Warn().Msg("Telegram bot token not configured, Telegram publishing disabled")
	} else if cfg.Telegram.TargetChannel == "" {
		a.Logger.Warn().Msg("Telegram target channel not configured, Telegram publishing disabled")
	} else {
		bot, err := tgbotapi.NewBotAPI(token)
		if err != nil {
			return fmt.Errorf("failed to connect telegram bot: %w", err)
		}
		a.Telegram = publisher.NewTelegram(bot, cfg.Telegram, a.Logger,
			publisher.WithAdminResolver(a.Settings.AdminID),
		)
		a.Publishers = append(a.Publishers, a.Telegram)
		a.Logger.Info().Str("bot", bot.Self.UserName).Str("target", cfg.Telegram.TargetChannel).Msg("Telegram publisher ready")
	}

	if cfg.WhatsApp.Enabled {
		wa := publisher.NewWhatsApp(cfg.WhatsApp, a.Fetcher, a.Secrets, a.Logger)
		if wa.Enabled(a.ctx) {
			a.Publishers = append(a.Publishers, wa)
			a.Logger.Info().Str("destination", cfg.WhatsApp.Destination).Msg("WhatsApp publisher ready")
		} else {
			a.Logger.Warn().Msg("WhatsApp enabled but instance, destination or token missing")
		}
	}

	if len(a.Publishers) == 0 {
		a.Logger.Warn().Msg("No publisher configured, queued offers will fail to publish")
	}
	return nil
}

// initHandlers initializes all HTTP handlers
func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler(a.Logger)
	a.LinksHandler = handlers.NewLinksHandler(a.Processor, a.Converters, a.Logger)
	a.OffersHandler = handlers.NewOffersHandler(a.Pipeline, a.Logger)
	a.SettingsHandler = handlers.NewSettingsHandler(a.Settings, a.Logger)
}

// Start runs the publish worker and the history purge schedule
func (a *App) Start() error {
	if err := a.Scheduler.Start(); err != nil {
		return err
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.Worker.Run(a.ctx)
	}()
	return nil
}

// Close closes all application resources
func (a *App) Close() error {
	if a.cancelCtx != nil {
		a.cancelCtx()
	}
	a.wg.Wait()

	if a.Scheduler != nil {
		a.Scheduler.Stop()
		a.Logger.Info().Msg("Scheduler stopped")
	}

	if a.Queue != nil && a.Queue.Len() > 0 {
		a.Logger.Warn().Int("dropped", a.Queue.Len()).Msg("Queued offers discarded on shutdown")
	}

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close redis client")
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
