package main

import (
	"context"
	"log"
	"os/signal"
	"sync"
	"syscall"

	"github.com/go-co-op/gocron"
	"github.com/rewired-gh/bandwatch/internal/config"
	"github.com/rewired-gh/bandwatch/internal/logger"
	"github.com/rewired-gh/bandwatch/internal/models"
	"github.com/rewired-gh/bandwatch/internal/monitor"
	"github.com/rewired-gh/bandwatch/internal/pricesource"
	"github.com/rewired-gh/bandwatch/internal/session"
	"github.com/rewired-gh/bandwatch/internal/storage"
	"github.com/rewired-gh/bandwatch/internal/telegram"
	"github.com/spf13/pflag"
)

var (
	configPath = pflag.String("config", "configs/config.yaml", "Path to configuration file")
	once       = pflag.Bool("once", false, "Run a single session now even if a schedule is configured")
)

func main() {
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	defer logger.Sync()
	logger.Info("Configuration loaded from %s", *configPath)

	gate, err := cfg.Gate()
	if err != nil {
		logger.Fatal("Invalid session configuration: %v", err)
	}

	var journal monitor.Journal
	if cfg.Storage.Enabled {
		store, err := storage.New(cfg.Storage.DBPath)
		if err != nil {
			logger.Fatal("Failed to initialize storage: %v", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Error("Failed to close storage: %v", err)
			}
		}()
		journal = store
		logger.Debug("Run journal at %s", cfg.Storage.DBPath)
	}

	source := pricesource.NewClient(
		cfg.PriceSource.BaseURL,
		cfg.PriceSource.Timeout,
		pricesource.ClientConfig{
			MaxRetries:       cfg.PriceSource.MaxRetries,
			RetryDelayBase:   cfg.PriceSource.RetryDelayBase,
			UserAgent:        cfg.PriceSource.UserAgent,
			IntradayInterval: cfg.PriceSource.IntradayInterval,
		},
	)

	var telegramClient *telegram.Client
	if cfg.Telegram.Enabled {
		telegramClient, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled, messages go to the log")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := &runner{
		cfg:      cfg,
		gate:     gate,
		source:   source,
		journal:  journal,
		telegram: telegramClient,
	}

	if telegramClient != nil && cfg.Telegram.ListenCommands {
		telegramClient.ListenForCommands(ctx, r)
	}

	if !cfg.Schedule.Enabled || *once {
		r.runSession(ctx)
		return
	}

	scheduler := gocron.NewScheduler(gate.Location)
	scheduler.SingletonModeAll()
	if _, err := scheduler.Cron(cfg.Schedule.Cron).Do(r.runSession, ctx); err != nil {
		logger.Fatal("Invalid schedule %q: %v", cfg.Schedule.Cron, err)
	}
	scheduler.StartAsync()
	logger.Info("Scheduler started (%s, %s)", cfg.Schedule.Cron, gate.Location)

	<-ctx.Done()
	logger.Info("Shutdown signal received, stopping scheduler")
	scheduler.Stop()
}

// runner builds a fresh monitor for every session. Nothing carries over between runs.
type runner struct {
	cfg      *config.Config
	gate     session.Gate
	source   monitor.PriceSource
	journal  monitor.Journal
	telegram *telegram.Client

	mu      sync.RWMutex
	current *monitor.Monitor
}

func (r *runner) runSession(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	opts := []monitor.Option{}
	if r.telegram != nil {
		opts = append(opts, monitor.WithNotifier(r.telegram))
	}
	if r.journal != nil {
		opts = append(opts, monitor.WithJournal(r.journal))
	}
	mon := monitor.New(r.source, r.gate, monitorConfig(r.cfg), opts...)

	r.mu.Lock()
	r.current = mon
	r.mu.Unlock()

	logger.Info("Starting session run (%d instruments, interval %v, k %.2f, shape %s)",
		len(r.cfg.Instruments), r.cfg.Monitor.PollInterval, r.cfg.Monitor.K, r.cfg.Monitor.BandShape)

	status, err := mon.Run(ctx)
	if err != nil {
		logger.Info("Session run stopped: %s (%v)", status, err)
		return
	}
	logger.Info("Session run ended: %s", status)
}

// Snapshot reports the most recent run for the Telegram /status command.
func (r *runner) Snapshot() []models.InstrumentStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.current == nil {
		return nil
	}
	return r.current.Snapshot()
}

func monitorConfig(cfg *config.Config) monitor.Config {
	return monitor.Config{
		Instruments:     cfg.Instruments,
		PollInterval:    cfg.Monitor.PollInterval,
		K:               cfg.Monitor.K,
		Shape:           models.Shape(cfg.Monitor.BandShape),
		LookbackDays:    cfg.Monitor.LookbackDays,
		FailurePolicy:   monitor.FailurePolicy(cfg.Monitor.FailurePolicy),
		AnnounceSummary: cfg.Monitor.AnnounceSummary,
		FetchWorkers:    cfg.Monitor.FetchWorkers,
		PricePrecision:  cfg.Monitor.PricePrecision,
	}
}
