package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/sublarr/sublarr/internal/anidb"
	"github.com/sublarr/sublarr/internal/api"
	"github.com/sublarr/sublarr/internal/backup"
	"github.com/sublarr/sublarr/internal/blacklist"
	"github.com/sublarr/sublarr/internal/config"
	"github.com/sublarr/sublarr/internal/database"
	"github.com/sublarr/sublarr/internal/events"
	"github.com/sublarr/sublarr/internal/ffmpeg"
	"github.com/sublarr/sublarr/internal/history"
	"github.com/sublarr/sublarr/internal/hooks"
	"github.com/sublarr/sublarr/internal/logger"
	"github.com/sublarr/sublarr/internal/mediamanager"
	"github.com/sublarr/sublarr/internal/mediaserver"
	"github.com/sublarr/sublarr/internal/provider"
	"github.com/sublarr/sublarr/internal/provider/addicted"
	"github.com/sublarr/sublarr/internal/provider/jimaku"
	provmanager "github.com/sublarr/sublarr/internal/provider/manager"
	"github.com/sublarr/sublarr/internal/provider/opensubtitles"
	"github.com/sublarr/sublarr/internal/providercache"
	"github.com/sublarr/sublarr/internal/queue"
	"github.com/sublarr/sublarr/internal/scheduler"
	"github.com/sublarr/sublarr/internal/scoring"
	"github.com/sublarr/sublarr/internal/stats"
	"github.com/sublarr/sublarr/internal/translation"
	"github.com/sublarr/sublarr/internal/translation/lingarr"
	"github.com/sublarr/sublarr/internal/translation/localllm"
	"github.com/sublarr/sublarr/internal/translation/openaicompat"
	"github.com/sublarr/sublarr/internal/translator"
	"github.com/sublarr/sublarr/internal/wanted"
	"github.com/sublarr/sublarr/internal/webhooks"
	"github.com/sublarr/sublarr/internal/websocket"
	"github.com/sublarr/sublarr/internal/whisper"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Path:       cfg.Logging.Path,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	defer log.Close()

	log.Info().
		Str("version", config.Version).
		Str("logLevel", cfg.Logging.Level).
		Msg("starting Sublarr")

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	log.Info().Msg("running database migrations")
	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	conn := db.Conn()
	bus := events.NewBus(log.Logger)
	settings := config.NewStore(conn, log.Logger)
	settings.AttachBus(bus)

	// Provider pipeline.
	registry := provider.NewRegistry()
	mustRegister(registry, "opensubtitles", func(s map[string]string) (provider.Provider, error) {
		return opensubtitles.New(s, log.Logger)
	})
	mustRegister(registry, "addicted", func(s map[string]string) (provider.Provider, error) {
		return addicted.New(s, log.Logger)
	})
	mustRegister(registry, "jimaku", func(s map[string]string) (provider.Provider, error) {
		return jimaku.New(s, log.Logger)
	})

	statsSvc := stats.NewService(conn, log.Logger)
	historySvc := history.NewService(conn, log.Logger)
	scorer := scoring.NewService(conn, log.Logger)
	cacheTTL := time.Duration(cfg.Providers.CacheTTLHours) * time.Hour
	provCache := providercache.NewStore(conn, cacheTTL, log.Logger)
	blocked := blacklist.NewStore(conn, log.Logger)

	providers := provmanager.New(registry, provmanager.Settings{
		Enabled:        cfg.Providers.Enabled,
		Priority:       cfg.Providers.Priority,
		AutoPrioritize: cfg.Providers.AutoPrioritize,
	}, settings, provCache, blocked, scorer, statsSvc, log.Logger)

	// Translation backends.
	translationMgr := translation.NewManager(settings, cfg.Translation.Backend, cfg.Translation.MaxRetries, log.Logger)
	translationMgr.Register(openaicompat.Name, openaicompat.New)
	translationMgr.Register(localllm.Name, localllm.New)
	translationMgr.Register(lingarr.Name, lingarr.New)

	// Media servers and the media managers behind the catalog.
	mediaServers := mediaserver.NewManager(settings, config.Version, log.Logger)

	var sonarr *mediamanager.SonarrClient
	if cfg.Sonarr.URL != "" {
		sonarr = mediamanager.NewSonarrClient(cfg.Sonarr.URL, cfg.Sonarr.APIKey, log.Logger)
	}
	var radarr *mediamanager.RadarrClient
	if cfg.Radarr.URL != "" {
		radarr = mediamanager.NewRadarrClient(cfg.Radarr.URL, cfg.Radarr.APIKey, log.Logger)
	}

	tool := ffmpeg.New("", "", 0)

	// Transcription.
	whisperStore := whisper.NewStore(conn)
	transcriber := whisper.NewWhisperXTranscriber(
		cfg.Whisper.Binary, cfg.Whisper.Model, cfg.Whisper.Device,
		time.Duration(cfg.Whisper.TimeoutMinutes)*time.Minute)
	whisperQueue := whisper.NewQueue(whisperStore, transcriber, tool, bus,
		int64(cfg.Whisper.Concurrency), log.Logger)

	// Translator pipeline and job queue.
	profiles := translator.NewProfileStore(conn)
	if cfg.Translation.ProfilesFile != "" {
		n, err := translator.SeedProfiles(context.Background(), profiles, cfg.Translation.ProfilesFile)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Translation.ProfilesFile).Msg("failed to seed language profiles")
		}
		log.Info().Int("profiles", n).Str("path", cfg.Translation.ProfilesFile).Msg("seeded language profiles")
	}
	engine := translator.NewEngine(cfg.Translator, profiles, providers, translationMgr,
		whisperQueue, tool, historySvc, statsSvc, mediaServers, bus, log.Logger)

	queueStore := queue.NewStore(conn)
	jobQueue := queue.New(queueStore, bus, cfg.Queue.Workers, cfg.Queue.Size, log.Logger)
	jobQueue.Start(context.Background())
	defer jobQueue.Stop()

	// Wanted loop.
	anidbSvc := anidb.NewService(conn, "", log.Logger)
	wantedStore := wanted.NewStore(conn)
	var seriesSource wanted.SeriesSource
	var seriesMeta wanted.EpisodeMetadata
	if sonarr != nil {
		seriesSource = sonarr
		seriesMeta = sonarr
	}
	var movieSource wanted.MovieSource
	var movieMeta wanted.MovieMetadata
	if radarr != nil {
		movieSource = radarr
		movieMeta = radarr
	}
	scanner := wanted.NewScanner(wantedStore, seriesSource, movieSource, profiles, bus, log.Logger)
	searcher := wanted.NewSearcher(wantedStore, providers, historySvc, statsSvc,
		seriesMeta, movieMeta, anidbSvc, mediaServers, bus,
		cfg.Wanted.MaxAttempts, cfg.Wanted.MaxItemsPerRun, log.Logger)

	// Event fan-out: shell hooks, webhooks, and the UI socket.
	hookStore := hooks.NewStore(conn)
	hookEngine := hooks.NewEngine(hookStore, bus, 2, log.Logger)
	bus.AddDispatcher(hookEngine)

	webhookStore := webhooks.NewStore(conn)
	bus.AddDispatcher(webhooks.NewDispatcher(webhookStore, log.Logger))

	hub := websocket.NewHub()
	hub.AttachBus(bus)
	go hub.Run()

	// Config updates invalidate everything built lazily from settings.
	bus.Subscribe(events.EventConfigUpdated, func(name string, payload events.Payload) {
		providers.Invalidate()
		translationMgr.Invalidate()
		mediaServers.Invalidate()
		scorer.Invalidate()
	})

	backupSvc := backup.NewService(conn, cfg.Backup.Path, backup.Retention{
		Daily:   cfg.Backup.RetainDaily,
		Weekly:  cfg.Backup.RetainWeekly,
		Monthly: cfg.Backup.RetainMonthly,
	}, log.Logger)

	sched, err := scheduler.New(log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create scheduler")
	}
	registerTasks(sched, settings, cfg, scanner, searcher, anidbSvc, backupSvc,
		jobQueue, queueStore, provCache, whisperStore, historySvc, log.Component("tasks"))
	sched.Start()
	defer sched.Stop()

	server := api.NewServer(api.Deps{
		Settings:    settings,
		Queue:       jobQueue,
		WantedStore: wantedStore,
		Scanner:     scanner,
		Searcher:    searcher,
		Providers:   providers,
		History:     historySvc,
		Stats:       statsSvc,
		Engine:      engine,
		WhisperQ:    whisperQueue,
		WhisperSt:   whisperStore,
		Backup:      backupSvc,
		Scheduler:   sched,
		Hub:         hub,
	}, log.Logger)

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := server.Start(addr); err != nil {
			log.Info().Msg("server stopped")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Info().Msg("received shutdown signal")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}
	providers.Terminate()
	log.Info().Msg("server stopped")
}

func mustRegister(r *provider.Registry, name string, factory provider.Factory) {
	if err := r.Register(name, factory); err != nil {
		panic(err)
	}
}

// registerTasks wires the periodic background work. Interval tasks
// re-read their interval from config entries after every run, so
// changes apply without a restart and a zero interval disables the
// task on its next cycle.
func registerTasks(
	sched *scheduler.Scheduler,
	settings *config.Store,
	cfg *config.Config,
	scanner *wanted.Scanner,
	searcher *wanted.Searcher,
	anidbSvc *anidb.Service,
	backupSvc *backup.Service,
	jobQueue *queue.Queue,
	queueStore *queue.Store,
	provCache *providercache.Store,
	whisperStore *whisper.Store,
	historySvc *history.Service,
	log zerolog.Logger,
) {
	hourSetting := func(key string, def int) func() time.Duration {
		return func() time.Duration {
			raw := settings.GetString(context.Background(), key, "")
			if raw == "" {
				return time.Duration(def) * time.Hour
			}
			var hours int
			if _, err := fmt.Sscanf(strings.TrimSpace(raw), "%d", &hours); err != nil || hours < 0 {
				return time.Duration(def) * time.Hour
			}
			return time.Duration(hours) * time.Hour
		}
	}

	tasks := []scheduler.TaskConfig{
		{
			ID:          "wanted-scan",
			Name:        "Wanted Scan",
			Description: "Scan the media catalog for files missing subtitles",
			Interval:    hourSetting("wanted.scan_interval_hours", cfg.Wanted.ScanIntervalHours),
			Func: func(ctx context.Context) error {
				_, err := scanner.Scan(ctx)
				return err
			},
			RunOnStart: true,
		},
		{
			ID:          "wanted-search",
			Name:        "Wanted Search",
			Description: "Search providers for outstanding wanted items",
			Interval:    hourSetting("wanted.search_interval_hours", cfg.Wanted.SearchIntervalHours),
			Func: func(ctx context.Context) error {
				_, err := searcher.SearchBatch(ctx)
				return err
			},
		},
		{
			ID:          "cleanup",
			Name:        "Cleanup",
			Description: "Expire zombie jobs and prune caches and old records",
			Interval:    hourSetting("cleanup_interval_hours", 168),
			Func: func(ctx context.Context) error {
				now := time.Now()
				if ids, err := queueStore.ExpireZombies(ctx, 2*time.Hour, now); err != nil {
					log.Error().Err(err).Msg("zombie expiry failed")
				} else if len(ids) > 0 {
					log.Warn().Int("count", len(ids)).Msg("expired zombie jobs")
				}
				jobQueue.PruneTerminal(now)
				if _, err := provCache.Prune(ctx); err != nil {
					log.Error().Err(err).Msg("provider cache prune failed")
				}
				if _, err := whisperStore.PruneArchived(ctx, 30*24*time.Hour, now); err != nil {
					log.Error().Err(err).Msg("whisper job prune failed")
				}
				if _, err := historySvc.Prune(ctx, 365*24*time.Hour); err != nil {
					log.Error().Err(err).Msg("history prune failed")
				}
				return nil
			},
		},
		{
			ID:          "anidb-refresh",
			Name:        "AniDB Mapping Refresh",
			Description: "Refresh the TVDB to AniDB episode mapping table",
			Interval:    hourSetting("anidb_refresh_interval_hours", 168),
			Func: func(ctx context.Context) error {
				_, err := anidbSvc.Refresh(ctx)
				return err
			},
		},
		{
			ID:          "backup",
			Name:        "Database Backup",
			Description: "Take a database backup and rotate old ones",
			Cron:        "0 3 * * *",
			Func: func(ctx context.Context) error {
				_, err := backupSvc.Run(ctx)
				return err
			},
		},
	}

	for _, task := range tasks {
		if err := sched.RegisterTask(task); err != nil {
			log.Error().Err(err).Str("task", task.ID).Msg("failed to register task")
		}
	}
}
