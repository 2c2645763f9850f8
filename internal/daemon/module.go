package daemon

import (
	"context"

	"github.com/matheus3301/wppdesk/internal/autoreply"
	"github.com/matheus3301/wppdesk/internal/avatar"
	"github.com/matheus3301/wppdesk/internal/bus"
	"github.com/matheus3301/wppdesk/internal/chat"
	"github.com/matheus3301/wppdesk/internal/config"
	"github.com/matheus3301/wppdesk/internal/credstore"
	"github.com/matheus3301/wppdesk/internal/dedup"
	"github.com/matheus3301/wppdesk/internal/ingest"
	"github.com/matheus3301/wppdesk/internal/lock"
	"github.com/matheus3301/wppdesk/internal/logging"
	"github.com/matheus3301/wppdesk/internal/media"
	"github.com/matheus3301/wppdesk/internal/outbox"
	"github.com/matheus3301/wppdesk/internal/poll"
	"github.com/matheus3301/wppdesk/internal/queue"
	"github.com/matheus3301/wppdesk/internal/schedule"
	"github.com/matheus3301/wppdesk/internal/sector"
	"github.com/matheus3301/wppdesk/internal/sessions"
	"github.com/matheus3301/wppdesk/internal/store"
	"github.com/matheus3301/wppdesk/internal/wa"
	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds what the fx module needs from the command line.
type Params struct {
	Config     config.Config
	SocketPath string       // optional override for testing; empty = <base>/deskd.sock
	Factory    chat.Factory // optional override for testing; nil = whatsmeow
	Logger     *zap.Logger  // optional override for testing; nil = file + stderr
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideCredStore,
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideCron,
			provideRegistry,
			provideFactory,
			provideDispatcher,
			provideDedup,
			provideAutoReply,
			provideQueue,
			providePolls,
			provideMedia,
			provideAvatars,
			provideRouter,
			providePipeline,
			provideManager,
			provideSender,
			NewHealthReporter,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) config.Config {
	return p.Config
}

func provideCredStore(cfg config.Config) *credstore.Store {
	return credstore.New(cfg.BaseDir)
}

func provideLogger(p Params, cfg config.Config, creds *credstore.Store) (*zap.Logger, error) {
	if p.Logger != nil {
		return p.Logger, nil
	}
	return logging.New(logging.Options{Path: creds.LogPath(), Level: cfg.LogLevel})
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(creds *credstore.Store, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring base dir lock", zap.String("dir", creds.BaseDir()))
	l, err := lock.Acquire(creds.BaseDir())
	if err != nil {
		return nil, err
	}
	logger.Info("base dir lock acquired")
	return l, nil
}

// provideStore depends on the lock so a second daemon never migrates a
// database the first one is serving.
func provideStore(creds *credstore.Store, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := creds.DBPath()
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("from", result.From), zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideCron(logger *zap.Logger) *cron.Cron {
	return schedule.New(logger.Named("cron"))
}

func provideRegistry() *sessions.Registry {
	return sessions.NewRegistry()
}

func provideFactory(p Params, cfg config.Config, logger *zap.Logger) chat.Factory {
	if p.Factory != nil {
		return p.Factory
	}
	return wa.NewFactory(cfg.Sessions.DeviceName, logger.Named("wa"))
}

func provideDispatcher(registry *sessions.Registry, logger *zap.Logger) *outbox.Dispatcher {
	return outbox.NewDispatcher(registry, logger.Named("outbox"))
}

func provideDedup(cfg config.Config) *dedup.Cache {
	return dedup.New(cfg.AutoReply.Retention)
}

func provideAutoReply(cfg config.Config, db *store.DB, d *outbox.Dispatcher, cache *dedup.Cache, logger *zap.Logger) *autoreply.Service {
	ar := cfg.AutoReply
	return autoreply.NewService(autoreply.Config{
		GreetingCooldown:      ar.GreetingCooldown,
		BusinessHoursCooldown: ar.BusinessHoursCooldown,
		Morning:               ar.Morning,
		Afternoon:             ar.Afternoon,
		Evening:               ar.Evening,
		GreetingText:          ar.GreetingText,
		GoodbyeText:           ar.GoodbyeText,
		AfterHoursText:        ar.AfterHoursText,
		Signature:             ar.Signature,
	}, db, d, cache, logger.Named("autoreply"))
}

func provideQueue(db *store.DB, replies *autoreply.Service, b *bus.Bus, logger *zap.Logger) *queue.Service {
	return queue.NewService(db, replies, b, logger.Named("queue"))
}

func providePolls(db *store.DB, d *outbox.Dispatcher, b *bus.Bus, logger *zap.Logger) *poll.Engine {
	return poll.NewEngine(db, d, b, logger.Named("poll"))
}

func provideMedia(cfg config.Config, logger *zap.Logger) *media.Resolver {
	m := cfg.Media
	return media.NewResolver(media.Config{
		Dir:            cfg.MediaDir(),
		URLPrefix:      m.URLPrefix,
		InlineMin:      m.InlineMinBytes,
		InlineMax:      m.InlineMaxBytes,
		AudioInlineMin: m.AudioInlineMin,
		Timeout:        m.DownloadTimeout,
	}, logger.Named("media"))
}

func provideAvatars(cfg config.Config, logger *zap.Logger) *avatar.Refresher {
	in := cfg.Ingest
	return avatar.NewRefresher(avatar.Config{
		TTL:      in.AvatarTTL,
		Attempts: in.AvatarAttempts,
		Backoff:  in.AvatarBackoff,
		Timeout:  in.AvatarTimeout,
	}, logger.Named("avatar"))
}

func provideRouter(cfg config.Config) *sector.Router {
	return sector.New(cfg.DefaultSector, cfg.Sectors)
}

type pipelineDeps struct {
	fx.In

	Config   config.Config
	DB       *store.DB
	Bus      *bus.Bus
	Registry *sessions.Registry
	Media    *media.Resolver
	Avatars  *avatar.Refresher
	Router   *sector.Router
	Polls    *poll.Engine
	Queue    *queue.Service
	Replies  *autoreply.Service
	Logger   *zap.Logger
}

func providePipeline(d pipelineDeps) *ingest.Pipeline {
	return ingest.New(ingest.Config{
		MaxEventAge: d.Config.Ingest.MaxEventAge,
		LaneBuffer:  d.Config.Ingest.LaneBuffer,
	}, ingest.Deps{
		DB:       d.DB,
		Bus:      d.Bus,
		Sessions: d.Registry,
		Media:    d.Media,
		Avatars:  d.Avatars,
		Router:   d.Router,
		Polls:    d.Polls,
		Queue:    d.Queue,
		Replies:  d.Replies,
		Logger:   d.Logger.Named("ingest"),
	})
}

func provideManager(cfg config.Config, factory chat.Factory, creds *credstore.Store, db *store.DB, b *bus.Bus, registry *sessions.Registry, pipeline *ingest.Pipeline, logger *zap.Logger) *sessions.Manager {
	s := cfg.Sessions
	return sessions.NewManager(sessions.Config{
		StartupTimeout:       s.StartupTimeout,
		HealthInterval:       s.HealthInterval,
		MaxReconnectAttempts: s.MaxReconnectAttempts,
		ReconnectBackoff:     s.ReconnectBackoff,
	}, factory, creds, db, b, registry, pipeline, logger.Named("sessions"))
}

func provideSender(cfg config.Config, db *store.DB, d *outbox.Dispatcher, b *bus.Bus, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(db, d, b, outbox.SenderConfig{
		PollInterval: cfg.Outbox.PollInterval,
		RatePerSec:   cfg.Outbox.RatePerSec,
		Burst:        cfg.Outbox.Burst,
	}, logger.Named("sender"))
}

type lifecycleDeps struct {
	fx.In

	Config   config.Config
	Server   *Server
	Health   *HealthReporter
	Lock     *lock.Lock
	DB       *store.DB
	Cron     *cron.Cron
	Dedup    *dedup.Cache
	Manager  *sessions.Manager
	Pipeline *ingest.Pipeline
	Sender   *outbox.Sender
	Logger   *zap.Logger
}

func registerLifecycle(lc fx.Lifecycle, d lifecycleDeps) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			d.Health.Start()

			// Start gRPC server in background.
			go func() {
				if err := d.Server.Start(); err != nil {
					d.Logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			d.Cron.Start()
			d.Dedup.StartSweep(d.Cron, d.Config.AutoReply.SweepInterval)
			d.Sender.Start(context.Background())

			// Restoring waits on the network; never block fx startup on it.
			go func() {
				if err := d.Manager.RestoreAll(context.Background()); err != nil {
					d.Logger.Error("restore sessions failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			d.Manager.Shutdown()
			d.Sender.Stop()
			d.Pipeline.Stop()
			d.Dedup.StopSweep()
			<-d.Cron.Stop().Done()
			d.Health.Stop()
			d.Server.Stop(ctx)
			if err := d.DB.Close(); err != nil {
				d.Logger.Warn("error closing store", zap.Error(err))
			}
			if err := d.Lock.Release(); err != nil {
				d.Logger.Warn("error releasing lock", zap.Error(err))
			}
			d.Logger.Info("daemon stopped")
			return nil
		},
	})
}
