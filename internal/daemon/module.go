package daemon

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/gfranca/leadflow/internal/bus"
	"github.com/gfranca/leadflow/internal/config"
	"github.com/gfranca/leadflow/internal/httpapi"
	"github.com/gfranca/leadflow/internal/hub"
	"github.com/gfranca/leadflow/internal/ingest"
	"github.com/gfranca/leadflow/internal/lock"
	"github.com/gfranca/leadflow/internal/logging"
	"github.com/gfranca/leadflow/internal/outbox"
	"github.com/gfranca/leadflow/internal/session"
	"github.com/gfranca/leadflow/internal/status"
	"github.com/gfranca/leadflow/internal/store"
	"github.com/gfranca/leadflow/internal/wa"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	Listen      string // optional override for testing; empty = use config
}

// Module returns the fx module for the daemon, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideSession,
			provideLock,
			provideStore,
			provideAdapter,
			provideEngine,
			provideHub,
			provideSender,
			provideAPIServer,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig() *config.Config {
	return config.LoadOrDefault(session.ConfigPath())
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideSession(b *bus.Bus) *status.Session {
	return status.NewSession(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.AppDBPath(p.SessionName)
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
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideAdapter(p Params, logger *zap.Logger) (*wa.Adapter, error) {
	return wa.NewAdapter(context.Background(), p.SessionName, logger)
}

func provideEngine(db *store.DB, b *bus.Bus, sess *status.Session, cfg *config.Config, logger *zap.Logger) *ingest.Engine {
	return ingest.NewEngine(db, b, sess, cfg.Pipeline, logger)
}

func provideHub(b *bus.Bus, cfg *config.Config, logger *zap.Logger) *hub.Hub {
	return hub.New(b, cfg.Pipeline.SubscriberGrace.Duration, logger)
}

func provideSender(db *store.DB, adapter *wa.Adapter, engine *ingest.Engine, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(db, adapter, engine, logger)
}

func provideAPIServer(db *store.DB, sess *status.Session, engine *ingest.Engine, h *hub.Hub, logger *zap.Logger) *httpapi.Server {
	return httpapi.NewServer(db, sess, engine, h, logger)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock, adapter *wa.Adapter, engine *ingest.Engine, h *hub.Hub, sender *outbox.Sender, sess *status.Session, logger *zap.Logger) {
	hubCtx, cancelHub := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// The hub subscribes before the transport can publish, so no
			// accepted event is lost at startup. Raw wire events never queue:
			// the handler feeds the engine by direct call.
			engine.Start()
			go h.Run(hubCtx)

			handler := wa.NewEventHandler(sess, adapter, engine, logger)
			adapter.RegisterEventHandler(handler.Handle)

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("http server error", zap.Error(err))
				}
			}()

			sender.Start(context.Background())

			if adapter.IsLoggedIn() {
				_ = sess.Transition(status.Connecting)
				go func() {
					if err := adapter.Connect(); err != nil {
						logger.Error("auto-connect failed", zap.Error(err))
						_ = sess.Transition(status.Error)
					}
				}()
			} else {
				logger.Info("no credentials found, auth required")
				_ = sess.Transition(status.AuthRequired)
				go func() {
					events, err := adapter.StartQRAuth(context.Background())
					if err != nil {
						logger.Error("QR auth failed to start", zap.Error(err))
						return
					}
					for range events {
					}
				}()
			}

			return nil
		},
		OnStop: func(ctx context.Context) error {
			sender.Stop()
			engine.Stop()
			cancelHub()
			adapter.Disconnect()
			srv.Stop(ctx)
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
