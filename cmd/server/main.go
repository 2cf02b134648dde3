package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"qrmenu-be/internal/config"
	"qrmenu-be/internal/db"
	"qrmenu-be/internal/events"
	"qrmenu-be/internal/handler"
	"qrmenu-be/internal/logger"
	"qrmenu-be/internal/metrics"
	"qrmenu-be/internal/middleware"
	"qrmenu-be/internal/order"
	"qrmenu-be/internal/realtime"

	"go.uber.org/zap"
)

const relayBuffer = 1024

var (
	initDBFunc      = db.InitDB
	startServerFunc = func(srv *http.Server) error { return srv.ListenAndServe() }
	newSinkFunc     = newEventSink
)

// sink relays order events to an external broker.
type sink interface {
	order.Notifier
	Close() error
}

func newEventSink(cfg *config.Config) (sink, error) {
	switch cfg.EventSink {
	case config.EventSinkAMQP:
		return events.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
	case config.EventSinkKafka:
		return events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	default:
		return nil, nil
	}
}

type server struct {
	handler     http.Handler
	broadcaster *realtime.Broadcaster
	limiter     *middleware.Limiter
	relay       *events.Async
	sink        sink
}

func newServer(cfg *config.Config, database *sql.DB) (*server, error) {
	m := metrics.New()
	b := realtime.NewBroadcaster(m)

	var repo order.Repository
	if cfg.StoreDriver == config.StoreDriverMemory {
		repo = order.NewMemoryRepository()
	} else {
		repo = order.NewRepository(database)
	}

	notifiers := order.MultiNotifier{b, m}

	s := &server{broadcaster: b}

	out, err := newSinkFunc(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to start %s event sink: %w", cfg.EventSink, err)
	}
	if out != nil {
		s.sink = out
		s.relay = events.NewAsync(out, relayBuffer)
		notifiers = append(notifiers, s.relay)
	}

	svc := order.NewService(repo, notifiers)

	if !cfg.AuthEnabled() {
		logger.L().Warn("JWT_SECRET not set, every request runs as a development admin")
	}
	s.limiter = middleware.NewLimiter(cfg.InternalSecret)

	s.handler = handler.NewRouter(handler.Deps{
		Orders:   svc,
		Realtime: realtime.NewHandler(b, cfg.WSSendBuffer, cfg.CORSOrigins),
		Auth:     middleware.NewAuthenticator(cfg.JWTSecret),
		Limiter:  s.limiter,
		Metrics:  m,
		Origins:  cfg.CORSOrigins,
	})
	return s, nil
}

// start launches the background workers; they stop when ctx ends.
func (s *server) start(ctx context.Context) {
	go s.limiter.Run(ctx)
	if s.relay != nil {
		go s.relay.Run()
	}
}

// shutdown drains the HTTP server first so no new events are produced, then
// closes realtime connections and flushes the event relay.
func (s *server) shutdown(ctx context.Context, httpSrv *http.Server) error {
	log := logger.L()

	err := httpSrv.Shutdown(ctx)
	if err != nil {
		log.Warn("http shutdown incomplete", zap.Error(err))
	}

	s.broadcaster.Close()

	if s.relay != nil {
		if rErr := s.relay.Close(ctx); rErr != nil {
			log.Warn("event relay not drained", zap.Error(rErr))
		}
	}
	if s.sink != nil {
		if sErr := s.sink.Close(); sErr != nil {
			log.Warn("failed to close event sink", zap.Error(sErr))
		}
	}
	return err
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger.Init(cfg.AppEnv, cfg.LogLevel)
	defer logger.Sync()

	var database *sql.DB
	if cfg.StoreDriver == config.StoreDriverPostgres {
		database = initDBFunc(cfg)
		defer database.Close()
	}

	s, err := newServer(cfg, database)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.start(ctx)

	httpSrv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.L().Info("order service listening",
		zap.String("addr", httpSrv.Addr),
		zap.String("store", cfg.StoreDriver),
		zap.String("event_sink", cfg.EventSink),
	)

	errCh := make(chan error, 1)
	go func() { errCh <- startServerFunc(httpSrv) }()

	var serveErr error
	select {
	case serveErr = <-errCh:
		if errors.Is(serveErr, http.ErrServerClosed) {
			serveErr = nil
		}
	case <-ctx.Done():
		logger.L().Info("shutting down")
	}

	shutdownCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
	defer stop()

	if err := s.shutdown(shutdownCtx, httpSrv); err != nil && serveErr == nil {
		serveErr = err
	}
	return serveErr
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("server: %v", err)
	}
}
