package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"wisefido-power/internal/common/database"
	mqttcommon "wisefido-power/internal/common/mqtt"
	rediscommon "wisefido-power/internal/common/redis"
	"wisefido-power/internal/config"
	"wisefido-power/internal/ingest"
	"wisefido-power/internal/metrics"
	"wisefido-power/internal/repository"
	"wisefido-power/internal/sampler"
	"wisefido-power/internal/store"
	"wisefido-power/internal/telemetry"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// PowerService wires the reading store, sampler, history log, live hub and
// the optional ingest adapters.
type PowerService struct {
	config  *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics

	db          *sql.DB
	redisClient *redis.Client
	mqttClient  *mqttcommon.Client

	store   store.ReadingStore
	history repository.HistoryLog
	hub     *telemetry.Hub
	sampler *sampler.Sampler
	queries *HistoryQueryService

	mqttConsumer *ingest.MQTTConsumer
	socket       *ingest.SocketListener

	wg sync.WaitGroup
}

func NewPowerService(cfg *config.Config, logger *zap.Logger, reg prometheus.Registerer) (*PowerService, error) {
	m, err := metrics.New(reg)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	s := &PowerService{config: cfg, logger: logger, metrics: m}
	if err := s.init(); err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

func (s *PowerService) init() error {
	cfg := s.config

	if cfg.UsesRedis() {
		s.redisClient = rediscommon.NewRedisClient(&cfg.Redis)
		if err := rediscommon.Ping(context.Background(), s.redisClient); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
	}

	switch cfg.Reading.Backend {
	case config.BackendRedis:
		s.store = store.NewRedisReadingStore(s.redisClient, cfg.Reading.RedisKey)
	default:
		fs, err := store.NewFileReadingStore(cfg.Reading.Path)
		if err != nil {
			return fmt.Errorf("failed to create reading store: %w", err)
		}
		s.store = fs
	}

	switch cfg.History.Backend {
	case config.BackendPostgres:
		db, err := database.NewPostgresDB(&cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		s.db = db
		pg := repository.NewPostgresHistoryLog(db, s.logger)
		if err := pg.EnsureSchema(context.Background()); err != nil {
			return err
		}
		if err := pg.LoadLast(context.Background()); err != nil {
			return err
		}
		s.history = pg
	default:
		fl, err := repository.NewFileHistoryLog(cfg.History.Path, s.logger)
		if err != nil {
			return fmt.Errorf("failed to open history log: %w", err)
		}
		s.history = fl
	}

	s.hub = telemetry.NewHub(cfg.Live.BufferSize, s.logger, s.metrics)
	publishers := []sampler.Publisher{s.hub}
	if cfg.Live.Mirror.Enabled {
		publishers = append(publishers, telemetry.NewRedisMirror(s.redisClient, cfg.Live.Mirror.Stream, s.logger))
	}

	s.sampler = sampler.NewSampler(sampler.Config{
		Interval:      cfg.Sampler.Interval,
		MaxScale:      cfg.Sampler.MaxScale,
		MaxReadingAge: cfg.Reading.MaxAge,
	}, s.store, s.history, s.logger, s.metrics, publishers...)

	s.queries = NewHistoryQueryService(s.history, s.logger, s.metrics)

	if cfg.Ingest.MQTT.Enabled {
		client, err := mqttcommon.NewClient(&cfg.MQTT, s.logger)
		if err != nil {
			return fmt.Errorf("failed to connect to mqtt broker: %w", err)
		}
		s.mqttClient = client
		s.mqttConsumer = ingest.NewMQTTConsumer(client, cfg.Ingest.MQTT.Topic, cfg.MQTT.QoS, s.store, s.logger)
	}
	if cfg.Ingest.Socket.Enabled {
		s.socket = ingest.NewSocketListener(cfg.Ingest.Socket.Path, s.store, s.logger)
	}
	return nil
}

// Start launches the sampler and ingest adapters; it does not block
func (s *PowerService) Start(ctx context.Context) error {
	s.logger.Info("Starting power monitor",
		zap.String("reading_backend", s.config.Reading.Backend),
		zap.String("history_backend", s.config.History.Backend),
		zap.Bool("live_mirror", s.config.Live.Mirror.Enabled),
		zap.Bool("mqtt_ingest", s.mqttConsumer != nil),
		zap.Bool("socket_ingest", s.socket != nil),
	)

	s.goRun(ctx, "sampler", s.sampler.Run)
	if s.mqttConsumer != nil {
		s.goRun(ctx, "mqtt consumer", s.mqttConsumer.Start)
	}
	if s.socket != nil {
		s.goRun(ctx, "socket listener", s.socket.Start)
	}
	return nil
}

func (s *PowerService) goRun(ctx context.Context, name string, run func(context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := run(ctx); err != nil {
			s.logger.Error("Component stopped with error", zap.String("component", name), zap.Error(err))
		}
	}()
}

// Stop expects ctx passed to Start to be cancelled already; it waits for the
// background loops until ctx (the shutdown deadline) expires.
func (s *PowerService) Stop(ctx context.Context) error {
	if s.mqttConsumer != nil {
		_ = s.mqttConsumer.Stop(ctx)
	}
	if s.socket != nil {
		_ = s.socket.Stop(ctx)
	}
	s.hub.Close()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("Timed out waiting for background loops", zap.Error(ctx.Err()))
	}

	s.close()
	s.logger.Info("Power monitor stopped")
	return nil
}

func (s *PowerService) close() {
	if fl, ok := s.history.(*repository.FileHistoryLog); ok {
		if err := fl.Close(); err != nil {
			s.logger.Error("Failed to close history log", zap.Error(err))
		}
	}
	if s.db != nil {
		_ = database.Close(s.db)
	}
	if s.redisClient != nil {
		_ = rediscommon.Close(s.redisClient)
	}
	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}
}

func (s *PowerService) Hub() *telemetry.Hub { return s.hub }

func (s *PowerService) Sampler() *sampler.Sampler { return s.sampler }

func (s *PowerService) Queries() *HistoryQueryService { return s.queries }

func (s *PowerService) Store() store.ReadingStore { return s.store }

// Broker is the MQTT client when MQTT ingest is enabled, nil otherwise
func (s *PowerService) Broker() *mqttcommon.Client { return s.mqttClient }
