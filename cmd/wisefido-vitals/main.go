package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"wisefido-vitals/internal/common/database"
	"wisefido-vitals/internal/common/logger"
	mqttcommon "wisefido-vitals/internal/common/mqtt"
	rediscommon "wisefido-vitals/internal/common/redis"
	"wisefido-vitals/internal/config"
	"wisefido-vitals/internal/consumer"
	"wisefido-vitals/internal/dispatcher"
	"wisefido-vitals/internal/evaluator"
	"wisefido-vitals/internal/eventbus"
	httpapi "wisefido-vitals/internal/http"
	"wisefido-vitals/internal/metrics"
	"wisefido-vitals/internal/repository"
	"wisefido-vitals/internal/service"
	"wisefido-vitals/internal/websocket"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// store 读数 + 报警存储（PostgresStore 或 MemoryStore）
type store interface {
	service.IngestStore
	service.AlarmStore
}

type redisPinger struct{ client *redis.Client }

func (p redisPinger) PingContext(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

type mqttPinger struct{ client *mqttcommon.Client }

func (p mqttPinger) PingContext(context.Context) error {
	if !p.client.IsConnected() {
		return errors.New("mqtt client not connected")
	}
	return nil
}

func main() {
	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// 2. 初始化日志
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "wisefido-vitals")
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. 阈值表
	bands := evaluator.DefaultThresholdBands()
	if cfg.Vitals.ThresholdsFile != "" {
		bands, err = evaluator.LoadThresholdBands(cfg.Vitals.ThresholdsFile)
		if err != nil {
			log.Fatal("Failed to load thresholds", zap.String("file", cfg.Vitals.ThresholdsFile), zap.Error(err))
		}
	}
	table := evaluator.NewThresholdTable(bands)
	log.Info("Threshold table loaded", zap.Strings("parameters", table.Parameters()))

	// 4. 存储：PostgreSQL，未启用时使用内存仓库
	var db *sql.DB
	var vitalStore store
	checks := map[string]httpapi.Pinger{}
	if cfg.DBEnabled {
		db, err = database.NewPostgresDB(ctx, &cfg.Database)
		if err != nil {
			log.Fatal("Failed to connect to database", zap.Error(err))
		}
		if cfg.DBMigrate {
			if err := repository.EnsureSchema(ctx, db); err != nil {
				log.Fatal("Failed to ensure schema", zap.Error(err))
			}
		}
		vitalStore = repository.NewPostgresStore(db, log)
		checks["database"] = db
	} else {
		log.Warn("DB disabled, using in-memory store")
		vitalStore = repository.NewMemoryStore()
	}

	// 5. Redis：缓存 + 可选的 Streams 事件总线
	var redisClient *redis.Client
	var cacheInvalidator dispatcher.CacheInvalidator
	var alarmCache service.AlarmCache
	if cfg.RedisEnabled {
		redisClient, err = rediscommon.NewRedisClient(ctx, &cfg.Redis)
		if err != nil {
			log.Fatal("Failed to connect to redis", zap.Error(err))
		}
		cacheManager := consumer.NewCacheManager(redisClient, cfg.Vitals.Cache.KeyPrefix, cfg.Vitals.Cache.TTL, log)
		cacheInvalidator = cacheManager
		alarmCache = cacheManager
		checks["redis"] = redisPinger{client: redisClient}
	}

	// 6. MQTT：事件总线 + 设备读数接入
	var mqttClient *mqttcommon.Client
	if cfg.Vitals.EventBus.Kind == config.EventBusMQTT || cfg.Vitals.Device.Enabled {
		mqttClient, err = mqttcommon.NewClient(&cfg.MQTT, log)
		if err != nil {
			log.Fatal("Failed to connect to MQTT broker", zap.Error(err))
		}
		checks["mqtt"] = mqttPinger{client: mqttClient}
	}

	var bus dispatcher.EventBus
	switch cfg.Vitals.EventBus.Kind {
	case config.EventBusMQTT:
		bus = eventbus.NewMQTTBus(mqttClient, cfg.Vitals.EventBus.TopicPrefix, mqttClient.QoS(), log)
	case config.EventBusRedis:
		if redisClient == nil {
			log.Fatal("EVENT_BUS=redis requires REDIS_ENABLED")
		}
		bus = eventbus.NewRedisStreamBus(redisClient, cfg.Vitals.EventBus.Stream, cfg.Vitals.EventBus.StreamMaxLen, log)
	case config.EventBusNone:
		bus = eventbus.NopBus{}
	default:
		log.Fatal("Unknown event bus", zap.String("event_bus", cfg.Vitals.EventBus.Kind))
	}

	// 7. 指标、实时推送、投递
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		log.Fatal("Failed to register metrics", zap.Error(err))
	}
	hub := websocket.NewHub(log)
	notifier := dispatcher.NewDispatcher(bus, hub, cacheInvalidator, cfg.Vitals.Dispatch.SinkTimeout, log)

	// 8. 服务
	vitalService := service.NewVitalIngestService(vitalStore, table, notifier, log)
	alarmService := service.NewAlarmService(vitalStore, alarmCache, notifier, log)

	// 9. 设备读数消费者
	var deviceConsumer *consumer.MQTTConsumer
	consumerErrChan := make(chan error, 1)
	if cfg.Vitals.Device.Enabled {
		deviceConsumer = consumer.NewMQTTConsumer(cfg.Vitals.Device.Topic, mqttClient.QoS(), mqttClient, vitalService, log)
		go func() {
			if err := deviceConsumer.Start(ctx); err != nil {
				consumerErrChan <- err
			}
		}()
	}

	// 10. HTTP
	srv := httpapi.NewServer(cfg.HTTP.Addr, log)
	srv.RegisterHandlers(
		httpapi.NewVitalHandler(vitalService, log),
		httpapi.NewAlarmHandler(alarmService, log),
		httpapi.NewLiveHandler(hub),
		httpapi.NewHealthHandler(checks, hub, log),
		prometheus.DefaultGatherer,
	)
	serverErrChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			serverErrChan <- err
		}
	}()

	// 11. 等待信号（优雅关闭）
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-serverErrChan:
		log.Error("HTTP server error", zap.Error(err))
	case err := <-consumerErrChan:
		log.Error("Device consumer error", zap.Error(err))
	}

	// 先停止接入，再等待后台投递，最后关闭连接
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		log.Error("Failed to stop HTTP server", zap.Error(err))
	}
	if deviceConsumer != nil {
		_ = deviceConsumer.Stop(shutdownCtx)
	}
	cancel()

	if err := vitalService.Drain(shutdownCtx); err != nil {
		log.Warn("Vital dispatches not drained", zap.Error(err))
	}
	if err := alarmService.Drain(shutdownCtx); err != nil {
		log.Warn("Alarm dispatches not drained", zap.Error(err))
	}

	hub.Close()
	if mqttClient != nil {
		mqttClient.Disconnect()
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if db != nil {
		_ = database.Close(db)
	}

	log.Info("Vitals service stopped")
}
