package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"wisefido-vitals/internal/common/config"

	"github.com/joho/godotenv"
)

// 事件总线类型
const (
	EventBusMQTT  = "mqtt"
	EventBusRedis = "redis"
	EventBusNone  = "none"
)

// Config 生命体征报警服务配置
type Config struct {
	HTTP struct {
		Addr            string
		ShutdownTimeout time.Duration
	}

	Database  config.DatabaseConfig
	DBEnabled bool // false 时使用内存仓库（单实例联测）
	DBMigrate bool // 启动时建表/建索引

	Redis        config.RedisConfig
	RedisEnabled bool

	MQTT config.MQTTConfig

	// 生命体征服务特定配置
	Vitals struct {
		// 事件总线
		EventBus struct {
			Kind         string // mqtt, redis, none
			TopicPrefix  string // MQTT 主题前缀，如 "wisefido/" → wisefido/alarm.critical
			Stream       string // Redis Streams 名称
			StreamMaxLen int64
		}

		// 设备读数接入
		Device struct {
			Enabled bool
			Topic   string // 如 "devices/+/vitals"
		}

		// Redis 缓存配置
		Cache struct {
			KeyPrefix string        // 如 "vitals:"
			TTL       time.Duration // 报警列表/计数缓存 TTL
		}

		// 投递配置
		Dispatch struct {
			SinkTimeout time.Duration // 单个 sink 的超时
		}

		ThresholdsFile string // 阈值覆盖文件（YAML），为空则用内置表
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置（先读取 .env，再读取环境变量）
func Load() (*Config, error) {
	// .env 不存在时忽略
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")
	cfg.HTTP.ShutdownTimeout = getEnvDuration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second)

	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.User = "postgres"
	cfg.Database.Password = "postgres"
	cfg.Database.Database = "owlrd"
	cfg.Database.SSLMode = "disable"
	cfg.Database.MaxConns = 20
	cfg.Database.MaxIdle = 5
	cfg.Database.LoadFromEnv("DB")
	cfg.DBEnabled = getEnvBool("DB_ENABLED", true)
	cfg.DBMigrate = getEnvBool("DB_MIGRATE", false)

	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.LoadFromEnv("REDIS")
	cfg.RedisEnabled = getEnvBool("REDIS_ENABLED", true)

	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.MQTT.ClientID = "wisefido-vitals"
	cfg.MQTT.QoS = 1
	cfg.MQTT.ConnectTimeout = 10 * time.Second
	cfg.MQTT.LoadFromEnv("MQTT")

	cfg.Vitals.EventBus.Kind = strings.ToLower(getEnv("EVENT_BUS", EventBusMQTT))
	cfg.Vitals.EventBus.TopicPrefix = getEnv("EVENT_TOPIC_PREFIX", "wisefido/")
	cfg.Vitals.EventBus.Stream = getEnv("EVENT_STREAM", "vitals:events:stream")
	cfg.Vitals.EventBus.StreamMaxLen = int64(getEnvInt("EVENT_STREAM_MAXLEN", 10000))

	cfg.Vitals.Device.Enabled = getEnvBool("DEVICE_INGEST_ENABLED", true)
	cfg.Vitals.Device.Topic = getEnv("DEVICE_TOPIC", "devices/+/vitals")

	cfg.Vitals.Cache.KeyPrefix = getEnv("CACHE_PREFIX", "vitals:")
	cfg.Vitals.Cache.TTL = getEnvDuration("CACHE_TTL", 30*time.Second)

	cfg.Vitals.Dispatch.SinkTimeout = getEnvDuration("DISPATCH_SINK_TIMEOUT", 3*time.Second)

	cfg.Vitals.ThresholdsFile = getEnv("THRESHOLDS_FILE", "")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvDuration 支持 "3s"/"500ms"，纯数字按秒处理
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
