package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	// 清除环境变量
	os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "postgres", cfg.Database.User)
	assert.Equal(t, "owlrd", cfg.Database.Database)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.True(t, cfg.DBEnabled)
	assert.False(t, cfg.DBMigrate)

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 0, cfg.Redis.DB)

	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
	assert.Equal(t, byte(1), cfg.MQTT.QoS)

	assert.Equal(t, EventBusMQTT, cfg.Vitals.EventBus.Kind)
	assert.Equal(t, "vitals:events:stream", cfg.Vitals.EventBus.Stream)
	assert.Equal(t, "devices/+/vitals", cfg.Vitals.Device.Topic)
	assert.Equal(t, "vitals:", cfg.Vitals.Cache.KeyPrefix)
	assert.Equal(t, 30*time.Second, cfg.Vitals.Cache.TTL)
	assert.Equal(t, 3*time.Second, cfg.Vitals.Dispatch.SinkTimeout)
	assert.Equal(t, "", cfg.Vitals.ThresholdsFile)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	os.Clearenv()
	t.Setenv("DB_HOST", "test-host")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("DB_NAME", "test-db")
	t.Setenv("DB_ENABLED", "false")
	t.Setenv("REDIS_ADDR", "test-redis:6380")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("MQTT_BROKER", "tcp://broker:1883")
	t.Setenv("MQTT_QOS", "0")
	t.Setenv("EVENT_BUS", "Redis")
	t.Setenv("CACHE_TTL", "45")
	t.Setenv("DISPATCH_SINK_TIMEOUT", "750ms")
	t.Setenv("THRESHOLDS_FILE", "/etc/wisefido/thresholds.yaml")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "test-host", cfg.Database.Host)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, "test-db", cfg.Database.Database)
	assert.False(t, cfg.DBEnabled)
	assert.Equal(t, "test-redis:6380", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTT.Broker)
	assert.Equal(t, byte(0), cfg.MQTT.QoS)
	assert.Equal(t, EventBusRedis, cfg.Vitals.EventBus.Kind)
	assert.Equal(t, 45*time.Second, cfg.Vitals.Cache.TTL)
	assert.Equal(t, 750*time.Millisecond, cfg.Vitals.Dispatch.SinkTimeout)
	assert.Equal(t, "/etc/wisefido/thresholds.yaml", cfg.Vitals.ThresholdsFile)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestGetEnvDuration(t *testing.T) {
	os.Clearenv()
	assert.Equal(t, time.Second, getEnvDuration("TEST_DURATION", time.Second))

	t.Setenv("TEST_DURATION", "2m")
	assert.Equal(t, 2*time.Minute, getEnvDuration("TEST_DURATION", time.Second))

	t.Setenv("TEST_DURATION", "garbage")
	assert.Equal(t, time.Second, getEnvDuration("TEST_DURATION", time.Second))
}
