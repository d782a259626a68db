package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("DB_DRIVER", "")
	t.Setenv("MAX_SERIES_OCCURRENCES", "")
	t.Setenv("KAFKA_TOPIC_PREFIX", "")
	t.Setenv("KAFKA_SYNC_TOPIC", "")
	LoadConfig()

	assert.Equal(t, "8080", AppConfig.Port)
	assert.Equal(t, "mysql", AppConfig.DBDriver)
	assert.Equal(t, 200, AppConfig.MaxSeriesOccurrences)
	assert.Equal(t, "practicehub-activity-sync", AppConfig.KafkaSyncTopic)
}

func TestLoadConfig_FromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("KAFKA_BOOTSTRAP_SERVERS", "k1:9092,k2:9092")
	t.Setenv("REALTIME_BACKEND", "memory")
	t.Setenv("WS_MESSAGE_BURST", "not-a-number")
	LoadConfig()

	assert.Equal(t, "9090", AppConfig.Port)
	assert.Equal(t, "sqlite", AppConfig.DBDriver)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, AppConfig.KafkaBootstrapServers)
	assert.Equal(t, "memory", AppConfig.RealtimeBackend)
	assert.Equal(t, 10, AppConfig.WSMessageBurst, "unparsable values fall back to the default")
}

func TestNewLogger(t *testing.T) {
	AppConfig.Mode = "release"
	AppConfig.LogLevel = "warn"
	log, err := NewLogger()
	require.NoError(t, err)
	assert.False(t, log.Core().Enabled(zapcore.InfoLevel))

	AppConfig.Mode = "debug"
	AppConfig.LogLevel = "bogus"
	log, err = NewLogger()
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zapcore.InfoLevel))
}
