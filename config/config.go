package config

import (
	"log"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// AppConfig application configuration
var AppConfig struct {
	// Server
	Port           string
	Mode           string // debug or release
	JWTSecret      string
	MaxConnections int // websocket connection cap
	LogLevel       string

	// Redis (cache, online users, rate limit, change feed)
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPoolSize int

	// Realtime change feed
	RealtimeBackend       string // redis or memory
	RealtimeChannelPrefix string

	// Kafka (auto-sync requests)
	KafkaBootstrapServers  []string
	KafkaConsumerGroup     string
	KafkaTopicPrefix       string
	KafkaSyncTopic         string
	KafkaPartitions        int
	KafkaReplicationFactor int

	// Database
	DBDriver           string // mysql or sqlite
	DBConnectionString string
	DBMaxIdleConns     int
	DBMaxOpenConns     int

	// Cache
	CacheExpiration int // seconds

	// Websocket
	ChannelBuffSize     int
	WSMessagesPerSecond int
	WSMessageBurst      int

	// Activities
	MaxSeriesOccurrences int
}

// LoadConfig loads configuration from the environment, reading .env when present
func LoadConfig() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment variables")
	}

	AppConfig.Port = getEnv("PORT", "8080")
	AppConfig.Mode = getEnv("MODE", "debug")
	AppConfig.JWTSecret = getEnv("JWT_SECRET", "your-secret-key")
	AppConfig.MaxConnections = getEnvInt("MAX_CONNECTIONS", 10000)
	AppConfig.LogLevel = getEnv("LOG_LEVEL", "info")

	AppConfig.RedisAddr = getEnv("REDIS_ADDR", "localhost:6379")
	AppConfig.RedisPassword = getEnv("REDIS_PASSWORD", "")
	AppConfig.RedisDB = getEnvInt("REDIS_DB", 0)
	AppConfig.RedisPoolSize = getEnvInt("REDIS_POOL_SIZE", runtime.NumCPU()*10)

	AppConfig.RealtimeBackend = getEnv("REALTIME_BACKEND", "redis")
	AppConfig.RealtimeChannelPrefix = getEnv("REALTIME_CHANNEL_PREFIX", "realtime:")

	kafkaServers := getEnv("KAFKA_BOOTSTRAP_SERVERS", "localhost:9092")
	AppConfig.KafkaBootstrapServers = strings.Split(kafkaServers, ",")
	AppConfig.KafkaConsumerGroup = getEnv("KAFKA_CONSUMER_GROUP", "practicehub-sync")
	AppConfig.KafkaTopicPrefix = getEnv("KAFKA_TOPIC_PREFIX", "practicehub-")
	AppConfig.KafkaSyncTopic = getEnv("KAFKA_SYNC_TOPIC", AppConfig.KafkaTopicPrefix+"activity-sync")
	AppConfig.KafkaPartitions = getEnvInt("KAFKA_PARTITIONS", 3)
	AppConfig.KafkaReplicationFactor = getEnvInt("KAFKA_REPLICATION_FACTOR", 2)

	AppConfig.DBDriver = getEnv("DB_DRIVER", "mysql")
	AppConfig.DBConnectionString = getEnv("DB_CONNECTION_STRING", "root:password@tcp(127.0.0.1:3306)/practicehub?charset=utf8mb4&parseTime=True&loc=Local")
	AppConfig.DBMaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", 10)
	AppConfig.DBMaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 100)

	AppConfig.CacheExpiration = getEnvInt("CACHE_EXPIRATION", 300)

	AppConfig.ChannelBuffSize = getEnvInt("CHANNEL_BUFFER_SIZE", 1000)
	AppConfig.WSMessagesPerSecond = getEnvInt("WS_MESSAGES_PER_SECOND", 5)
	AppConfig.WSMessageBurst = getEnvInt("WS_MESSAGE_BURST", 10)

	AppConfig.MaxSeriesOccurrences = getEnvInt("MAX_SERIES_OCCURRENCES", 200)
}

// getEnv returns the variable or the default when unset
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt like getEnv for integers; unparsable values fall back to the default
func getEnvInt(key string, defaultValue int) int {
	n, err := strconv.Atoi(getEnv(key, strconv.Itoa(defaultValue)))
	if err != nil {
		return defaultValue
	}
	return n
}
