// Package config reads server settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// Config holds the server settings.
type Config struct {
	Port string

	MongoURI string
	MongoDB  string

	JWTSecret string
	JWTExpiry time.Duration

	PaymentWindow time.Duration
	ChatTTL       time.Duration

	// MQTTBroker is empty when events are only pushed over WebSocket.
	MQTTBroker      string
	MQTTClientID    string
	MQTTTopicPrefix string

	RateLimitRPS   float64
	RateLimitBurst int

	LogLevel string
}

// Load reads the given .env files (".env" when none are named) and then the
// environment. Variables already set in the environment win over the files.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
	}
	return FromEnv(), nil
}

// FromEnv builds a Config from environment variables. Invalid values fall
// back to their defaults.
func FromEnv() *Config {
	return &Config{
		Port:            getString("PORT", "8080"),
		MongoURI:        getString("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:         getString("MONGO_DB", "drivebidrent"),
		JWTSecret:       getString("JWT_SECRET", "default-secret-key-change-in-production"),
		JWTExpiry:       getDuration("JWT_EXPIRY", 24*time.Hour),
		PaymentWindow:   getDuration("PAYMENT_WINDOW", 48*time.Hour),
		ChatTTL:         getDuration("CHAT_TTL", 30*24*time.Hour),
		MQTTBroker:      getString("MQTT_BROKER", ""),
		MQTTClientID:    getString("MQTT_CLIENT_ID", "drivebidrent-api"),
		MQTTTopicPrefix: getString("MQTT_TOPIC_PREFIX", "drivebidrent"),
		RateLimitRPS:    getFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst:  getInt("RATE_LIMIT_BURST", 40),
		LogLevel:        getString("LOG_LEVEL", "info"),
	}
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.WithFields(log.Fields{"key": key, "value": v}).Warn("Invalid duration, using default")
		return def
	}
	return d
}

func getFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		log.WithFields(log.Fields{"key": key, "value": v}).Warn("Invalid number, using default")
		return def
	}
	return f
}

func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.WithFields(log.Fields{"key": key, "value": v}).Warn("Invalid number, using default")
		return def
	}
	return n
}
