package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

var validate = validator.New()

type Config struct {
	// Device Configuration
	DeviceHostname    string        `validate:"required,hostname_rfc1123"`
	DeviceFallbackIP  string        `validate:"required,ipv4"`
	DeviceExpectedMAC string        `validate:"required,mac"`
	DeviceDataPath    string        `validate:"required,startswith=/"`
	PollInterval      time.Duration `validate:"gt=0"`
	FetchTimeout      time.Duration `validate:"gt=0"`
	FetchMaxAttempts  int           `validate:"gte=1"`

	// History Configuration
	HistoryCapacity int `validate:"gte=1"`
	RecentReadings  int `validate:"gte=1,ltefield=HistoryCapacity"`

	// ML Model Configuration
	ModelPath       string `validate:"required"`
	ScalerPath      string `validate:"required,nefield=ModelPath"`
	ModelMinSamples int    `validate:"gte=1"`
	ModelMaxSamples int    `validate:"gtefield=ModelMinSamples"`
	ModelNumTrees   int    `validate:"gte=1"`
	ModelRandomSeed uint64

	// HTTP Configuration
	HTTPAddr string `validate:"required"`

	// MQTT Configuration (empty broker disables the live feed)
	MQTTBroker       string `validate:"omitempty,url"`
	MQTTClientID     string `validate:"required_with=MQTTBroker"`
	MQTTUsername     string
	MQTTPassword     string
	MQTTTopicReading string `validate:"required_with=MQTTBroker"`
}

func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	return &Config{
		// Device Configuration
		DeviceHostname:    getEnv("DEVICE_HOSTNAME", "enviroscan.local"),
		DeviceFallbackIP:  getEnv("DEVICE_FALLBACK_IP", "192.168.43.240"),
		DeviceExpectedMAC: getEnv("DEVICE_EXPECTED_MAC", "98:F4:AB:F9:34:22"),
		DeviceDataPath:    getEnv("DEVICE_DATA_PATH", "/data"),
		PollInterval:      getEnvDuration("POLL_INTERVAL", 1*time.Second),
		FetchTimeout:      getEnvDuration("FETCH_TIMEOUT", 3*time.Second),
		FetchMaxAttempts:  getEnvInt("FETCH_MAX_ATTEMPTS", 5),

		// History Configuration
		HistoryCapacity: getEnvInt("HISTORY_CAPACITY", 100),
		RecentReadings:  getEnvInt("RECENT_READINGS", 10),

		// ML Model Configuration
		ModelPath:       getEnv("MODEL_PATH", "./aqi_model.json"),
		ScalerPath:      getEnv("SCALER_PATH", "./scaler.json"),
		ModelMinSamples: getEnvInt("MODEL_MIN_SAMPLES", 20),
		ModelMaxSamples: getEnvInt("MODEL_MAX_SAMPLES", 1000),
		ModelNumTrees:   getEnvInt("MODEL_NUM_TREES", 100),
		ModelRandomSeed: uint64(getEnvInt("MODEL_RANDOM_SEED", 42)),

		// HTTP Configuration
		HTTPAddr: getEnv("HTTP_ADDR", ":5000"),

		// MQTT Configuration
		MQTTBroker:       getEnv("MQTT_BROKER", ""),
		MQTTClientID:     getEnv("MQTT_CLIENT_ID", "enviroscan-backend"),
		MQTTUsername:     getEnv("MQTT_USERNAME", ""),
		MQTTPassword:     getEnv("MQTT_PASSWORD", ""),
		MQTTTopicReading: getEnv("MQTT_TOPIC_READING", "enviroscan/{device_id}/reading"),
	}
}

// Validate checks the loaded values
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// MQTTEnabled reports whether a broker is configured
func (c *Config) MQTTEnabled() bool {
	return c.MQTTBroker != ""
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Warning: failed to parse %s as int, using default: %v", key, err)
		return defaultValue
	}
	return intValue
}

// getEnvDuration accepts Go durations ("500ms") or plain seconds ("3", "0.5")
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	seconds, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Printf("Warning: failed to parse %s as duration, using default: %v", key, err)
		return defaultValue
	}
	return time.Duration(seconds * float64(time.Second))
}
