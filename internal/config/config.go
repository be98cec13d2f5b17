package config

import (
	"errors"
	"io"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

type Config struct {
	Port    string
	GinMode string

	// Database
	DBDriver          string // "postgres" or "sqlite"
	DatabaseURL       string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxIdleTime int // in minutes
	DBConnMaxLifetime int // in minutes

	// Upstream inference server
	LLMServerURL      string
	LLMReconnectDelay time.Duration
	LLMDialTimeout    time.Duration

	// Relay
	ClientSendBuffer   int
	ChatTitleMaxLength int
	ChatStopMarker     string
	ChatDefaultTitle   string

	// Transcript writer (async chat log persistence)
	TranscriptWorkerCount    int
	TranscriptBufferSize     int
	TranscriptTimeoutSeconds int

	// NATS (optional turn notifications)
	NatsURL string

	// Server
	ServerShutdownTimeoutSeconds int
	CORSAllowedOrigins           string

	// Logging
	LogLevel  string
	LogFormat string

	// Documents lists the opaque document collections exposed over HTTP.
	// Loaded from the YAML config file; defaults to DefaultDocumentKinds.
	Documents []DocumentKind `yaml:"documents"`
}

// DocumentKind describes one opaque JSON document collection.
type DocumentKind struct {
	Kind    string `yaml:"kind"`
	Path    string `yaml:"path"`
	ListKey string `yaml:"list_key"`
	// Limit caps list results; 0 means unlimited.
	Limit int `yaml:"limit"`
	// Sortable lets clients pick ?sort=oldest.
	Sortable bool `yaml:"sortable"`
}

// DefaultDocumentKinds mirrors the collections the front-end uses.
var DefaultDocumentKinds = []DocumentKind{
	{Kind: "patient_case", Path: "/patient-case", ListKey: "cases", Limit: 0, Sortable: true},
	{Kind: "medical_info", Path: "/medical-info", ListKey: "infos", Limit: 5, Sortable: false},
}

var AppConfig *Config

func LoadConfig() {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	AppConfig = FromEnv()

	configFilePath := getEnvOrDefault("CONFIG_FILE", "config.yaml")
	configFile, err := os.Open(configFilePath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Printf("Config file %s not found, using defaults", configFilePath)
	case err != nil:
		log.Fatalf("Failed to open config file: %v", err)
	default:
		defer configFile.Close()
		if err := LoadConfigFile(configFile, AppConfig); err != nil {
			log.Fatalf("Failed to load config file: %v", err)
		}
	}

	if len(AppConfig.Documents) == 0 {
		AppConfig.Documents = DefaultDocumentKinds
	}

	if AppConfig.DBDriver != "postgres" && AppConfig.DBDriver != "sqlite" {
		log.Fatalf("Unsupported DB_DRIVER %q (expected postgres or sqlite)", AppConfig.DBDriver)
	}

	if !strings.HasPrefix(AppConfig.LLMServerURL, "ws://") && !strings.HasPrefix(AppConfig.LLMServerURL, "wss://") {
		log.Printf("Warning: LLM_SERVER_URL %q is not a websocket URL", AppConfig.LLMServerURL)
	}

	if AppConfig.NatsURL == "" {
		log.Println("NATS_URL not set, turn notifications disabled")
	}
}

// FromEnv builds a Config from environment variables only.
func FromEnv() *Config {
	return &Config{
		Port:    getEnvOrDefault("PORT", "3001"),
		GinMode: getEnvOrDefault("GIN_MODE", "release"),

		DBDriver:          getEnvOrDefault("DB_DRIVER", "postgres"),
		DatabaseURL:       getEnvOrDefault("DATABASE_URL", "postgres://localhost/docdoc?sslmode=disable"),
		DBMaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 15),
		DBMaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		DBConnMaxIdleTime: getEnvAsInt("DB_CONN_MAX_IDLE_TIME_MINUTES", 1),
		DBConnMaxLifetime: getEnvAsInt("DB_CONN_MAX_LIFETIME_MINUTES", 30),

		LLMServerURL:      getEnvOrDefault("LLM_SERVER_URL", "ws://localhost:8000/ws"),
		LLMReconnectDelay: getEnvAsDuration("LLM_RECONNECT_DELAY", 5*time.Second),
		LLMDialTimeout:    getEnvAsDuration("LLM_DIAL_TIMEOUT", 10*time.Second),

		ClientSendBuffer:   getEnvAsInt("CLIENT_SEND_BUFFER", 256),
		ChatTitleMaxLength: getEnvAsInt("CHAT_TITLE_MAX_LENGTH", 50),
		ChatStopMarker:     getEnvOrDefault("CHAT_STOP_MARKER", " [stopped]"),
		ChatDefaultTitle:   getEnvOrDefault("CHAT_DEFAULT_TITLE", "New chat"),

		TranscriptWorkerCount:    getEnvAsInt("TRANSCRIPT_WORKER_COUNT", 4),
		TranscriptBufferSize:     getEnvAsInt("TRANSCRIPT_BUFFER_SIZE", 256),
		TranscriptTimeoutSeconds: getEnvAsInt("TRANSCRIPT_TIMEOUT_SECONDS", 10),

		NatsURL: getEnvOrDefault("NATS_URL", ""),

		ServerShutdownTimeoutSeconds: getEnvAsInt("SERVER_SHUTDOWN_TIMEOUT_SECONDS", 30),
		CORSAllowedOrigins:           getEnvOrDefault("CORS_ALLOWED_ORIGINS", "*"),

		LogLevel:  getEnvOrDefault("LOG_LEVEL", "debug"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "text"),
	}
}

// AllowedOrigins splits CORSAllowedOrigins on commas.
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		} else {
			log.Printf("Warning: Failed to parse environment variable %s='%s' as time.Duration, using default %v: %v", key, value, defaultValue, err)
		}
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		} else {
			log.Printf("Warning: Failed to parse environment variable %s='%s' as int, using default %d: %v", key, value, defaultValue, err)
		}
	}
	return defaultValue
}

func LoadConfigFile(reader io.Reader, config *Config) error {
	decoder := yaml.NewDecoder(reader)

	if err := decoder.Decode(config); err != nil {
		return err
	}

	return nil
}
