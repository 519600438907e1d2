package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// ServerConfig contains all of the server settings
type ServerConfig struct {
	ListenAddrIP     string
	ListenAddrPort   string
	DatabaseType     string
	DatabaseHost     string
	DatabasePort     string
	DatabaseUser     string
	DatabasePassword string `json:"-"`
	DatabaseDbname   string
	DatabaseSslmode  string
	StoragePath      string // absolute path to the object store root
	MaxUploadMB      int
	PreviewTTL       time.Duration
	PreviewSweep     time.Duration
	EngineWarmup     bool
	RenderConfig
}

// RenderConfig is shared by the server and the command line converter
type RenderConfig struct {
	Backend               string
	PDFiumMaxInstances    int
	PDFiumInstanceTimeout time.Duration
	MaxSurfaceMegapixels  int
}

// MaxSurfacePixels converts the megapixel guard into a pixel count
func (r RenderConfig) MaxSurfacePixels() int64 {
	return int64(r.MaxSurfaceMegapixels) << 20
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolVal
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intVal
}

// getEnvPositive is getEnvInt for values that must be at least one
func getEnvPositive(key string, defaultValue int) int {
	if v := getEnvInt(key, defaultValue); v > 0 {
		return v
	}
	return defaultValue
}

func loadEnvFiles() {
	// Load .env file (silently ignore if doesn't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load("config.env")
}

func loadRenderConfig() RenderConfig {
	return RenderConfig{
		Backend:               strings.ToLower(getEnv("RENDER_BACKEND", "pdfium")),
		PDFiumMaxInstances:    getEnvPositive("PDFIUM_MAX_INSTANCES", 2),
		PDFiumInstanceTimeout: time.Duration(getEnvPositive("PDFIUM_INSTANCE_TIMEOUT", 30)) * time.Second,
		MaxSurfaceMegapixels:  getEnvPositive("MAX_SURFACE_MEGAPIXELS", 64),
	}
}

// SetupServer loads configuration and returns ServerConfig and Logger
func SetupServer() (ServerConfig, *slog.Logger) {
	serverConfigLive := ServerConfig{}

	loadEnvFiles()

	logger := setupLogging("file")
	Logger = logger

	// Server configuration
	serverConfigLive.ListenAddrPort = getEnv("SERVER_PORT", "8000")
	serverConfigLive.ListenAddrIP = getEnv("SERVER_ADDR", "")

	// Database configuration
	serverConfigLive.DatabaseType = getEnv("DATABASE_TYPE", "sqlite")
	serverConfigLive.DatabaseHost = getEnv("DATABASE_HOST", "localhost")
	serverConfigLive.DatabasePort = getEnv("DATABASE_PORT", "5432")
	serverConfigLive.DatabaseUser = getEnv("DATABASE_USER", "resumeraster")
	serverConfigLive.DatabasePassword = getEnv("DATABASE_PASSWORD", "")
	serverConfigLive.DatabaseDbname = getEnv("DATABASE_NAME", "resumeraster")
	serverConfigLive.DatabaseSslmode = getEnv("DATABASE_SSLMODE", "disable")

	logger.Info("Database configuration loaded", "type", serverConfigLive.DatabaseType)

	// Object storage
	storagePath := filepath.ToSlash(getEnv("STORAGE_PATH", "storage"))
	storagePathAbs, err := filepath.Abs(storagePath)
	if err != nil {
		logger.Error("Failed creating absolute path for storage directory", "error", err)
		storagePathAbs = storagePath
	}
	serverConfigLive.StoragePath = storagePathAbs

	serverConfigLive.MaxUploadMB = getEnvPositive("MAX_UPLOAD_MB", 32)
	serverConfigLive.PreviewTTL = time.Duration(getEnvInt("PREVIEW_TTL", 30)) * time.Minute
	serverConfigLive.PreviewSweep = time.Duration(getEnvPositive("PREVIEW_SWEEP_INTERVAL", 5)) * time.Minute
	serverConfigLive.EngineWarmup = getEnvBool("ENGINE_WARMUP", false)
	serverConfigLive.RenderConfig = loadRenderConfig()

	fmt.Println("\n========================================")
	fmt.Println("   resumeraster - PDF to PNG conversion")
	fmt.Println("========================================")
	fmt.Printf("Server will start on: %s:%s\n", serverConfigLive.ListenAddrIP, serverConfigLive.ListenAddrPort)
	if serverConfigLive.ListenAddrIP == "" {
		fmt.Println("(Listening on all network interfaces)")
	}
	fmt.Printf("Detailed logs: %s\n", getEnv("LOG_FILE", "resumeraster.log"))
	fmt.Println("Initializing...")

	logger.Info("Render configuration loaded",
		"backend", serverConfigLive.Backend,
		"pdfiumInstances", serverConfigLive.PDFiumMaxInstances,
		"maxSurfaceMegapixels", serverConfigLive.MaxSurfaceMegapixels,
		"storage", serverConfigLive.StoragePath)

	return serverConfigLive, logger
}

// SetupCLI loads the render settings for the command line converter, logging to stderr unless overridden
func SetupCLI() (RenderConfig, *slog.Logger) {
	loadEnvFiles()

	logger := setupLogging("stderr")
	Logger = logger

	renderConfig := loadRenderConfig()
	logger.Debug("Render configuration loaded", "backend", renderConfig.Backend)
	return renderConfig, logger
}

// setupLogging configures the application logger
func setupLogging(defaultOutput string) *slog.Logger {
	logLevel := getEnv("LOG_LEVEL", "debug")
	var level slog.Level

	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelDebug
	}

	handlerOptions := &slog.HandlerOptions{Level: level}

	var logWriter io.Writer
	switch getEnv("LOG_OUTPUT", defaultOutput) {
	case "stdout":
		logWriter = os.Stdout
	case "stderr":
		logWriter = os.Stderr
	default:
		logPath, err := filepath.Abs(filepath.ToSlash(getEnv("LOG_FILE", "resumeraster.log")))
		if err != nil {
			fmt.Printf("Error creating log file path: %v\n", err)
			logWriter = os.Stdout
		} else {
			logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
			if err != nil {
				fmt.Printf("Failed to open log file: %v\n", err)
				logWriter = os.Stdout
			} else {
				logWriter = logFile
				fmt.Println("Logging to file: ", logPath)
			}
		}
	}

	handler := slog.NewTextHandler(logWriter, handlerOptions)
	return slog.New(handler)
}
