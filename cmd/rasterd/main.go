package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	flag "github.com/spf13/pflag"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/drummonds/resumeraster/config"
	"github.com/drummonds/resumeraster/database"
	"github.com/drummonds/resumeraster/engine"
	"github.com/drummonds/resumeraster/engine/pdfrenderer"
	"github.com/drummonds/resumeraster/storage"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// injectGlobals injects all of our globals into their packages
func injectGlobals(logger *slog.Logger) {
	Logger = logger
	database.Logger = Logger
	config.Logger = Logger
	engine.Logger = Logger
	pdfrenderer.Logger = Logger
	storage.Logger = Logger
}

// @title resumeraster API
// @version 1.0
// @description Converts the first page of uploaded PDF resumes to PNG images and stores them

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8000
// @BasePath /api
// @schemes http https

// @tag.name Conversion
// @tag.description One-off PDF to PNG conversion and preview URLs

// @tag.name Resumes
// @tag.description Stored resumes and their rendered first pages

// @tag.name Health
// @tag.description Service and render engine status

func main() {
	port := flag.StringP("port", "p", "", "Port to run the API server on (overrides SERVER_PORT)")
	flag.Parse()

	fmt.Println("\n" + strings.Repeat("=", 50))
	fmt.Println("resumeraster API Server")
	fmt.Println(strings.Repeat("=", 50))

	serverConfig, logger := config.SetupServer()
	injectGlobals(logger) //inject the logger into all of the packages

	_, _ = maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
		Logger.Debug(fmt.Sprintf(format, args...))
	}))

	if *port != "" {
		serverConfig.ListenAddrPort = *port
	}

	if serverConfig.DatabaseType == "ephemeral" {
		fmt.Println("EPHEMERAL DATABASE MODE")
		fmt.Println("• Database will be destroyed on exit")
		fmt.Println()
	}

	if err := run(serverConfig); err != nil {
		Logger.Error("Server stopped with error", "error", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(serverConfig config.ServerConfig) error {
	kv, err := database.NewRepository(serverConfig)
	if err != nil {
		return fmt.Errorf("unable to open database: %w", err)
	}
	defer kv.Close()

	objects, err := storage.NewFSStore(serverConfig.StoragePath)
	if err != nil {
		return fmt.Errorf("unable to open object store: %w", err)
	}

	factory, err := pdfrenderer.NewEngineFactory(pdfrenderer.EngineOptions{
		Backend:         serverConfig.Backend,
		MaxInstances:    serverConfig.PDFiumMaxInstances,
		InstanceTimeout: serverConfig.PDFiumInstanceTimeout,
	})
	if err != nil {
		return err
	}
	previews := pdfrenderer.NewPreviewRegistry(engine.PreviewBasePath, serverConfig.PreviewTTL)
	loader := pdfrenderer.NewLoader(factory)
	defer func() {
		if err := loader.Close(); err != nil {
			Logger.Warn("Unable to close render engine", "error", err)
		}
	}()
	converter := pdfrenderer.NewConverter(loader,
		pdfrenderer.WithURLMinter(previews),
		pdfrenderer.WithMaxSurfacePixels(serverConfig.MaxSurfacePixels()))

	e := echo.New()
	e.HideBanner = true

	// JSON 404s for API endpoints
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
		}
		if code == http.StatusNotFound {
			c.JSON(http.StatusNotFound, map[string]string{
				"error":   "Not Found",
				"message": "The requested API endpoint does not exist",
				"path":    c.Request().URL.Path,
			})
			return
		}
		e.DefaultHTTPErrorHandler(err, c)
	}

	serverHandler := &engine.ServerHandler{
		Converter:    converter,
		Previews:     previews,
		Objects:      objects,
		KV:           kv,
		Echo:         e,
		ServerConfig: serverConfig,
	}
	Logger.Info("Initializing services...")
	if err := serverHandler.StartupChecks(); err != nil {
		return err
	}
	scheduler, err := serverHandler.InitializeSchedules()
	if err != nil {
		return err
	}
	defer scheduler.Stop()

	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))
	// multipart overhead on top of the file itself
	e.Use(middleware.BodyLimit(fmt.Sprintf("%dM", serverConfig.MaxUploadMB+1)))
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "method=${method}, uri=${uri}, status=${status}, latency=${latency_human}\n",
	}))

	Logger.Info("Setting up API routes...")
	serverHandler.RegisterRoutes()

	addr := fmt.Sprintf("%s:%s", serverConfig.ListenAddrIP, serverConfig.ListenAddrPort)
	Logger.Info("Starting API Server", "address", addr)
	fmt.Printf("\nAPI Server running on %s\n", addr)
	fmt.Printf("Health check: http://%s/api/health\n\n", addr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- e.Start(addr)
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed to start: %w", err)
		}
		return nil
	case <-ctx.Done():
		Logger.Info("Shutting down API Server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
