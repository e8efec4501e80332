package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/researchportal/datashare-coordinator/internal/api"
	"github.com/researchportal/datashare-coordinator/internal/config"
	"github.com/researchportal/datashare-coordinator/internal/coordination"
	"github.com/researchportal/datashare-coordinator/internal/httpclient"
	"github.com/researchportal/datashare-coordinator/internal/logger"
	"github.com/researchportal/datashare-coordinator/internal/poller"
	"github.com/researchportal/datashare-coordinator/internal/telemetry"
	"github.com/researchportal/datashare-coordinator/internal/versions"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the coordination server",
	Long: `Start the coordination server exposing the data-sharing REST API.

The server requires a configuration file (--config) that specifies:
- The coordination FHIR endpoint and its OAuth2 credentials
- The portal frontend base URL for contract links
- Optional delivery watcher and telemetry settings

See examples/ directory for sample configurations.`,
	RunE: runServe,
}

const (
	defaultGracefulTimeout = 30 * time.Second
	serverRequestTimeout   = 30 * time.Second // poll requests page through the remote store
	serverReadTimeout      = 10 * time.Second
	serverWriteTimeout     = 35 * time.Second // must exceed serverRequestTimeout so middleware handles the timeout
	serverIdleTimeout      = 60 * time.Second
)

func init() {
	serveCmd.Flags().String("address", "", "Address to listen on (overrides configuration)")
	serveCmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")

	if err := viper.BindPFlag("address", serveCmd.Flags().Lookup("address")); err != nil {
		logger.Fatalf("Failed to bind address flag: %v", err)
	}
	if err := viper.BindPFlag("config", serveCmd.Flags().Lookup("config")); err != nil {
		logger.Fatalf("Failed to bind config flag: %v", err)
	}

	if err := serveCmd.MarkFlagRequired("config"); err != nil {
		logger.Fatalf("Failed to mark config flag as required: %v", err)
	}
}

// buildFHIRClient assembles the outbound client for the coordination endpoint
func buildFHIRClient(cfg *config.Config) (httpclient.Client, error) {
	var opts []httpclient.Option
	if timeout := cfg.GetTimeout(); timeout > 0 {
		opts = append(opts, httpclient.WithTimeout(timeout))
	}

	if cfg.Coordination.AuthConfigured() {
		secret, err := cfg.Coordination.GetClientSecret()
		if err != nil {
			return nil, fmt.Errorf("failed to read client secret: %w", err)
		}
		opts = append(opts, httpclient.WithClientCredentials(
			cfg.Coordination.TokenURL,
			cfg.Coordination.ClientID,
			secret,
		))
	} else {
		logger.Warn("No OAuth2 client credentials configured, requests are unauthenticated")
	}

	return httpclient.NewDefaultClient(cfg.Coordination.FHIRBaseURL, opts...), nil
}

// instrumentedService records coordination metrics around the write operations
type instrumentedService struct {
	coordination.Service
	metrics *telemetry.CoordinationMetrics
}

func (s *instrumentedService) CreateCoordinationTask(
	ctx context.Context,
	params coordination.CreateParams,
) (*coordination.Handle, error) {
	handle, err := s.Service.CreateCoordinationTask(ctx, params)
	s.metrics.RecordRoundStarted(ctx, err == nil)
	return handle, err
}

func (s *instrumentedService) ExtendDeliveryWindow(
	ctx context.Context,
	businessKey string,
	newDeliveryDate time.Time,
) error {
	err := s.Service.ExtendDeliveryWindow(ctx, businessKey, newDeliveryDate)
	if err == nil {
		s.metrics.RecordDecision(ctx, "extend")
	}
	return err
}

func (s *instrumentedService) ReleaseConsolidation(ctx context.Context, businessKey string) error {
	err := s.Service.ReleaseConsolidation(ctx, businessKey)
	if err == nil {
		s.metrics.RecordDecision(ctx, "release")
	}
	return err
}

// trackingService wraps the coordination service so that the delivery watcher
// follows every round the API starts and drops released ones.
type trackingService struct {
	coordination.Service
	watcher poller.Watcher
}

func (s *trackingService) CreateCoordinationTask(
	ctx context.Context,
	params coordination.CreateParams,
) (*coordination.Handle, error) {
	handle, err := s.Service.CreateCoordinationTask(ctx, params)
	if err == nil {
		s.watcher.Track(handle.BusinessKey)
	}
	return handle, err
}

func (s *trackingService) ReleaseConsolidation(ctx context.Context, businessKey string) error {
	err := s.Service.ReleaseConsolidation(ctx, businessKey)
	if err == nil {
		s.watcher.Untrack(businessKey)
	}
	return err
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	configPath := viper.GetString("config")
	cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	address := viper.GetString("address")
	if address == "" {
		address = cfg.GetAddress()
	}

	logger.Infof("Starting data-sharing coordination server on %s", address)
	logger.Infof("Loaded configuration from %s (endpoint: %s)", configPath, cfg.Coordination.FHIRBaseURL)
	if cfg.Coordination.TestMode {
		logger.Warn("Test mode enabled, coordination requests use sandbox identifiers")
	}

	tel, err := telemetry.New(ctx,
		telemetry.WithEnabled(cfg.Telemetry != nil && cfg.Telemetry.Enabled),
		telemetry.WithServiceName(cfg.GetServiceName()),
		telemetry.WithServiceVersion(versions.GetVersionInfo().Version),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("Failed to shut down telemetry: %v", err)
		}
	}()

	fhirClient, err := buildFHIRClient(cfg)
	if err != nil {
		return err
	}

	protocol := coordination.NewTaskClient(fhirClient, nil)
	responses := coordination.NewResponseService(fhirClient)
	svc := coordination.NewService(protocol, responses, coordination.Config{
		FrontendURL: cfg.Frontend.BaseURL,
		TestMode:    cfg.Coordination.TestMode,
	})

	pollMetrics, err := telemetry.NewPollMetrics(tel.MeterProvider())
	if err != nil {
		return fmt.Errorf("failed to create poll metrics: %w", err)
	}
	coordMetrics, err := telemetry.NewCoordinationMetrics(tel.MeterProvider())
	if err != nil {
		return fmt.Errorf("failed to create coordination metrics: %w", err)
	}

	var serverSvc coordination.Service = &instrumentedService{Service: svc, metrics: coordMetrics}
	var watcher poller.Watcher
	if cfg.Poller != nil && cfg.Poller.Enabled {
		watcher = poller.New(svc,
			poller.WithInterval(cfg.GetPollerInterval()),
			poller.WithPollMetrics(pollMetrics),
			poller.WithNotifier(func(dataSet coordination.ReceivedDataSet) {
				logger.Infow("Data set received",
					"business_key", dataSet.BusinessKey,
					"dic", dataSet.DICIdentifier,
					"url", dataSet.DataSetURL)
			}),
		)
		serverSvc = &trackingService{Service: serverSvc, watcher: watcher}

		watchCtx, watchCancel := context.WithCancel(context.Background())
		defer watchCancel()
		go func() {
			if err := watcher.Start(watchCtx); err != nil {
				logger.Errorf("Delivery watcher failed: %v", err)
			}
		}()
	}

	metricsMiddleware, err := telemetry.MetricsMiddleware(tel.MeterProvider())
	if err != nil {
		return fmt.Errorf("failed to create metrics middleware: %w", err)
	}

	serverOpts := []api.ServerOption{
		api.WithMiddlewares(
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(serverRequestTimeout),
			metricsMiddleware,
			api.LoggingMiddleware,
		),
	}
	if handler := tel.Handler(); handler != nil {
		serverOpts = append(serverOpts, api.WithMetricsHandler(handler))
	}

	router := api.NewServer(serverSvc, serverOpts...)

	server := &http.Server{
		Addr:         address,
		Handler:      router,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	go func() {
		logger.Infof("Server listening on %s", address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	if watcher != nil {
		if err := watcher.Stop(); err != nil {
			logger.Errorf("Failed to stop delivery watcher: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
		return err
	}

	logger.Info("Server shutdown complete")
	return nil
}
