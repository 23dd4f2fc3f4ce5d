package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"matador/internal/backend"
	"matador/internal/chat"
	"matador/internal/cli"
	"matador/internal/config"
	"matador/internal/extractor"
	"matador/internal/extractor/deepseek"
	"matador/internal/extractor/gemini"
	apphttp "matador/internal/http"
	"matador/internal/log"
	"matador/internal/services"
	"matador/internal/whatsapp"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, logger := cli.LoadConfig(log.ComponentApp)
	if err := cfg.ValidateExtractor(); err != nil {
		cli.Fatal(logger, "Extractor configuration invalid", err)
	}

	ctx, stop := cli.SignalContext(logger)
	defer stop()
	ctx = log.NewContext(ctx, logger)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		cli.Fatal(logger, "Invalid backend configuration", err)
	}
	be, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize backend", err)
	}
	defer func() {
		if err := be.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err)
		}
	}()

	ex, closeEx, err := newExtractor(ctx, cfg)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize extractor", err)
	}
	defer closeEx()

	var opts []services.Option
	if be.Publisher != nil {
		opts = append(opts, services.WithPublisher(be.Publisher))
	}
	service := services.NewTransactionService(be.Store, opts...)
	dispatcher := chat.NewDispatcher(be.Store, service, ex, cfg.ExtractorTimeout)

	var webhookOpts []whatsapp.Option
	if cfg.TwilioAuthToken != "" {
		webhookOpts = append(webhookOpts, whatsapp.WithSignature(cfg.TwilioAuthToken, cfg.PublicWebhookURL))
	} else {
		logger.Warn("TWILIO_AUTH_TOKEN not set, webhook signatures are not verified")
	}

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Dependencies{
		Store:                    be.Store,
		Service:                  service,
		Webhook:                  whatsapp.NewWebhook(dispatcher, webhookOpts...),
		LeaderboardSize:          cfg.LeaderboardSize,
		Logger:                   logger,
		WebhookRequestsPerMinute: cfg.WebhookRateLimit,
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting El Matador",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			"extractor", cfg.ExtractorProvider,
			"events", be.Publisher != nil)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			cli.Fatal(logger, "Server error", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", log.FieldError, err)
	}
	logger.Info("Server stopped gracefully")
}

func newExtractor(ctx context.Context, cfg *config.Config) (extractor.Extractor, func(), error) {
	switch cfg.ExtractorProvider {
	case "gemini":
		c, err := gemini.New(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, nil, err
		}
		return c, func() { _ = c.Close() }, nil
	default:
		c, err := deepseek.New(deepseek.Config{
			APIKey:  cfg.DeepSeekAPIKey,
			URL:     cfg.DeepSeekAPIURL,
			Model:   cfg.DeepSeekModel,
			Timeout: cfg.ExtractorTimeout,
		})
		if err != nil {
			return nil, nil, err
		}
		return c, func() {}, nil
	}
}
