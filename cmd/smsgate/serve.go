package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"smsgate/internal/bus"
	"smsgate/internal/channel"
	"smsgate/internal/config"
	"smsgate/internal/domain"
	"smsgate/internal/ingest"
	"smsgate/internal/metrics"

	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Receive SMS events and run the ingestion pipeline",
		Long: `Starts every enabled transport (webhook, stdin) and the ingestion pipeline.
SIGHUP reloads the config policy and the contact directory. Press Ctrl+C to stop.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.General.DataDir, 0o700); err != nil {
		return err
	}

	rt, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	var settings atomic.Pointer[ingest.Settings]
	s := cfg.Settings()
	settings.Store(&s)

	queue := bus.New(cfg.General.QueueSize, logger)

	pipeline := ingest.NewPipeline(ingest.PipelineConfig{
		Queue:       queue,
		Coordinator: rt.coordinator,
		Settings:    func() ingest.Settings { return *settings.Load() },
		Workers:     cfg.General.Workers,
		Logger:      logger,
	})
	pipelineDone := make(chan struct{})
	go func() {
		defer close(pipelineDone)
		pipeline.Run(context.Background())
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	transportCtx, stopTransports := context.WithCancel(ctx)
	defer stopTransports()

	var channels []domain.Channel
	if wh := cfg.Channels.Webhook; wh.Enabled {
		webhook := channel.NewWebhook(channel.WebhookConfig{
			Host:   wh.Host,
			Port:   wh.Port,
			Path:   wh.Path,
			Secret: wh.Secret,
			Logger: logger,
		})
		if cfg.Metrics.Enabled {
			webhook.Handle(cfg.Metrics.Path, metrics.Handler())
			logger.Info("metrics enabled", "path", cfg.Metrics.Path)
		}
		if st := cfg.Channels.Stream; st.Enabled {
			stream := channel.NewStream(channel.StreamConfig{
				Events: rt.events,
				Types:  st.Types,
				Logger: logger,
			})
			defer stream.Close()
			webhook.Handle(st.Path, stream)
			logger.Info("event stream enabled", "path", st.Path)
		}
		channels = append(channels, webhook)
	}
	if cfg.Channels.Stdin.Enabled {
		channels = append(channels, channel.NewStdin(channel.StdinConfig{Logger: logger}))
	}
	if len(channels) == 0 {
		return fmt.Errorf("no transport enabled (channels.webhook or channels.stdin)")
	}

	var transports sync.WaitGroup
	for _, ch := range channels {
		transports.Add(1)
		go func(ch domain.Channel) {
			defer transports.Done()
			if err := ch.Start(transportCtx, queue); err != nil {
				logger.Error("transport error", "channel", ch.Name(), "err", err)
			}
			// stdin alone: end of input ends the run.
			if len(channels) == 1 {
				stopTransports()
			}
		}(ch)
		logger.Info("transport enabled", "channel", ch.Name())
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	logger.Info("smsgate started",
		"version", version,
		"workers", cfg.General.Workers,
		"gateway", s.SendToGateway,
		"gateway_method", rt.forwarder.Method(),
	)

loop:
	for {
		select {
		case <-hup:
			reload(cfgPath, cfg, &settings, rt)
		case <-transportCtx.Done():
			break loop
		}
	}

	logger.Info("shutting down...")
	stopTransports()

	const shutdownTimeout = 30 * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		transports.Wait()
		queue.Close()
		<-pipelineDone
		pipeline.Wait()
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
		return nil
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timed out, forcing exit")
		return fmt.Errorf("shutdown timed out")
	}
}

// reload re-reads the config file and contact directory. Events already
// dispatched keep the settings they started with. Listener, worker and
// gateway transport settings need a restart.
func reload(cfgPath string, current *config.Config, settings *atomic.Pointer[ingest.Settings], rt *app) {
	next, err := config.Load(cfgPath)
	if err != nil {
		logger.Error("config reload failed, keeping current settings", "err", err)
		return
	}
	s := next.Settings()
	settings.Store(&s)

	if next.Contacts.DirectoryPath != rt.directory.Path() {
		logger.Warn("contacts.directoryPath changed; restart to load the new file",
			"current", rt.directory.Path())
	}
	if next.Gateway.Method != current.Gateway.Method || next.Gateway.TimeoutSeconds != current.Gateway.TimeoutSeconds {
		logger.Warn("gateway method and timeout changes need a restart", "method", rt.forwarder.Method())
	}
	if err := rt.directory.Reload(); err != nil {
		logger.Error("contact directory reload failed", "err", err)
	}
	logger.Info("config reloaded",
		"gateway", s.SendToGateway,
		"keywords", len(s.BlockedKeywords),
		"contacts", rt.directory.Snapshot().Len(),
	)
}
