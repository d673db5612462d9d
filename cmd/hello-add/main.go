package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	helloadd "github.com/xizhibei/go-hello-add"
	"github.com/xizhibei/go-hello-add/admin"
	"github.com/xizhibei/go-hello-add/calc"
	"github.com/xizhibei/go-hello-add/config"
	"github.com/xizhibei/go-hello-add/httpjson"
	"github.com/xizhibei/go-hello-add/telemetry"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Set with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:          "hello-add",
		Short:        "Serve the greeting and addition JSON API",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, afero.NewOsFs())
			if err != nil {
				return err
			}

			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			zap.ReplaceGlobals(logger)
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg)
		},
	}

	if err := config.BindFlags(cmd, v); err != nil {
		fmt.Fprintf(os.Stderr, "Error binding flags: %v\n", err)
		os.Exit(1)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	})

	return cmd
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.EffectiveLogLevel())
	if err != nil {
		return nil, err
	}

	zc := lo.Ternary(cfg.Debug, zap.NewDevelopmentConfig(), zap.NewProductionConfig())
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.Encoding = cfg.LogFormat
	if cfg.LogFormat == "console" {
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return zc.Build()
}

// run serves until ctx is done, then shuts everything down within the shutdown timeout.
func run(ctx context.Context, cfg *config.Config) error {
	log := zap.S().With("module", "hello-add.main")

	tel, err := telemetry.NewFromEnv(ctx, cfg.ServiceName, version)
	if err != nil {
		log.Warnf("Failed to initialize telemetry: %v", err)
		tel = telemetry.Disabled()
	}
	if tel.IsEnabled() {
		log.Infof("Telemetry enabled")
	}

	server := httpjson.NewServer(httpjson.ServerOptions{
		Addr:             cfg.ListenAddress,
		ShutdownTimeout:  cfg.ShutdownTimeout,
		CompressMinBytes: cfg.CompressMinBytes,
		MaxBodyBytes:     int64(cfg.MaxBodyBytes),
	}, validator.New(),
		helloadd.WithServerName(cfg.ServiceName),
		helloadd.WithErrorClasses(calc.Errors...),
		helloadd.WithLogResponse(cfg.LogResponse),
		helloadd.WithWorkerNum(cfg.WorkerNum),
		helloadd.WithHandlerTimeout(cfg.HandlerTimeout),
	)
	server.SetTelemetry(tel)
	calc.Register(server, cfg.HandlerTimeout)

	var adminServer *admin.Server
	if cfg.MetricsListenAddress != "" {
		metrics := admin.NewMetrics()
		metrics.Attach(server)
		adminServer = admin.NewServer(cfg.MetricsListenAddress, metrics, server)
		if err := adminServer.Start(); err != nil {
			return err
		}
	}

	if err := server.Start(); err != nil {
		return err
	}
	log.Infof("Serving %v", server.Routes())

	<-ctx.Done()
	log.Infof("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		log.Errorf("Error stopping server: %v", err)
	}
	if adminServer != nil {
		if err := adminServer.Stop(shutdownCtx); err != nil {
			log.Errorf("Error stopping admin server: %v", err)
		}
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Error shutting down telemetry: %v", err)
	}
	return nil
}
