package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/probo/internal/app"
	"github.com/ternarybob/probo/internal/common"
	"github.com/ternarybob/probo/internal/server"
	"github.com/ternarybob/probo/internal/services/schedule"
)

// configPaths allows multiple -config flags, later files override earlier ones
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles  configPaths
	serverPort   = flag.Int("port", 0, "Status server port (overrides config)")
	serverPortP  = flag.Int("p", 0, "Status server port (shorthand, overrides config)")
	serverHost   = flag.String("host", "", "Status server host (overrides config)")
	captureOnly  = flag.Bool("capture", false, "Interactively capture an auth session and exit")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")

	config *common.Config
	logger arbor.ILogger
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	common.InstallCrashHandler("./logs")
	defer common.RecoverWithCrashFile()

	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("Probo version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	finalPort := *serverPort
	if *serverPortP != 0 {
		finalPort = *serverPortP
	}

	// Startup sequence (REQUIRED ORDER):
	// 1. Load config (defaults -> file1 -> file2 -> ... -> env)
	// 2. Apply CLI overrides (highest priority)
	// 3. Initialize logger
	// 4. Print banner
	var err error

	// Auto-discover config file if not specified
	if len(configFiles) == 0 {
		if _, err := os.Stat("probo.toml"); err == nil {
			configFiles = append(configFiles, "probo.toml")
		} else if _, err := os.Stat("deployments/probo.toml"); err == nil {
			configFiles = append(configFiles, "deployments/probo.toml")
		}
	}

	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		tempLogger := arbor.NewLogger()
		tempLogger.Fatal().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	common.ApplyFlagOverrides(config, finalPort, *serverHost)

	logger = common.InitLogger(config)
	common.PrintBanner(common.GetVersion())

	logger.Info().
		Strs("config_files", configFiles).
		Str("target", config.Target.BaseURL).
		Str("environment", config.Environment).
		Msg("Configuration loaded")

	application, err := app.New(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
		os.Exit(1)
	}
	defer application.Close()

	ctx, cancel := signalContext(logger)
	defer cancel()

	if *captureOnly {
		session, err := application.CaptureSession(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("Session capture failed")
			os.Exit(1)
		}
		logger.Info().
			Str("session_id", session.ID).
			Int("cookies", len(session.Cookies)).
			Msg("Auth session captured")
		return
	}

	// Status server runs alongside the run when enabled
	var srv *server.Server
	if config.Server.Enabled {
		srv, err = server.New(config, application.StorageManager.ResultStorage(), application.EventService, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to initialize status server")
			os.Exit(1)
		}
		go func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Fatal().Str("panic", fmt.Sprintf("%v", r)).Msg("Status server goroutine panicked")
				}
			}()
			if err := srv.Start(); err != nil {
				logger.Error().Err(err).Msg("Status server failed")
			}
		}()
	}

	exitCode := 0
	if config.Schedule.Enabled {
		exitCode = runScheduled(ctx, application)
	} else {
		exitCode = runOnce(ctx, application)
	}

	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Status server shutdown failed")
		}
	}

	if exitCode != 0 {
		application.Close()
		os.Exit(exitCode)
	}
}

// runOnce executes the matrix a single time. A fatal abort is the only
// non-zero exit; individual test failures are reported in the summary.
func runOnce(ctx context.Context, application *app.App) int {
	run, err := application.RunOnce(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Test run aborted")
		return 1
	}

	logger.Info().
		Str("run_id", run.ID).
		Str("status", string(run.Status)).
		Int("total", run.Summary.TotalTests).
		Int("passed", run.Summary.TotalPassed).
		Int("failed", run.Summary.TotalFailed).
		Int("warnings", run.Summary.TotalWarnings).
		Msg("Run finished")

	return 0
}

// runScheduled blocks executing runs on the configured cron until interrupted
func runScheduled(ctx context.Context, application *app.App) int {
	sched := schedule.NewService(func() error {
		_, err := application.RunOnce(ctx)
		return err
	}, logger)

	if err := sched.Start(config.Schedule.Cron); err != nil {
		logger.Error().Err(err).Msg("Failed to start schedule")
		return 1
	}

	logger.Info().
		Str("cron", config.Schedule.Cron).
		Msg("Running on schedule - Press Ctrl+C to stop")

	<-ctx.Done()
	sched.Stop()
	return 0
}

// signalContext returns a context cancelled on SIGINT/SIGTERM. Cancellation
// aborts the in-flight run at the next batch boundary.
func signalContext(logger arbor.ILogger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig, ok := <-sigChan
		if !ok {
			return
		}
		logger.Info().Str("signal", sig.String()).Msg("Interrupt received, stopping")
		cancel()
	}()

	return ctx, cancel
}
