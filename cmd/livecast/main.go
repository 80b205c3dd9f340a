package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/codefionn/livecast/internal/config"
	"github.com/codefionn/livecast/internal/consts"
	"github.com/codefionn/livecast/internal/logger"
	"github.com/codefionn/livecast/internal/pidfile"
	"github.com/codefionn/livecast/internal/pprof"
	"github.com/codefionn/livecast/internal/relay"
	"github.com/codefionn/livecast/internal/securemem"
	"github.com/codefionn/livecast/internal/session"
	"github.com/codefionn/livecast/internal/upstream/gemini"
	"github.com/codefionn/livecast/internal/web"
)

type options struct {
	configPath  string
	addr        string
	logLevel    string
	pprofAddr   string
	cpuProfile  string
	heapProfile string
	pidPath     string
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseArgs(args []string) (*options, error) {
	fs := flag.NewFlagSet("livecast", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := &options{}
	fs.StringVar(&opts.configPath, "config", "config/livecast.yaml", "Path to the config file (.yaml, .yml or .json)")
	fs.StringVar(&opts.addr, "addr", "", "Listen address, overrides the config file")
	fs.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error, none")
	fs.StringVar(&opts.pprofAddr, "pprof", "", "Serve pprof on this address (e.g. localhost:6060)")
	fs.StringVar(&opts.cpuProfile, "cpuprofile", "", "Write a CPU profile to this file")
	fs.StringVar(&opts.heapProfile, "memprofile", "", "Write a heap profile to this file on exit")
	fs.StringVar(&opts.pidPath, "pidfile", "", "Write the process ID to this file")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: %s [options]\n\n", fs.Name())
		fmt.Fprintln(fs.Output(), "Relays browser audio, images and text to a Gemini Live session.")
		fmt.Fprintln(fs.Output(), "\nOptions:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return opts, nil
}

// loadConfig layers the config file, the environment and the flags.
func loadConfig(opts *options, getenv func(string) string) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.ApplyEnv(getenv)

	if opts.addr != "" {
		cfg.Addr = opts.addr
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if opts.pprofAddr != "" {
		cfg.PprofAddr = opts.pprofAddr
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(args []string) (err error) {
	opts, err := parseArgs(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	securemem.Init(syscall.SIGHUP, syscall.SIGQUIT)
	defer securemem.Purge()

	cfg, err := loadConfig(opts, os.Getenv)
	if err != nil {
		return err
	}
	defer cfg.APIKey.Destroy()

	if err := logger.Init(logger.ParseLevel(cfg.LogLevel), cfg.LogPath); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		if err != nil {
			logger.Error("Fatal error: %v", err)
		}
		if closeErr := logger.Global().Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close logger: %v\n", closeErr)
		}
	}()

	slog.SetDefault(slog.New(logger.NewSlogHandler(logger.Global())))

	logger.Info("livecast starting")
	logger.Debug("Configuration loaded: addr=%s model=%s voice=%s log_level=%s", cfg.Addr, cfg.Model, cfg.Voice, cfg.LogLevel)

	if err := cfg.RequireAPIKey(); err != nil {
		// sessions fail until the key is set; the server still starts
		logger.Warn("%v", err)
	}

	if opts.pidPath != "" {
		pf, err := pidfile.Create(opts.pidPath)
		if err != nil {
			return err
		}
		defer func() {
			if rmErr := pf.Remove(); rmErr != nil {
				logger.Warn("%v", rmErr)
			}
		}()
	}

	profCfg := pprof.Config{
		HTTPAddr:    cfg.PprofAddr,
		CPUProfile:  opts.cpuProfile,
		HeapProfile: opts.heapProfile,
	}
	if profCfg.Enabled() {
		profiler := pprof.NewHandler(profCfg)
		if err := profiler.Start(); err != nil {
			return err
		}
		defer func() {
			if stopErr := profiler.Stop(); stopErr != nil {
				logger.Warn("Failed to stop profiling: %v", stopErr)
			}
		}()
	}

	instructions := config.NewInstructions(cfg)
	defer instructions.Close()

	manager := relay.NewManager(relay.Options{
		Factory:            gemini.NewFactory(cfg, instructions),
		Registry:           session.NewRegistry(),
		Executor:           relay.StubExecutor{},
		Logger:             logger.Global(),
		IdleTimeout:        cfg.IdleTimeout(),
		ToolQueueWarnDepth: cfg.ToolQueueWarnDepth,
	})

	srv := web.NewServer(cfg, manager)
	if err := srv.Start(); err != nil {
		return err
	}
	logger.Info("Server started on %s", srv.Addr())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	stop()

	logger.Info("Shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), consts.ShutdownTimeout)
	defer cancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}
	logger.Info("livecast stopped")
	return nil
}
