package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/exabgpd/bgpd/internal/api"
	"github.com/exabgpd/bgpd/internal/audit"
	"github.com/exabgpd/bgpd/internal/config"
	"github.com/exabgpd/bgpd/internal/db"
	"github.com/exabgpd/bgpd/internal/eventbus"
	"github.com/exabgpd/bgpd/internal/httpapi"
	"github.com/exabgpd/bgpd/internal/metrics"
	"github.com/exabgpd/bgpd/internal/process"
	"github.com/exabgpd/bgpd/internal/reactor"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe()
	case "migrate":
		runMigrate()
	case "maintenance":
		runMaintenance()
	case "--help", "-h", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: bgpd <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve         Start the BGP speaker")
	fmt.Println("  migrate       Run audit-sink database migrations")
	fmt.Println("  maintenance   Run audit partition maintenance (create new, drop old)")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --config <path>   Path to configuration YAML file")
	fmt.Println("  --log-level <lvl> Override log level (debug, info, warn, error)")
}

func parseFlags(args []string) (configPath string, logLevel string) {
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config":
			if i+1 < len(args) {
				configPath = args[i+1]
				i++
			}
		case "--log-level":
			if i+1 < len(args) {
				logLevel = args[i+1]
				i++
			}
		}
	}
	return
}

func loadConfig(args []string) (*config.Config, *zap.Logger) {
	configPath, logLevelOverride := parseFlags(args)

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if logLevelOverride != "" {
		cfg.Service.LogLevel = logLevelOverride
	}

	logger := initLogger(cfg.Service.LogLevel)
	return cfg, logger
}

func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zap.DebugLevel
	case "warn":
		zapLevel = zap.WarnLevel
	case "error":
		zapLevel = zap.ErrorLevel
	default:
		zapLevel = zap.InfoLevel
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(zapLevel)
	zapCfg.EncoderConfig.TimeKey = "ts"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zapCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

// migrationsDir returns the path to the audit schema's migrations,
// relative to the binary so packaged installs don't need an absolute
// path baked into configuration.
func migrationsDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "migrations/audit"
	}
	return filepath.Join(filepath.Dir(exe), "migrations", "audit")
}

func runServe() {
	cfg, logger := loadConfig(os.Args[2:])
	defer logger.Sync()

	metrics.Register()

	logger.Info("starting bgpd",
		zap.String("instance_id", cfg.Service.InstanceID),
		zap.Uint32("local_asn", cfg.Service.LocalASN),
		zap.Strings("listen", cfg.Listen.Addresses),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Optional audit sink ---
	var auditPool *pgxpool.Pool
	var auditWriterEvents chan *audit.Event
	if cfg.Audit.DSN != "" {
		pool, err := db.NewPool(ctx, cfg.Audit.DSN, cfg.Audit.MaxConns, cfg.Audit.MinConns)
		if err != nil {
			logger.Fatal("failed to connect to audit database", zap.Error(err))
		}
		auditPool = pool

		pm := audit.NewPartitionManager(pool, cfg.Audit.RetentionDays, cfg.Audit.Timezone, logger.Named("audit.partitions"))
		if err := pm.CreatePartitions(ctx); err != nil {
			logger.Fatal("failed to create audit partitions on startup", zap.Error(err))
		}

		writer := audit.NewWriter(pool, logger.Named("audit.writer"), cfg.Audit.StoreRaw, cfg.Audit.CompressRaw)
		flushInterval := time.Duration(cfg.Audit.FlushIntervalMs) * time.Millisecond
		pipeline := audit.NewPipeline(writer, cfg.Audit.BatchSize, flushInterval, logger.Named("audit.pipeline"))

		auditWriterEvents = make(chan *audit.Event, 256)
		go pipeline.Run(ctx, auditWriterEvents)
		logger.Info("audit sink started")
	}

	// --- Optional event bus publisher ---
	var bus *eventbus.Publisher
	var busEvents chan []byte
	if len(cfg.EventBus.Brokers) > 0 {
		saslMech := eventbus.BuildSASL(cfg.EventBus.SASL.Enabled, cfg.EventBus.SASL.Mechanism, cfg.EventBus.SASL.Username, cfg.EventBus.SASL.Password)
		p, err := eventbus.NewPublisher(cfg.EventBus.Brokers, cfg.EventBus.Topic, cfg.EventBus.ClientID, nil, saslMech, logger.Named("eventbus"))
		if err != nil {
			logger.Fatal("failed to create event bus publisher", zap.Error(err))
		}
		bus = p
		busEvents = make(chan []byte, 256)
		go bus.Run(ctx, busEvents)
		logger.Info("event bus publisher started", zap.Strings("brokers", cfg.EventBus.Brokers), zap.String("topic", cfg.EventBus.Topic))
	}

	// The reactor emits one route/session event stream; tee it to whichever
	// of the audit database and the event bus are configured, converting to
	// each sink's own representation.
	var auditEvents chan reactor.AuditEvent
	if auditWriterEvents != nil || busEvents != nil {
		auditEvents = make(chan reactor.AuditEvent, 256)
		go func() {
			for ev := range auditEvents {
				if auditWriterEvents != nil {
					auditWriterEvents <- &audit.Event{
						Time: ev.Time, Neighbor: ev.Neighbor, PeerASN: ev.PeerASN,
						Kind: audit.Kind(ev.Kind), Family: ev.Family, Prefix: ev.Prefix, NextHop: ev.NextHop,
					}
				}
				if busEvents != nil {
					if payload, err := json.Marshal(ev); err != nil {
						logger.Warn("failed to marshal event for event bus", zap.Error(err))
					} else {
						busEvents <- payload
					}
				}
			}
			if auditWriterEvents != nil {
				close(auditWriterEvents)
			}
			if busEvents != nil {
				close(busEvents)
			}
		}()
	}

	// --- Reactor ---
	var hooks api.Hooks
	hooks.Shutdown = func() { cancel() }
	hooks.Reload = func() {
		logger.Warn("reload requested but not yet supported; restart the process to pick up configuration changes")
	}

	var auditSink reactor.AuditSink
	if auditEvents != nil {
		auditSink = auditEvents
	}
	r, err := reactor.New(cfg, logger, auditSink, hooks)
	if err != nil {
		logger.Fatal("failed to build reactor", zap.Error(err))
	}
	if err := r.Listen(cfg.Listen.Addresses); err != nil {
		logger.Fatal("failed to open listeners", zap.Error(err))
	}

	reactorErrCh := make(chan error, 1)
	go func() { reactorErrCh <- r.Run(ctx) }()

	// --- HTTP health/metrics server ---
	httpSrv := httpapi.NewServer(cfg.Service.MetricsListen, r, auditPool, logger.Named("httpapi"))
	if err := httpSrv.Start(); err != nil {
		logger.Fatal("failed to start HTTP server", zap.Error(err))
	}

	// --- FIFO CLI ---
	if cfg.FIFO.InPath != "" {
		go func() {
			if err := runFIFO(ctx, cfg.FIFO, r, logger.Named("fifo")); err != nil && ctx.Err() == nil {
				logger.Warn("fifo CLI stopped", zap.Error(err))
			}
		}()
	}

	// --- Helper processes ---
	if len(cfg.Processes) > 0 {
		procMgr := process.NewManager(cfg.Processes, logger)
		go func() {
			err := procMgr.Run(ctx, func(dctx context.Context, line string) (string, error) {
				resp, err := r.Dispatch(dctx, line)
				if err != nil {
					return "", err
				}
				return resp.EncodeText(), nil
			})
			if err != nil && ctx.Err() == nil {
				logger.Warn("process manager stopped", zap.Error(err))
			}
		}()
	}

	logger.Info("bgpd started", zap.Int("neighbors", r.ConfiguredCount()))

	// OS signal handling (SIGTERM/SIGINT/SIGHUP/SIGUSR1) lives in the
	// reactor itself now, behind its deduplicated signal queue — it calls
	// hooks.Shutdown (cancel above) on SIGTERM/SIGINT, so waiting on
	// ctx.Done() here covers both a signal-driven and an API-driven
	// ("shutdown"/"bye" command) shutdown identically.
	var reactorExited bool
	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-reactorErrCh:
		reactorExited = true
		if err != nil {
			logger.Error("reactor exited unexpectedly", zap.Error(err))
		}
	}

	shutdownTimeout := time.Duration(cfg.Service.ShutdownTimeoutSeconds) * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	var shutdownErr error
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		shutdownErr = multierr.Append(shutdownErr, fmt.Errorf("http shutdown: %w", err))
	}

	cancel()

	if !reactorExited {
		select {
		case err := <-reactorErrCh:
			if err != nil {
				shutdownErr = multierr.Append(shutdownErr, fmt.Errorf("reactor: %w", err))
			}
		case <-shutdownCtx.Done():
			shutdownErr = multierr.Append(shutdownErr, fmt.Errorf("reactor: shutdown timeout"))
		}
	}

	if auditEvents != nil {
		close(auditEvents)
	}
	if bus != nil {
		bus.Close()
	}
	if auditPool != nil {
		auditPool.Close()
	}

	if shutdownErr != nil {
		logger.Error("bgpd shutdown completed with errors", zap.Error(shutdownErr))
	}
	logger.Info("bgpd stopped")
}

// runFIFO implements the FIFO CLI: lines read from FIFO.InPath are
// dispatched through the reactor's own goroutine and the response is
// written as one line to FIFO.OutPath, the same line-in/line-out contract
// forked helper processes use.
func runFIFO(ctx context.Context, cfg config.FIFOConfig, r *reactor.Reactor, logger *zap.Logger) error {
	if err := ensureFIFO(cfg.InPath); err != nil {
		return fmt.Errorf("fifo: creating %s: %w", cfg.InPath, err)
	}
	if err := ensureFIFO(cfg.OutPath); err != nil {
		return fmt.Errorf("fifo: creating %s: %w", cfg.OutPath, err)
	}

	in, err := os.OpenFile(cfg.InPath, os.O_RDONLY, 0)
	if err != nil {
		return fmt.Errorf("fifo: opening %s for reading: %w", cfg.InPath, err)
	}
	defer in.Close()

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Text()
		resp, err := r.Dispatch(ctx, line)
		if err != nil {
			logger.Warn("fifo dispatch failed", zap.Error(err))
			continue
		}
		if werr := writeFIFOResponse(cfg.OutPath, resp.EncodeText()); werr != nil {
			logger.Warn("fifo response write failed", zap.Error(werr))
		}
	}
	return scanner.Err()
}

func ensureFIFO(path string) error {
	if info, err := os.Stat(path); err == nil {
		if info.Mode()&os.ModeNamedPipe == 0 {
			return fmt.Errorf("fifo: %s exists and is not a named pipe", path)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return syscall.Mkfifo(path, 0600)
}

func writeFIFOResponse(path, line string) error {
	out, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = out.WriteString(line + "\n")
	return err
}

func runMigrate() {
	cfg, logger := loadConfig(os.Args[2:])
	defer logger.Sync()

	if cfg.Audit.DSN == "" {
		logger.Info("audit.dsn not set, nothing to migrate")
		return
	}

	logger.Info("running audit schema migrations", zap.String("dsn", redactDSN(cfg.Audit.DSN)))

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.Audit.DSN, cfg.Audit.MaxConns, cfg.Audit.MinConns)
	if err != nil {
		logger.Fatal("failed to connect to audit database", zap.Error(err))
	}
	defer pool.Close()

	if err := db.RunMigrations(ctx, pool, migrationsDir(), logger); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}

	logger.Info("migrations complete")
}

func runMaintenance() {
	cfg, logger := loadConfig(os.Args[2:])
	defer logger.Sync()

	if cfg.Audit.DSN == "" {
		logger.Info("audit.dsn not set, nothing to maintain")
		return
	}

	logger.Info("running audit partition maintenance",
		zap.Int("retention_days", cfg.Audit.RetentionDays),
		zap.String("timezone", cfg.Audit.Timezone),
	)

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.Audit.DSN, cfg.Audit.MaxConns, cfg.Audit.MinConns)
	if err != nil {
		logger.Fatal("failed to connect to audit database", zap.Error(err))
	}
	defer pool.Close()

	pm := audit.NewPartitionManager(pool, cfg.Audit.RetentionDays, cfg.Audit.Timezone, logger)
	if err := pm.Run(ctx); err != nil {
		logger.Fatal("maintenance failed", zap.Error(err))
	}

	logger.Info("partition maintenance complete")
}

func redactDSN(dsn string) string {
	if !strings.Contains(dsn, "://") {
		re := regexp.MustCompile(`password\s*=\s*\S+`)
		return re.ReplaceAllString(dsn, "password=***")
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}
