// main.go
package main

import (
	"context"
	"flag"
	"fmt"
	stdlog "log"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/caarlos0/env/v8"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/arwahdevops/schemasync/internal/config"
	"github.com/arwahdevops/schemasync/internal/dialect"
	"github.com/arwahdevops/schemasync/internal/logger"
	"github.com/arwahdevops/schemasync/internal/metrics"
	"github.com/arwahdevops/schemasync/internal/secrets"
	"github.com/arwahdevops/schemasync/internal/server"
	schemasync "github.com/arwahdevops/schemasync/internal/sync" // alias to avoid clashing with the stdlib sync package
)

var (
	sourceConfigFlag  string
	sourceTypeFlag    string
	targetConfigFlag  string
	syncAllTables     bool
	syncAllViews      bool
	syncAllProcedures bool
	alterSync         bool
	createOnTarget    bool
	syncIndexes       bool
	syncObjectSpec    string
	rollbackSpec      string
)

func main() {
	flag.StringVar(&sourceConfigFlag, "source-config", "", "Path to the JSON document describing the source database connection (env: SOURCE_CONFIG_FILE)")
	flag.StringVar(&sourceTypeFlag, "source-db-type", "", "Vendor of the source database: mysql, postgresql, mongodb, neo4j, sqlserver or oracle (env: SOURCE_DB_TYPE)")
	flag.StringVar(&targetConfigFlag, "target-configs", "", "Path to the JSON document listing target database connections (env: TARGET_CONFIG_FILE)")
	flag.BoolVar(&syncAllTables, "sync-all-tables", false, "Synchronize every table in the target catalog against the source")
	flag.BoolVar(&syncAllViews, "sync-all-views", false, "Synchronize every view in the target catalog against the source")
	flag.BoolVar(&syncAllProcedures, "sync-all-procedures", false, "Synchronize every stored procedure in the target catalog against the source")
	flag.BoolVar(&alterSync, "alter-sync", false, "Reconcile divergent objects with ALTER statements instead of drop and recreate")
	flag.BoolVar(&createOnTarget, "create-on-target", false, "Create objects that exist on the source but are missing on the target")
	flag.BoolVar(&syncIndexes, "sync-indexes", false, "After table synchronization, create secondary indexes missing on the target")
	flag.StringVar(&syncObjectSpec, "sync-object", "", "Synchronize a single object (format: type:name)")
	flag.StringVar(&rollbackSpec, "rollback", "", "Roll back the last recorded change for an object on every target (format: type:name)")
	flag.Parse()

	// 1. Load environment variables (.env overrides)
	if err := godotenv.Overload(".env"); err != nil {
		stdlog.Printf("Warning: Could not load .env file: %v. Relying on environment variables.\n", err)
	}

	// 2. Initial config loading to get the logger settings
	preCfg := &struct {
		EnableJsonLogging bool `env:"ENABLE_JSON_LOGGING" envDefault:"false"`
		DebugMode         bool `env:"DEBUG_MODE" envDefault:"false"`
	}{}
	if err := env.Parse(preCfg); err != nil {
		stdlog.Fatalf("Failed to parse pre-configuration for logger: %v", err)
	}

	// 3. Initialize Zap logger
	if err := logger.Init(preCfg.DebugMode, preCfg.EnableJsonLogging); err != nil {
		stdlog.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Log.Sync() }()

	// 4. Load and validate configuration from environment variables
	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatal("Configuration loading error from environment", zap.Error(err))
	}

	// 5. Apply CLI flags on top of the environment
	applyCliOverrides(cfg)

	// Missing required configuration is the one condition that exits
	// non-zero. Everything past this point reports failures through logs
	// and exits zero.
	if cfg.SourceConfigFile == "" || cfg.SourceType == "" || cfg.TargetConfigFile == "" {
		logger.Log.Fatal("Source and target connection documents and the source database type are required.",
			zap.String("source_config", cfg.SourceConfigFile),
			zap.String("source_db_type", cfg.SourceType),
			zap.String("target_configs", cfg.TargetConfigFile))
	}

	sourceVendor, err := dialect.ParseVendor(cfg.SourceType)
	if err != nil {
		logger.Log.Fatal("Unsupported source database type.",
			zap.String("source_db_type", cfg.SourceType), zap.Error(err))
	}

	sourceParams, err := config.LoadSourceConfig(cfg.SourceConfigFile)
	if err != nil {
		logger.Log.Fatal("Failed to load the source connection document.", zap.Error(err))
	}
	targetEntries, err := config.LoadTargetConfigs(cfg.TargetConfigFile)
	if err != nil {
		logger.Log.Fatal("Failed to load the target connection document.", zap.Error(err))
	}
	if len(targetEntries) == 0 {
		logger.Log.Fatal("The target connection document lists no targets.",
			zap.String("target_configs", cfg.TargetConfigFile))
	}

	if !cfg.Ops.Requested() {
		logger.Log.Warn("No operations requested; nothing to do. See --help for the available flags.")
		return
	}

	// Reject malformed object specs before any database is contacted.
	if cfg.Ops.Rollback != "" {
		if _, _, err := schemasync.ParseObjectSpec(cfg.Ops.Rollback); err != nil {
			logger.Log.Error("Invalid --rollback value.", zap.Error(err))
			return
		}
	}
	if cfg.Ops.SyncObject != "" {
		if _, _, err := schemasync.ParseObjectSpec(cfg.Ops.SyncObject); err != nil {
			logger.Log.Error("Invalid --sync-object value.", zap.Error(err))
			return
		}
	}

	logLoadedConfig(cfg, sourceVendor, len(targetEntries))

	// 6. Setup context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 7. Initialize Metrics Store
	metricsStore := metrics.NewMetricsStore()

	// 8. Initialize the secret manager
	vaultMgr, vaultErr := secrets.NewVaultManager(cfg, logger.Log)
	if vaultErr != nil {
		if cfg.VaultEnabled {
			logger.Log.Fatal("Failed to initialize Vault secret manager", zap.Error(vaultErr))
		} else {
			logger.Log.Warn("Could not initialize Vault secret manager", zap.Error(vaultErr))
		}
	}

	// 9. Connect to the source and all targets in parallel. Rollback runs
	// entirely from each target's synchronization log, so the source is
	// not contacted in that mode.
	isRollback := cfg.Ops.Rollback != ""
	logger.Log.Info("Connecting to databases...")

	var sourceAdapter dialect.Adapter
	var sourceErr error
	conns := make([]targetConn, len(targetEntries))
	var dbWg sync.WaitGroup

	if !isRollback {
		dbWg.Add(1)
		go func() {
			defer dbWg.Done()
			sourceAdapter, sourceErr = connectEndpoint(ctx, "source", sourceVendor, sourceParams, vaultMgr, cfg, metricsStore)
		}()
	}
	for i := range targetEntries {
		vendor, err := dialect.ParseVendor(targetEntries[i].Type)
		if err != nil {
			conns[i].err = err
			continue
		}
		conns[i].vendor = vendor
		dbWg.Add(1)
		go func(i int, vendor dialect.Vendor, params *config.ConnectionParams) {
			defer dbWg.Done()
			alias := fmt.Sprintf("target_%d", i)
			conns[i].adapter, conns[i].err = connectEndpoint(ctx, alias, vendor, params, vaultMgr, cfg, metricsStore)
		}(i, vendor, &targetEntries[i].Config)
	}
	dbWg.Wait()

	defer func() {
		logger.Log.Info("Closing database connections...")
		if sourceAdapter != nil {
			if err := sourceAdapter.Close(); err != nil {
				logger.Log.Error("Error closing source connection", zap.Error(err))
			}
		}
		for i := range conns {
			if conns[i].adapter == nil {
				continue
			}
			if err := conns[i].adapter.Close(); err != nil {
				logger.Log.Error("Error closing target connection",
					zap.Int("target_index", i), zap.Error(err))
			}
		}
	}()

	if !isRollback && sourceErr != nil {
		logger.Log.Error("Failed to establish the source connection; no targets will be processed.", zap.Error(sourceErr))
		return
	}

	// 10. Turn successful connections into engine targets; connection
	// failures become failed results for that target only.
	targets := make([]schemasync.Target, 0, len(conns))
	var failedResults []schemasync.TargetResult
	for i := range conns {
		if conns[i].err != nil {
			alias := fmt.Sprintf("target_%d", i)
			logger.Log.Error("Target connection failed; it will be skipped this run.",
				zap.String("db", alias),
				zap.String("vendor", string(conns[i].vendor)),
				zap.Error(conns[i].err))
			metricsStore.DBReachable.WithLabelValues(alias).Set(0)
			failedResults = append(failedResults, schemasync.TargetResult{
				TargetIndex: i,
				Vendor:      conns[i].vendor,
				Err:         fmt.Errorf("target not reachable: %w", conns[i].err),
			})
			continue
		}
		targets = append(targets, schemasync.Target{Index: i, Vendor: conns[i].vendor, Adapter: conns[i].adapter})
	}

	// 11. Start HTTP server for metrics and health endpoints
	probes := make([]server.Probe, 0, len(targets)+1)
	if sourceAdapter != nil {
		probes = append(probes, server.Probe{Alias: "source", Pinger: sourceAdapter})
	}
	for _, t := range targets {
		probes = append(probes, server.Probe{Alias: fmt.Sprintf("target_%d", t.Index), Pinger: t.Adapter})
	}
	go server.RunHTTPServer(ctx, cfg, metricsStore, probes, logger.Log)

	// 12. Run the requested operations
	logger.Log.Info("Starting schema synchronization run...")
	metricsStore.SyncRunning.Set(1)
	runStart := time.Now()
	engine := schemasync.NewEngine(cfg, sourceAdapter, logger.Log, metricsStore)
	results := engine.Run(ctx, targets)
	metricsStore.RunDuration.Observe(time.Since(runStart).Seconds())
	metricsStore.SyncRunning.Set(0)

	results = append(results, failedResults...)
	sort.Slice(results, func(i, j int) bool { return results[i].TargetIndex < results[j].TargetIndex })

	// 13. Process and log results
	summarizeResults(results)
	if ctx.Err() != nil {
		logger.Log.Warn("Run was interrupted by a shutdown signal.", zap.Error(ctx.Err()))
	}
	logger.Log.Info("Run complete. Exiting.")
}

// targetConn is the outcome of one target connection attempt.
type targetConn struct {
	vendor  dialect.Vendor
	adapter dialect.Adapter
	err     error
}

// applyCliOverrides applies CLI flag values on top of the loaded Config and
// fills in the operation selection, which only exists as flags.
func applyCliOverrides(cfg *config.Config) {
	if sourceConfigFlag != "" {
		logger.Log.Info("Overriding SOURCE_CONFIG_FILE with CLI flag",
			zap.String("env_value", cfg.SourceConfigFile), zap.String("cli_value", sourceConfigFlag))
		cfg.SourceConfigFile = sourceConfigFlag
	}
	if sourceTypeFlag != "" {
		logger.Log.Info("Overriding SOURCE_DB_TYPE with CLI flag",
			zap.String("env_value", cfg.SourceType), zap.String("cli_value", sourceTypeFlag))
		cfg.SourceType = sourceTypeFlag
	}
	if targetConfigFlag != "" {
		logger.Log.Info("Overriding TARGET_CONFIG_FILE with CLI flag",
			zap.String("env_value", cfg.TargetConfigFile), zap.String("cli_value", targetConfigFlag))
		cfg.TargetConfigFile = targetConfigFlag
	}

	cfg.Ops = config.Operations{
		SyncAllTables:     syncAllTables,
		SyncAllViews:      syncAllViews,
		SyncAllProcedures: syncAllProcedures,
		SyncIndexes:       syncIndexes,
		CreateOnTarget:    createOnTarget,
		AlterSync:         alterSync,
		SyncObject:        strings.TrimSpace(syncObjectSpec),
		Rollback:          strings.TrimSpace(rollbackSpec),
	}
}

// logLoadedConfig records the final configuration in use.
func logLoadedConfig(cfg *config.Config, sourceVendor dialect.Vendor, targetCount int) {
	ops := cfg.Ops
	logger.Log.Info("Final configuration in use",
		zap.String("source_config", cfg.SourceConfigFile),
		zap.String("source_db_type", string(sourceVendor)),
		zap.String("target_configs", cfg.TargetConfigFile),
		zap.Int("target_count", targetCount),
		zap.Bool("sync_all_tables", ops.SyncAllTables),
		zap.Bool("sync_all_views", ops.SyncAllViews),
		zap.Bool("sync_all_procedures", ops.SyncAllProcedures),
		zap.Bool("sync_indexes", ops.SyncIndexes),
		zap.Bool("create_on_target", ops.CreateOnTarget),
		zap.Bool("alter_sync", ops.AlterSync),
		zap.String("sync_object", ops.SyncObject),
		zap.String("rollback", ops.Rollback),
		zap.Int("target_workers", cfg.TargetWorkers),
		zap.Duration("object_timeout", cfg.ObjectTimeout),
		zap.Int("max_retries", cfg.MaxRetries), zap.Duration("retry_interval", cfg.RetryInterval),
		zap.Int("conn_pool_size", cfg.ConnPoolSize), zap.Duration("conn_max_lifetime", cfg.ConnMaxLifetime),
		zap.Bool("json_logging", cfg.EnableJsonLogging), zap.Bool("enable_pprof", cfg.EnablePprof),
		zap.Int("metrics_port", cfg.MetricsPort), zap.Bool("debug_mode", cfg.DebugMode),
		zap.Bool("vault_enabled", cfg.VaultEnabled), zap.String("vault_addr", cfg.VaultAddr),
		zap.Bool("vault_token_present", cfg.VaultToken != ""), zap.String("vault_kv_mount", cfg.VaultMountPath),
	)
}

// connectEndpoint resolves credentials for one connection document entry and
// opens its adapter with retry.
func connectEndpoint(
	ctx context.Context,
	alias string,
	vendor dialect.Vendor,
	params *config.ConnectionParams,
	vaultMgr *secrets.VaultManager,
	cfg *config.Config,
	metricsStore *metrics.Store,
) (dialect.Adapter, error) {
	creds, err := secrets.Resolve(ctx, vaultMgr, params, alias, logger.Log)
	if err != nil {
		return nil, err
	}
	return connectWithRetry(ctx, alias, vendor, params, creds, cfg, metricsStore)
}

// connectWithRetry opens an adapter, retrying on failure. Every attempt is
// followed by a ping so a half-dead connection does not pass as healthy.
func connectWithRetry(
	ctx context.Context,
	alias string,
	vendor dialect.Vendor,
	params *config.ConnectionParams,
	creds secrets.Credentials,
	cfg *config.Config,
	metricsStore *metrics.Store,
) (dialect.Adapter, error) {
	opts := dialect.OpenOptions{
		PoolSize:    cfg.ConnPoolSize,
		MaxLifetime: cfg.ConnMaxLifetime,
		GormLogger:  logger.GetGormLogger(),
		Logger:      logger.Log,
	}
	var lastErr error

	for i := 0; i <= cfg.MaxRetries; i++ {
		attemptStart := time.Now()
		if i > 0 {
			logger.Log.Warn("Retrying database connection",
				zap.String("db", alias),
				zap.Int("attempt", i+1),
				zap.Int("max_attempts", cfg.MaxRetries+1),
				zap.Duration("wait_interval", cfg.RetryInterval),
				zap.NamedError("previous_error", lastErr))
			timer := time.NewTimer(cfg.RetryInterval)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, fmt.Errorf("context cancelled while waiting to retry connection to %s (attempt %d): %w; last error: %v", alias, i+1, ctx.Err(), lastErr)
			}
		}

		logger.Log.Info("Attempting to connect",
			zap.String("db", alias),
			zap.String("vendor", string(vendor)),
			zap.String("host", params.Host),
			zap.Int("port", params.Port),
			zap.String("database", params.Database),
			zap.String("user", creds.Username),
			zap.Int("attempt", i+1))

		adapter, err := dialect.Open(ctx, vendor, params, creds.Username, creds.Password, opts)
		if err != nil {
			lastErr = fmt.Errorf("connect attempt %d/%d failed for %s: %w", i+1, cfg.MaxRetries+1, alias, err)
			continue
		}

		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		pingErr := adapter.Ping(pingCtx)
		pingCancel()
		if pingErr != nil {
			lastErr = fmt.Errorf("ping attempt %d/%d failed for %s: %w", i+1, cfg.MaxRetries+1, alias, pingErr)
			_ = adapter.Close()
			continue
		}

		logger.Log.Info("Database connection successful",
			zap.String("db", alias),
			zap.Duration("connect_duration", time.Since(attemptStart)))
		metricsStore.DBReachable.WithLabelValues(alias).Set(1)
		return adapter, nil
	}

	logger.Log.Error("Failed to connect to database after all retries",
		zap.String("db", alias),
		zap.Int("attempts", cfg.MaxRetries+1),
		zap.NamedError("final_error", lastErr))
	metricsStore.DBReachable.WithLabelValues(alias).Set(0)
	return nil, fmt.Errorf("failed to connect to %s (%s) after %d attempts: %w", alias, vendor, cfg.MaxRetries+1, lastErr)
}

// summarizeResults logs the per-target verdicts and the overall run summary.
// The engine already logged each target's outcome tally; this is the final
// roll-up an operator reads first.
func summarizeResults(results []schemasync.TargetResult) {
	if len(results) == 0 {
		logger.Log.Warn("Run finished, but no targets were processed.")
		return
	}

	cleanCount := 0
	totalObjects := 0
	var problemTargets []string

	for _, res := range results {
		alias := fmt.Sprintf("target_%d", res.TargetIndex)
		totalObjects += len(res.Objects)

		if res.Err != nil {
			problemTargets = append(problemTargets, alias)
			logger.Log.Error("Target was not processed.",
				zap.String("db", alias),
				zap.String("vendor", string(res.Vendor)),
				zap.Error(res.Err))
			continue
		}
		if res.Clean() {
			cleanCount++
			continue
		}
		problemTargets = append(problemTargets, alias)
		if err := res.CombinedError(); err != nil {
			logger.Log.Error("Target finished with problems.",
				zap.String("db", alias),
				zap.String("vendor", string(res.Vendor)),
				zap.Duration("duration", res.Duration),
				zap.Error(err))
		} else {
			logger.Log.Warn("Target finished with warnings.",
				zap.String("db", alias),
				zap.String("vendor", string(res.Vendor)),
				zap.Duration("duration", res.Duration))
		}
	}

	logger.Log.Info("-------------------- Run Summary --------------------",
		zap.Int("targets_total", len(results)),
		zap.Int("targets_clean", cleanCount),
		zap.Int("objects_processed", totalObjects))
	if len(problemTargets) > 0 {
		logger.Log.Warn("Run completed with problems on some targets (see logs above).",
			zap.Strings("targets", problemTargets))
	} else {
		logger.Log.Info("Run completed successfully on all targets.")
	}
}
