package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/yieldworks/mvault/internal/config"
	"github.com/yieldworks/mvault/internal/ledger"
	"github.com/yieldworks/mvault/internal/logger"
	"github.com/yieldworks/mvault/internal/reporter"
	"github.com/yieldworks/mvault/internal/state"
	"github.com/yieldworks/mvault/internal/strategy"
	"github.com/yieldworks/mvault/internal/strategy/simlend"
	"github.com/yieldworks/mvault/internal/types"
	"github.com/yieldworks/mvault/internal/vault"
	"github.com/yieldworks/mvault/internal/web"
)

// main is the entry point for the mvault engine.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(os.Getenv("LOG_LEVEL"))
	log.Info().Msg("mvault engine starting...")

	// --- 2. Persistence (optional) ---
	dbEnabled := config.DBHost != ""
	var recorder vault.Recorder
	var outflowStore vault.OutflowStore
	memRecorder := state.NewMemoryRecorder()

	if dbEnabled {
		dbCfg := state.DBConfig{
			Host: config.DBHost, Port: config.DBPort,
			User: config.DBUser, Password: config.DBPassword,
			DBName: config.DBName, SSLMode: config.DBSSLMode,
		}
		if err := state.InitDB(dbCfg); err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize database")
		}
		defer state.CloseDB()
		if err := state.EnsureSchema(); err != nil {
			log.Fatal().Err(err).Msg("Failed to ensure database schema")
		}
		recorder = state.PGRecorder{}
		outflowStore = state.PGOutflowStore{}
	} else {
		log.Warn().Msg("DB_HOST not set; running with in-memory persistence only.")
		recorder = memRecorder
		outflowStore = state.NewMemoryOutflowStore()
	}

	// --- 3. Ledger & Vault Engine ---
	lgr := ledger.New()
	host := ledger.Account(config.HostAccount)

	v, err := vault.New(vault.Config{
		Ledger:       lgr,
		HostAccount:  host,
		Recorder:     recorder,
		OutflowStore: outflowStore,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create vault engine")
	}

	if dbEnabled {
		restoreOutflowState(v)
	}

	// --- 4. Mount Strategies from Manifest ---
	manifest, err := config.LoadManifest(config.ManifestPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load strategy manifest")
	}

	factory := adapterFactory(lgr)
	for _, entry := range manifest.Strategies {
		adapter, err := factory(entry.Kind, types.AdapterID(entry.ID))
		if err != nil {
			log.Fatal().Err(err).Str("id", entry.ID).Msg("Failed to construct strategy adapter")
		}
		if err := v.AddStrategy(adapter, []byte(entry.Init)); err != nil {
			log.Fatal().Err(err).Str("id", entry.ID).Msg("Failed to add strategy")
		}
	}
	log.Info().Int("strategies", len(manifest.Strategies)).Msg("Strategy manifest mounted")

	if manifest.Outflow != nil {
		limit, ok := types.ParseAmount(manifest.Outflow.Limit)
		if !ok {
			log.Fatal().Str("limit", manifest.Outflow.Limit).Msg("Invalid outflow limit in manifest")
		}
		slotSize := time.Duration(manifest.Outflow.SlotSizeSeconds) * time.Second
		if err := v.SetupOutflowLimit(slotSize, limit); err != nil {
			log.Fatal().Err(err).Msg("Failed to configure outflow limit")
		}
	}

	// --- 5. Reporter Loop ---
	snapshotSink := func(snap types.VaultSnapshot) error {
		if dbEnabled {
			return state.SaveVaultSnapshot(snap)
		}
		return nil
	}
	rep, err := reporter.New(reporter.Config{
		Vault:    v,
		Interval: time.Duration(config.SnapshotIntervalSeconds) * time.Second,
		Save:     snapshotSink,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create reporter")
	}

	ctx := context.Background()
	go rep.RunLoop(ctx)

	// --- 6. Web Server (blocking) ---
	recentEvents := memRecorder.RecentEvents
	recentSnapshots := func(limit int) ([]types.VaultSnapshot, error) {
		if !dbEnabled {
			return nil, nil
		}
		return state.GetRecentSnapshots(limit)
	}
	if dbEnabled {
		recentEvents = state.GetRecentEvents
	}

	server := web.NewServer(web.Config{
		Port:            config.WebPort,
		Vault:           v,
		AdminToken:      config.AdminToken,
		AdapterFactory:  factory,
		RecentEvents:    recentEvents,
		RecentSnapshots: recentSnapshots,
	})

	log.Info().Str("port", config.WebPort).Msg("Starting mvault web API")
	if err := server.Start(); err != nil {
		log.Fatal().Err(err).Msg("Web server failed")
	}
}

// adapterFactory constructs the adapter kinds this deployment supports.
func adapterFactory(lgr *ledger.Ledger) web.AdapterFactory {
	return func(kind string, id types.AdapterID) (strategy.Adapter, error) {
		switch kind {
		case "simlend":
			return simlend.New(id, lgr), nil
		default:
			return nil, fmt.Errorf("unknown adapter kind %q", kind)
		}
	}
}

// restoreOutflowState re-seeds the limiter window from the database so a
// restart does not forget recent outflows.
func restoreOutflowState(v *vault.Vault) {
	cfg, err := state.LoadOutflowConfig()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load outflow limit config; starting with limiter unconfigured")
		return
	}
	if cfg.SlotSizeSeconds == 0 {
		return
	}
	deltas, err := state.LoadOutflowDeltas(cfg.SlotSizeSeconds)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load outflow deltas; restoring config only")
		deltas = nil
	}
	v.RestoreOutflowState(cfg, deltas)
	log.Info().Int64("slotSizeSeconds", cfg.SlotSizeSeconds).Int("buckets", len(deltas)).Msg("Outflow limiter state restored")
}
