package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/pipkin-app/pipkin/internal/api"
	"github.com/pipkin-app/pipkin/internal/catalog"
	"github.com/pipkin-app/pipkin/internal/clockwork"
	"github.com/pipkin-app/pipkin/internal/engine"
	"github.com/pipkin-app/pipkin/internal/notify"
	"github.com/pipkin-app/pipkin/internal/scheduler"
	"github.com/pipkin-app/pipkin/internal/store"
	"github.com/pipkin-app/pipkin/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for Pipkin state data
	DefaultStateDir = "/var/lib/pipkin"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "pipkin.db"
	// DefaultAPIAddr is the default API listen address
	DefaultAPIAddr = ":8080"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	slog.Info("Bootstrapping Pipkin")
	if err := run(flags); err != nil {
		slog.Error("Pipkin failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("Pipkin exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL string
	StateDir    string
	APIAddr     string
	Latitude    float64
	Longitude   float64
	Locality    string
	TwilioSID   string
	TwilioToken string
	TwilioFrom  string
	TwilioTo    string
}

// Flags holds command line flag values
type Flags struct {
	stateDir *string
	dbDSN    *string
	apiAddr  *string
	lat      *float64
	lon      *float64
	locality *string
	config   Config
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		StateDir:    os.Getenv("PIPKIN_STATE_DIR"),
		APIAddr:     os.Getenv("API_ADDR"),
		Latitude:    util.ParseFloatEnv("PIPKIN_LATITUDE", 0),
		Longitude:   util.ParseFloatEnv("PIPKIN_LONGITUDE", 0),
		Locality:    os.Getenv("PIPKIN_LOCALITY"),
		TwilioSID:   os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioToken: os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:  os.Getenv("TWILIO_FROM_NUMBER"),
		TwilioTo:    os.Getenv("TWILIO_TO_NUMBER"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No PIPKIN_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}
	if config.APIAddr == "" {
		config.APIAddr = DefaultAPIAddr
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"PIPKIN_STATE_DIR", config.StateDir,
		"API_ADDR", config.APIAddr,
		"PIPKIN_LOCALITY", config.Locality,
		"TWILIO_CONFIGURED", config.TwilioSID != "")

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir: flag.String("state-dir", config.StateDir, "state directory for Pipkin data (overrides $PIPKIN_STATE_DIR)"),
		dbDSN:    flag.String("db-dsn", config.DatabaseURL, "database DSN (overrides $DATABASE_URL)"),
		apiAddr:  flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		lat:      flag.Float64("lat", config.Latitude, "latitude for weather lookups (overrides $PIPKIN_LATITUDE)"),
		lon:      flag.Float64("lon", config.Longitude, "longitude for weather lookups (overrides $PIPKIN_LONGITUDE)"),
		locality: flag.String("locality", config.Locality, "locality name for weather lookups (overrides $PIPKIN_LOCALITY)"),
		config:   config,
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"apiAddr", *flags.apiAddr,
		"locality", *flags.locality)

	// Follow a moved state directory when the DSN was left at its default
	if *flags.dbDSN == config.DatabaseURL && config.DatabaseURL == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) == "sqlite" {
		stateDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// openStore selects the storage backend from the DSN.
func openStore(dsn string) (store.Store, error) {
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return store.NewPostgresStore(store.WithDSN(dsn))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", dsn)
	return store.NewSQLiteStore(store.WithDSN(dsn))
}

// buildNotifier picks Twilio SMS when fully configured, otherwise logs.
func buildNotifier(config Config) notify.Notifier {
	if config.TwilioSID != "" && config.TwilioToken != "" && config.TwilioFrom != "" && config.TwilioTo != "" {
		n, err := notify.NewTwilioNotifier(config.TwilioSID, config.TwilioToken, config.TwilioFrom, config.TwilioTo)
		if err != nil {
			slog.Warn("Twilio notifier misconfigured, falling back to log notifier", "error", err)
			return notify.LogNotifier{}
		}
		slog.Info("Using Twilio SMS notifier")
		return n
	}
	return notify.LogNotifier{}
}

func run(flags Flags) error {
	st, err := openStore(*flags.dbDSN)
	if err != nil {
		return err
	}
	defer st.Close()

	cal := clockwork.NewCalendar(nil)
	cat := catalog.New(st)
	eng := engine.New(engine.Deps{
		Store:     st,
		Calendar:  cal,
		Catalog:   cat,
		Notifier:  buildNotifier(flags.config),
		Latitude:  *flags.lat,
		Longitude: *flags.lon,
		Locality:  *flags.locality,
	})
	defer eng.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := eng.Bootstrap(ctx); err != nil {
		return err
	}
	eng.StartMonitor(ctx)

	sched := scheduler.NewScheduler(cal.Location())
	defer sched.Stop()
	if err := sched.AddDailyJob(0, 5, func() {
		if err := cat.Bootstrap(); err != nil {
			slog.Warn("Daily catalog revalidation failed", "error", err)
		}
		if err := eng.PrepareDailyTriggers(ctx, clockwork.SystemClock{}.Now()); err != nil {
			slog.Warn("Daily trigger preparation failed", "error", err)
		}
	}); err != nil {
		return err
	}

	server := api.NewServer(eng, api.WithAddr(*flags.apiAddr))
	return server.Run(ctx)
}
