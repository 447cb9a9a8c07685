package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/BTreeMap/OrderPipe/internal/api"
	"github.com/BTreeMap/OrderPipe/internal/flow"
	"github.com/BTreeMap/OrderPipe/internal/genai"
	"github.com/BTreeMap/OrderPipe/internal/lockfile"
	"github.com/BTreeMap/OrderPipe/internal/messaging"
	"github.com/BTreeMap/OrderPipe/internal/metrics"
	"github.com/BTreeMap/OrderPipe/internal/models"
	"github.com/BTreeMap/OrderPipe/internal/scheduler"
	"github.com/BTreeMap/OrderPipe/internal/store"
	"github.com/BTreeMap/OrderPipe/internal/twiliowhatsapp"
	"github.com/BTreeMap/OrderPipe/internal/util"
	"github.com/BTreeMap/OrderPipe/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir holds the SQLite database, the lock file and GenAI debug logs.
	DefaultStateDir = "/var/lib/orderpipe"
	// DefaultDBFileName is the SQLite file used when --sqlite is set without a DSN.
	DefaultDBFileName = "orderpipe.db"
	// DefaultPort is used when neither API_ADDR nor PORT is set.
	DefaultPort = "3000"

	ProviderWhatsApp = "whatsapp"
	ProviderTwilio   = "twilio"
)

func main() {
	config := loadEnvironmentConfig()

	flags, err := parseCommandLineFlags(flag.CommandLine, os.Args[1:], config)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	initializeLogger(flags.logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping OrderPipe", "provider", flags.provider, "api_addr", flags.apiAddr, "dsn_set", flags.dbDSN != "", "redis_set", flags.redisURL != "", "llm_set", flags.llmAPIKey != "")
	if err := run(ctx, flags); err != nil {
		slog.Error("OrderPipe failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("OrderPipe exited successfully")
}

// Config holds environment configuration
type Config struct {
	VerifyToken   string
	PhoneNumberID string
	AccessToken   string
	GraphURL      string
	DatabaseURL   string
	StateDir      string
	LLMAPIKey     string
	LLMBaseURL    string
	LLMModel      string
	LLMDebug      bool
	RedisURL      string
	APIAddr       string
	MenuFile      string
	Provider      string
	LogLevel      string
	SeedMenu      bool
	ContextTTL    time.Duration
}

// Flags holds command line flag values
type Flags struct {
	verifyToken   string
	phoneNumberID string
	accessToken   string
	graphURL      string
	dbDSN         string
	stateDir      string
	llmAPIKey     string
	llmBaseURL    string
	llmModel      string
	llmDebug      bool
	redisURL      string
	apiAddr       string
	menuFile      string
	provider      string
	logLevel      string
	seedMenu      bool
	contextTTL    time.Duration
}

// initializeLogger sets up structured logging at the configured level.
func initializeLogger(level string) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(level)}))
	slog.SetDefault(logger)
}

func parseLogLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo
	}
	return l
}

// firstEnv returns the first non-empty value among keys.
func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		VerifyToken:   os.Getenv("VERIFY_TOKEN"),
		PhoneNumberID: os.Getenv("WHATSAPP_PHONE_NUMBER_ID"),
		AccessToken:   os.Getenv("WHATSAPP_ACCESS_TOKEN"),
		GraphURL:      os.Getenv("WHATSAPP_GRAPH_URL"),
		DatabaseURL:   firstEnv("DATABASE_URL", "DATABASE_DSN"),
		StateDir:      os.Getenv("ORDERPIPE_STATE_DIR"),
		LLMAPIKey:     firstEnv("LLM_API_KEY", "GROQ_API_KEY", "OPENAI_API_KEY"),
		LLMBaseURL:    os.Getenv("LLM_BASE_URL"),
		LLMModel:      os.Getenv("LLM_MODEL"),
		LLMDebug:      util.ParseBoolEnv("LLM_DEBUG", false),
		RedisURL:      os.Getenv("REDIS_URL"),
		APIAddr:       os.Getenv("API_ADDR"),
		MenuFile:      os.Getenv("MENU_FILE"),
		Provider:      strings.ToLower(os.Getenv("MESSAGING_PROVIDER")),
		LogLevel:      os.Getenv("LOG_LEVEL"),
		SeedMenu:      util.ParseBoolEnv("SEED_MENU", true),
		ContextTTL:    flow.DefaultContextTTL,
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
	}
	if config.APIAddr == "" {
		port := os.Getenv("PORT")
		if port == "" {
			port = DefaultPort
		}
		config.APIAddr = ":" + port
	}
	if config.Provider == "" {
		config.Provider = ProviderWhatsApp
	}
	if config.LLMModel == "" {
		config.LLMModel = genai.DefaultModel
	}
	if raw := os.Getenv("CONTEXT_TTL"); raw != "" {
		if ttl, err := time.ParseDuration(raw); err == nil && ttl > 0 {
			config.ContextTTL = ttl
		} else {
			slog.Warn("invalid CONTEXT_TTL, using default", "value", raw, "default", config.ContextTTL)
		}
	}

	slog.Debug("environment variables loaded",
		"VERIFY_TOKEN_SET", config.VerifyToken != "",
		"WHATSAPP_CREDENTIALS_SET", config.PhoneNumberID != "" && config.AccessToken != "",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"ORDERPIPE_STATE_DIR", config.StateDir,
		"LLM_API_KEY_SET", config.LLMAPIKey != "",
		"LLM_MODEL", config.LLMModel,
		"REDIS_URL_SET", config.RedisURL != "",
		"API_ADDR", config.APIAddr,
		"MENU_FILE", config.MenuFile,
		"MESSAGING_PROVIDER", config.Provider)

	return config
}

// parseCommandLineFlags parses args with environment defaults.
func parseCommandLineFlags(fs *flag.FlagSet, args []string, config Config) (Flags, error) {
	var f Flags
	var sqlite bool
	fs.StringVar(&f.verifyToken, "verify-token", config.VerifyToken, "webhook verification token (overrides $VERIFY_TOKEN)")
	fs.StringVar(&f.phoneNumberID, "phone-number-id", config.PhoneNumberID, "WhatsApp Cloud API phone number id (overrides $WHATSAPP_PHONE_NUMBER_ID)")
	fs.StringVar(&f.accessToken, "access-token", config.AccessToken, "WhatsApp Cloud API access token (overrides $WHATSAPP_ACCESS_TOKEN)")
	fs.StringVar(&f.graphURL, "graph-url", config.GraphURL, "Graph API base URL (overrides $WHATSAPP_GRAPH_URL)")
	fs.StringVar(&f.dbDSN, "db-dsn", config.DatabaseURL, "Postgres DSN or SQLite path; empty keeps data in memory (overrides $DATABASE_URL)")
	fs.BoolVar(&sqlite, "sqlite", false, "store data in <state-dir>/"+DefaultDBFileName+" when no DSN is set")
	fs.StringVar(&f.stateDir, "state-dir", config.StateDir, "state directory for OrderPipe data (overrides $ORDERPIPE_STATE_DIR)")
	fs.StringVar(&f.llmAPIKey, "llm-api-key", config.LLMAPIKey, "API key for the intent classifier (overrides $LLM_API_KEY)")
	fs.StringVar(&f.llmBaseURL, "llm-base-url", config.LLMBaseURL, "OpenAI-compatible base URL (overrides $LLM_BASE_URL)")
	fs.StringVar(&f.llmModel, "llm-model", config.LLMModel, "intent classifier model (overrides $LLM_MODEL)")
	fs.BoolVar(&f.llmDebug, "llm-debug", config.LLMDebug, "write classifier requests to <state-dir>/debug (overrides $LLM_DEBUG)")
	fs.StringVar(&f.redisURL, "redis-url", config.RedisURL, "Redis URL for conversation contexts (overrides $REDIS_URL)")
	fs.StringVar(&f.apiAddr, "api-addr", config.APIAddr, "API server address (overrides $API_ADDR and $PORT)")
	fs.StringVar(&f.menuFile, "menu-file", config.MenuFile, "restaurant profile YAML (overrides $MENU_FILE)")
	fs.StringVar(&f.provider, "provider", config.Provider, "outbound provider: whatsapp or twilio (overrides $MESSAGING_PROVIDER)")
	fs.StringVar(&f.logLevel, "log-level", config.LogLevel, "debug, info, warn or error (overrides $LOG_LEVEL)")
	fs.BoolVar(&f.seedMenu, "seed-menu", config.SeedMenu, "seed the catalog when it is empty (overrides $SEED_MENU)")
	fs.DurationVar(&f.contextTTL, "context-ttl", config.ContextTTL, "idle time before a conversation resets (overrides $CONTEXT_TTL)")

	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}

	f.provider = strings.ToLower(strings.TrimSpace(f.provider))
	if f.provider != ProviderWhatsApp && f.provider != ProviderTwilio {
		return Flags{}, fmt.Errorf("unknown messaging provider %q (want %s or %s)", f.provider, ProviderWhatsApp, ProviderTwilio)
	}
	if f.dbDSN == "" && sqlite {
		f.dbDSN = filepath.Join(f.stateDir, DefaultDBFileName)
	}
	return f, nil
}

// usesStateDir reports whether the DSN is an SQLite file that needs the state directory lock.
func usesStateDir(dsn string) bool {
	return dsn != "" && store.DetectDSNType(dsn) == "sqlite3"
}

// loadProfile reads the restaurant profile, falling back to the built-in one.
func loadProfile(path string) (*flow.Profile, error) {
	if path == "" {
		slog.Debug("No MENU_FILE set, using the built-in restaurant profile")
		return flow.DefaultProfile(), nil
	}
	return flow.LoadProfile(path)
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	opts := []genai.Option{genai.WithAPIKey(flags.llmAPIKey), genai.WithModel(flags.llmModel)}
	if flags.llmBaseURL != "" {
		opts = append(opts, genai.WithBaseURL(flags.llmBaseURL))
	}
	if flags.llmDebug {
		opts = append(opts, genai.WithDebugMode(true, flags.stateDir))
	}
	return opts
}

// buildWhatsAppOptions constructs Cloud API client options
func buildWhatsAppOptions(flags Flags) []whatsapp.Option {
	opts := []whatsapp.Option{whatsapp.WithPhoneNumberID(flags.phoneNumberID), whatsapp.WithAccessToken(flags.accessToken)}
	if flags.graphURL != "" {
		opts = append(opts, whatsapp.WithGraphURL(flags.graphURL))
	}
	return opts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags, rec metrics.Recorder, twilio *messaging.TwilioService) []api.Option {
	opts := []api.Option{
		api.WithAddr(flags.apiAddr),
		api.WithVerifyToken(flags.verifyToken),
		api.WithMetrics(rec),
	}
	if twilio != nil {
		opts = append(opts, api.WithTwilio(twilio))
	}
	return opts
}

// run wires the components and serves until ctx is cancelled.
func run(ctx context.Context, flags Flags) (err error) {
	if usesStateDir(flags.dbDSN) || flags.llmDebug {
		lock, lerr := lockfile.AcquireLock(flags.stateDir, flags.apiAddr)
		if lerr != nil {
			return lerr
		}
		defer lock.Release()
	}

	profile, err := loadProfile(flags.menuFile)
	if err != nil {
		return fmt.Errorf("failed to load restaurant profile: %w", err)
	}

	st, err := store.Open(flags.dbDSN)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			slog.Error("failed to close store", "error", cerr)
		}
	}()

	if flags.seedMenu {
		n, serr := store.SeedIfEmpty(ctx, st, profile.Foods())
		if serr != nil {
			return fmt.Errorf("failed to seed menu: %w", serr)
		}
		if n > 0 {
			slog.Info("Seeded catalog", "items", n)
		}
	}

	rec := metrics.NewPrometheusRecorder(nil)
	svcOpts := []messaging.ServiceOption{messaging.WithMetrics(rec), messaging.WithRestaurantName(profile.Name)}

	var (
		sender messaging.Service
		twilio *messaging.TwilioService
	)
	switch flags.provider {
	case ProviderTwilio:
		client, terr := twiliowhatsapp.NewClient()
		if terr != nil {
			return fmt.Errorf("failed to create Twilio client: %w", terr)
		}
		twilio = messaging.NewTwilioService(client, append(svcOpts, messaging.WithOfferTTL(flags.contextTTL))...)
		defer twilio.Stop()
		sender = twilio
	default:
		sender = messaging.NewWhatsAppService(whatsapp.NewClient(buildWhatsAppOptions(flags)...), svcOpts...)
	}

	handlers := flow.NewHandlers(st, sender, profile,
		flow.WithSender(models.PlatformMessenger, messaging.NewMessengerService(svcOpts...)),
	)
	registry := flow.NewRegistry(handlers)

	var llm genai.ClientInterface
	if flags.llmAPIKey != "" {
		client, gerr := genai.NewClient(buildGenAIOptions(flags)...)
		if gerr != nil {
			slog.Warn("LLM client unavailable, free text will get the greeting", "error", gerr)
		} else {
			llm = client
		}
	} else {
		slog.Warn("No LLM API key configured, free text will get the greeting")
	}
	classifier := flow.NewClassifier(llm, registry.Definitions(), profile.Name,
		flow.WithClassifierMetrics(rec),
		flow.WithModelLabel(flags.llmModel),
	)

	sched := scheduler.NewScheduler()
	defer sched.Stop()

	if twilio != nil {
		if err := sched.AddContextJob("twilio-offer-sweep", scheduler.DefaultContextSweepSpec, func(context.Context) error {
			if n := twilio.SweepOffers(); n > 0 {
				slog.Debug("Forgot expired numbered options", "removed", n, "remaining", twilio.PendingOffers())
			}
			return nil
		}); err != nil {
			slog.Error("failed to schedule Twilio option sweep", "error", err)
		}
	}

	contexts, redisClient := buildContextStore(ctx, flags, sched)
	if redisClient != nil {
		defer redisClient.Close()
	}

	if err := sched.AddContextJob("dedup-prune", scheduler.DefaultDedupPruneSpec, func(ctx context.Context) error {
		n, perr := st.PruneDedup(ctx, time.Now().Add(-store.DefaultDedupRetention))
		if perr != nil {
			return perr
		}
		slog.Debug("Pruned inbound dedup records", "removed", n)
		return nil
	}); err != nil {
		return fmt.Errorf("failed to schedule dedup pruning: %w", err)
	}

	engine := flow.NewEngine(registry, handlers, contexts, classifier,
		flow.WithDedup(st),
		flow.WithEngineMetrics(rec),
	)

	server := api.NewServer(engine, st, buildAPIOptions(flags, rec, twilio)...)
	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// buildContextStore prefers Redis and falls back to process memory, which is swept on a schedule.
func buildContextStore(ctx context.Context, flags Flags, sched *scheduler.Scheduler) (flow.ContextStore, *redis.Client) {
	if flags.redisURL != "" {
		client, err := flow.ConnectRedis(ctx, flags.redisURL)
		if err == nil {
			slog.Info("Using Redis conversation context store", "ttl", flags.contextTTL)
			return flow.NewRedisContextStore(client, flags.contextTTL), client
		}
		slog.Warn("Redis unavailable, keeping conversation contexts in memory", "error", err)
	}

	mem := flow.NewMemoryContextStore(flags.contextTTL)
	if err := sched.AddContextJob("context-sweep", scheduler.DefaultContextSweepSpec, func(context.Context) error {
		if n := mem.Sweep(); n > 0 {
			slog.Debug("Evicted idle conversation contexts", "removed", n, "remaining", mem.Len())
		}
		return nil
	}); err != nil {
		slog.Error("failed to schedule context sweep", "error", err)
	}
	return mem, nil
}
