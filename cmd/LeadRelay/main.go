package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/BTreeMap/LeadRelay/internal/api"
	"github.com/BTreeMap/LeadRelay/internal/genai"
	"github.com/BTreeMap/LeadRelay/internal/lock"
	"github.com/BTreeMap/LeadRelay/internal/lockfile"
	"github.com/BTreeMap/LeadRelay/internal/messaging"
	"github.com/BTreeMap/LeadRelay/internal/observability"
	"github.com/BTreeMap/LeadRelay/internal/relay"
	"github.com/BTreeMap/LeadRelay/internal/reply"
	"github.com/BTreeMap/LeadRelay/internal/scheduler"
	"github.com/BTreeMap/LeadRelay/internal/store"
	"github.com/BTreeMap/LeadRelay/internal/twiliosms"
	"github.com/BTreeMap/LeadRelay/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for LeadRelay state data
	DefaultStateDir = "/var/lib/leadrelay"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "leadrelay.db"
	// DefaultLLMBaseURL is the Groq OpenAI-compatible endpoint used by the completion backend
	DefaultLLMBaseURL = "https://api.groq.com/openai/v1"
	// DefaultServiceName identifies the relay in traces
	DefaultServiceName = "leadrelay"

	DefaultStoreTimeout      = 10 * time.Second
	DefaultConnectRetry      = 30 * time.Second
	DefaultLockTTL           = 30 * time.Second
	DefaultLockMargin        = 5 * time.Second
	DefaultEnvironment       = "development"
	DefaultReplyBackend      = reply.BackendWebhook
	DefaultSchedulerStopWait = 30 * time.Second
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config, flags); err != nil {
		slog.Error("LeadRelay failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("LeadRelay exited successfully")
}

// Config holds environment configuration
type Config struct {
	Environment string
	StateDir    string
	DatabaseDSN string
	APIAddr     string

	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioFromNumber  string
	TwilioValidateSig bool
	PublicBaseURL     string
	CountryCode       string
	ReplyBackend      string
	ChatWebhookURL    string
	InitialWebhookURL string
	OpenAIKey         string
	AssistantID       string
	LLMAPIKey         string
	LLMBaseURL        string
	LLMModel          string
	LLMTemperature    float64
	LLMMaxTokens      int
	GenAIDebug        bool
	ReplyTimeout      time.Duration
	SendTimeout       time.Duration
	SendDelay         time.Duration
	StoreTimeout      time.Duration
	ConnectRetry      time.Duration
	PromptCacheSize   int
	PromptCacheTTL    time.Duration
	TenantMode        string
	TenantNumbers     string
	RedisURL          string
	LockTTL           time.Duration
	SweepSchedule     string
	SweepConcurrency  int
	SweepTimeout      time.Duration
	OTelEnabled       bool
	OTelEndpoint      string
	OTelHeaders       string
	OTelInsecure      bool
	OTelSampleRatio   float64
	ServiceName       string
}

// Flags holds command line flag values
type Flags struct {
	stateDir      *string
	dbDSN         *string
	apiAddr       *string
	replyBackend  *string
	sweepSchedule *string
}

// initializeLogger sets up structured logging. LOG_LEVEL selects the level,
// debug by default.
func initializeLogger() {
	level := slog.LevelDebug
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		if err := level.UnmarshalText([]byte(raw)); err != nil {
			level = slog.LevelDebug
		}
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
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
		Environment:       util.FirstEnv("APP_ENV", "NODE_ENV"),
		StateDir:          os.Getenv("LEADRELAY_STATE_DIR"),
		DatabaseDSN:       util.FirstEnv("LEADRELAY_DB_DSN", "DATABASE_URL"),
		APIAddr:           os.Getenv("API_ADDR"),
		TwilioAccountSID:  util.FirstEnv("TWILIO_ACCOUNT_SID", "TWILIO_SID"),
		TwilioAuthToken:   os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFromNumber:  util.FirstEnv("TWILIO_FROM_NUMBER", "TWILIO_PHONE"),
		TwilioValidateSig: util.ParseBoolEnv("TWILIO_VALIDATE_SIGNATURE", false),
		PublicBaseURL:     os.Getenv("PUBLIC_BASE_URL"),
		CountryCode:       os.Getenv("DEFAULT_COUNTRY_CODE"),
		ReplyBackend:      strings.ToLower(os.Getenv("REPLY_BACKEND")),
		ChatWebhookURL:    os.Getenv("N8N_CHAT_WEBHOOK"),
		InitialWebhookURL: os.Getenv("N8N_INITIAL_WEBHOOK"),
		OpenAIKey:         os.Getenv("OPENAI_API_KEY"),
		AssistantID:       os.Getenv("OPENAI_ASSISTANT_ID"),
		LLMAPIKey:         util.FirstEnv("LLM_API_KEY", "GROQ_KEY"),
		LLMBaseURL:        os.Getenv("LLM_BASE_URL"),
		LLMModel:          os.Getenv("LLM_MODEL"),
		LLMTemperature:    util.ParseFloatEnv("LLM_TEMPERATURE", genai.DefaultTemperature),
		LLMMaxTokens:      util.ParseIntEnv("LLM_MAX_COMPLETION_TOKENS", genai.DefaultMaxCompletionTokens),
		GenAIDebug:        util.ParseBoolEnv("GENAI_DEBUG", false),
		ReplyTimeout:      util.ParseDurationEnv("REPLY_TIMEOUT", relay.DefaultReplyTimeout),
		SendTimeout:       util.ParseDurationEnv("SEND_TIMEOUT", relay.DefaultSendTimeout),
		SendDelay:         util.ParseDurationEnv("REPLY_SEND_DELAY", 0),
		StoreTimeout:      util.ParseDurationEnv("STORE_TIMEOUT", DefaultStoreTimeout),
		ConnectRetry:      util.ParseDurationEnv("STORE_CONNECT_RETRY", DefaultConnectRetry),
		PromptCacheSize:   util.ParseIntEnv("PROMPT_CACHE_SIZE", store.DefaultPromptCacheSize),
		PromptCacheTTL:    util.ParseDurationEnv("PROMPT_CACHE_TTL", store.DefaultPromptCacheTTL),
		TenantMode:        util.FirstEnv("TENANT_MODE"),
		TenantNumbers:     os.Getenv("TENANT_NUMBERS"),
		RedisURL:          os.Getenv("REDIS_URL"),
		LockTTL:           util.ParseDurationEnv("LOCK_TTL", 0),
		SweepSchedule:     os.Getenv("SWEEP_SCHEDULE"),
		SweepConcurrency:  util.ParseIntEnv("SWEEP_CONCURRENCY", relay.DefaultSweepConcurrency),
		SweepTimeout:      util.ParseDurationEnv("SWEEP_TIMEOUT", scheduler.DefaultSweepTimeout),
		OTelEnabled:       util.ParseBoolEnv("OTEL_ENABLED", false),
		OTelEndpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTelHeaders:       os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"),
		OTelInsecure:      util.ParseBoolEnv("OTEL_EXPORTER_OTLP_INSECURE", false),
		OTelSampleRatio:   util.ParseFloatEnv("OTEL_TRACES_SAMPLER_ARG", observability.DefaultSampleRatio),
		ServiceName:       util.FirstEnv("OTEL_SERVICE_NAME"),
	}

	if config.APIAddr == "" {
		if port := os.Getenv("PORT"); port != "" {
			config.APIAddr = ":" + port
		}
	}
	if config.Environment == "" {
		config.Environment = DefaultEnvironment
	}
	if config.ReplyBackend == "" {
		config.ReplyBackend = DefaultReplyBackend
	}
	if config.ServiceName == "" {
		config.ServiceName = DefaultServiceName
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No LEADRELAY_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseDSN == "" {
		config.DatabaseDSN = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseDSN)
	}

	slog.Debug("environment variables loaded",
		"env", config.Environment,
		"state_dir", config.StateDir,
		"dsn_type", store.DetectDSNType(config.DatabaseDSN),
		"api_addr", config.APIAddr,
		"reply_backend", config.ReplyBackend,
		"twilio_sid_set", config.TwilioAccountSID != "",
		"twilio_token_set", config.TwilioAuthToken != "",
		"openai_key_set", config.OpenAIKey != "",
		"llm_key_set", config.LLMAPIKey != "",
		"tenant_mode", config.TenantMode,
		"redis_set", config.RedisURL != "",
		"sweep_schedule", config.SweepSchedule)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:      flag.String("state-dir", config.StateDir, "state directory for LeadRelay data (overrides $LEADRELAY_STATE_DIR)"),
		dbDSN:         flag.String("db-dsn", config.DatabaseDSN, "PostgreSQL URL or SQLite path (overrides $LEADRELAY_DB_DSN or $DATABASE_URL)"),
		apiAddr:       flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR or $PORT)"),
		replyBackend:  flag.String("reply-backend", config.ReplyBackend, "reply backend: webhook, completion or assistant (overrides $REPLY_BACKEND)"),
		sweepSchedule: flag.String("sweep-schedule", config.SweepSchedule, "cron schedule for the pending lead sweep (overrides $SWEEP_SCHEDULE)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"apiAddr", *flags.apiAddr,
		"replyBackend", *flags.replyBackend,
		"sweepSchedule", *flags.sweepSchedule)

	// Follow a state directory override when the DSN is the default SQLite path
	if *flags.dbDSN == config.DatabaseDSN && config.DatabaseDSN == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "old_state_dir", config.StateDir, "new_state_dir", *flags.stateDir)
	}

	return flags
}

// applyFlags folds flag overrides into the configuration.
func applyFlags(config Config, flags Flags) Config {
	config.StateDir = *flags.stateDir
	config.DatabaseDSN = *flags.dbDSN
	config.APIAddr = *flags.apiAddr
	config.ReplyBackend = strings.ToLower(*flags.replyBackend)
	config.SweepSchedule = *flags.sweepSchedule
	return config
}

// run wires the relay and serves until ctx is cancelled.
func run(ctx context.Context, config Config, flags Flags) error {
	config = applyFlags(config, flags)
	if err := validateReplyBackend(config.ReplyBackend); err != nil {
		return err
	}

	shutdownTracing, err := observability.Init(ctx, buildObservabilityOptions(config)...)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			slog.Warn("Tracing shutdown failed", "error", err)
		}
	}()

	if store.DetectDSNType(config.DatabaseDSN) == "sqlite3" {
		stateLock, err := lockfile.Acquire(filepath.Dir(sqlitePath(config.DatabaseDSN)), config.DatabaseDSN)
		if err != nil {
			return err
		}
		defer stateLock.Release()
	}

	st, err := openStore(config)
	if err != nil {
		return err
	}
	defer st.Close()

	missing := missingVars(config)
	if len(missing) > 0 {
		slog.Warn("Required configuration missing, relay starts degraded", "missing", missing)
	}

	relayOpts := []relay.Option{relay.WithStore(st), relay.WithMissingConfig(missing...)}
	relayOpts = append(relayOpts, buildRelayOptions(config)...)

	if sender := buildSender(config); sender != nil {
		defer sender.Stop()
		relayOpts = append(relayOpts, relay.WithSender(sender))
	}

	gen, threads, err := buildReplyBackend(config)
	if err != nil {
		return err
	}
	if gen != nil {
		relayOpts = append(relayOpts, relay.WithGenerator(gen))
	}
	if threads != nil {
		relayOpts = append(relayOpts, relay.WithThreadCreator(threads))
	}

	tenants, err := relay.NewTenantResolver(config.TenantMode, config.TenantNumbers)
	if err != nil {
		return fmt.Errorf("invalid tenant configuration: %w", err)
	}
	relayOpts = append(relayOpts, relay.WithTenantResolver(tenants))

	if config.RedisURL != "" {
		locker, err := lock.NewRedisLocker(config.RedisURL, lockTTL(config))
		if err != nil {
			return err
		}
		defer locker.Close()
		relayOpts = append(relayOpts, relay.WithLocker(locker))
	}

	svc := relay.NewService(relayOpts...)

	if config.SweepSchedule != "" {
		sched := scheduler.NewScheduler()
		if err := sched.ScheduleSweep(config.SweepSchedule, svc, config.SweepTimeout); err != nil {
			return fmt.Errorf("invalid sweep schedule: %w", err)
		}
		sched.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), DefaultSchedulerStopWait)
			defer cancel()
			sched.Stop(stopCtx)
		}()
	}

	slog.Info("Bootstrapping LeadRelay with configured modules", "version", version, "backend", config.ReplyBackend)
	server := api.NewServer(svc, buildAPIOptions(config)...)
	return server.Run(ctx)
}

// openStore opens the configured backend and wraps it with the prompt cache.
// A non-positive cache size disables the cache.
func openStore(config Config) (store.Store, error) {
	st, err := store.NewStore(buildStoreOptions(config)...)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	if config.PromptCacheSize <= 0 {
		return st, nil
	}
	cached, err := store.NewCachedPrompts(st, config.PromptCacheSize, config.PromptCacheTTL)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to create prompt cache: %w", err)
	}
	return cached, nil
}

// sqlitePath strips the file: scheme and query parameters from a SQLite DSN.
func sqlitePath(dsn string) string {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return path
}

func validateReplyBackend(backend string) error {
	switch backend {
	case reply.BackendWebhook, reply.BackendCompletion, reply.BackendAssistant:
		return nil
	default:
		return fmt.Errorf("unknown reply backend %q", backend)
	}
}

// missingVars lists the required variables absent for the selected backend.
func missingVars(config Config) []string {
	var missing []string
	need := func(name, value string) {
		if value == "" {
			missing = append(missing, name)
		}
	}
	need("TWILIO_ACCOUNT_SID", config.TwilioAccountSID)
	need("TWILIO_AUTH_TOKEN", config.TwilioAuthToken)
	need("TWILIO_FROM_NUMBER", config.TwilioFromNumber)
	switch config.ReplyBackend {
	case reply.BackendWebhook:
		need("N8N_CHAT_WEBHOOK", config.ChatWebhookURL)
		need("OPENAI_API_KEY", config.OpenAIKey)
	case reply.BackendCompletion:
		need("LLM_API_KEY", config.LLMAPIKey)
	case reply.BackendAssistant:
		need("OPENAI_API_KEY", config.OpenAIKey)
		need("OPENAI_ASSISTANT_ID", config.AssistantID)
	}
	return missing
}

// lockTTL stretches the configured lock TTL to cover the longest critical
// section: thread creation and the initial reply, each bounded by the reply
// timeout, followed by the send.
func lockTTL(config Config) time.Duration {
	derived := max(DefaultLockTTL, 2*config.ReplyTimeout+config.SendTimeout+DefaultLockMargin)
	if config.LockTTL >= derived {
		return config.LockTTL
	}
	if config.LockTTL > 0 {
		slog.Warn("LOCK_TTL shorter than the initial send critical section, extending", "configured", config.LockTTL, "ttl", derived)
	}
	return derived
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(config Config) []store.Option {
	var storeOpts []store.Option
	if config.DatabaseDSN != "" {
		if store.DetectDSNType(config.DatabaseDSN) == "postgres" {
			slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql")
			storeOpts = append(storeOpts, store.WithPostgresDSN(config.DatabaseDSN))
		} else {
			slog.Debug("Detected SQLite DSN, configuring SQLite store", "dsn_type", "sqlite", "db_path", config.DatabaseDSN)
			storeOpts = append(storeOpts, store.WithSQLiteDSN(config.DatabaseDSN))
		}
	} else {
		slog.Debug("No database DSN provided, will use in-memory store")
	}
	if config.StoreTimeout > 0 {
		storeOpts = append(storeOpts, store.WithQueryTimeout(config.StoreTimeout))
	}
	if config.ConnectRetry > 0 {
		storeOpts = append(storeOpts, store.WithConnectRetry(config.ConnectRetry))
	}
	return storeOpts
}

// buildTwilioOptions constructs Twilio client options
func buildTwilioOptions(config Config) []twiliosms.Option {
	var opts []twiliosms.Option
	if config.TwilioAccountSID != "" {
		opts = append(opts, twiliosms.WithAccountSID(config.TwilioAccountSID))
	}
	if config.TwilioAuthToken != "" {
		opts = append(opts, twiliosms.WithAuthToken(config.TwilioAuthToken))
	}
	if config.TwilioFromNumber != "" {
		opts = append(opts, twiliosms.WithFromNumber(config.TwilioFromNumber))
	}
	return opts
}

// buildSender returns the SMS service, or nil when Twilio is not configured.
func buildSender(config Config) *messaging.SMSService {
	client, err := twiliosms.NewClient(buildTwilioOptions(config)...)
	if err != nil {
		slog.Warn("Twilio client not configured", "error", err)
		return nil
	}
	var opts []messaging.SMSOption
	if config.CountryCode != "" {
		opts = append(opts, messaging.WithDefaultCountryCode(config.CountryCode))
	}
	return messaging.NewSMSService(client, opts...)
}

// buildGenAIOptions constructs GenAI options for the selected backend.
// The completion backend talks to an OpenAI-compatible endpoint (Groq by
// default); the other backends use OpenAI itself.
func buildGenAIOptions(config Config) []genai.Option {
	var genaiOpts []genai.Option
	switch config.ReplyBackend {
	case reply.BackendCompletion:
		if config.LLMAPIKey != "" {
			genaiOpts = append(genaiOpts, genai.WithAPIKey(config.LLMAPIKey))
		}
		baseURL := config.LLMBaseURL
		if baseURL == "" {
			baseURL = DefaultLLMBaseURL
		}
		genaiOpts = append(genaiOpts,
			genai.WithBaseURL(baseURL),
			genai.WithTemperature(config.LLMTemperature),
			genai.WithMaxCompletionTokens(int64(config.LLMMaxTokens)))
		if config.LLMModel != "" {
			genaiOpts = append(genaiOpts, genai.WithModel(config.LLMModel))
		}
	default:
		if config.OpenAIKey != "" {
			genaiOpts = append(genaiOpts, genai.WithAPIKey(config.OpenAIKey))
		}
		if config.AssistantID != "" {
			genaiOpts = append(genaiOpts, genai.WithAssistantID(config.AssistantID))
		}
	}
	if config.GenAIDebug {
		genaiOpts = append(genaiOpts, genai.WithDebug(true, config.StateDir))
	}
	return genaiOpts
}

// buildReplyBackend constructs the generator and thread creator for the
// selected backend. Either may be nil when its configuration is missing.
func buildReplyBackend(config Config) (reply.Generator, reply.ThreadCreator, error) {
	var llm *genai.Client
	if hasGenAIKey(config) {
		client, err := genai.NewClient(buildGenAIOptions(config)...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create GenAI client: %w", err)
		}
		llm = client
	}

	switch config.ReplyBackend {
	case reply.BackendWebhook:
		var gen reply.Generator
		if config.ChatWebhookURL != "" {
			gen = reply.NewWebhookGenerator(config.ChatWebhookURL, config.InitialWebhookURL, config.ReplyTimeout)
		}
		if llm == nil {
			return gen, nil, nil
		}
		return gen, llm, nil
	case reply.BackendCompletion:
		if llm == nil {
			return nil, nil, nil
		}
		return reply.NewCompletionGenerator(llm), nil, nil
	case reply.BackendAssistant:
		if llm == nil || config.AssistantID == "" {
			return nil, nil, nil
		}
		return reply.NewAssistantGenerator(llm), llm, nil
	default:
		return nil, nil, fmt.Errorf("unknown reply backend %q", config.ReplyBackend)
	}
}

func hasGenAIKey(config Config) bool {
	if config.ReplyBackend == reply.BackendCompletion {
		return config.LLMAPIKey != ""
	}
	return config.OpenAIKey != ""
}

// buildRelayOptions constructs the relay's timing options.
func buildRelayOptions(config Config) []relay.Option {
	return []relay.Option{
		relay.WithSendDelay(config.SendDelay),
		relay.WithReplyTimeout(config.ReplyTimeout),
		relay.WithSendTimeout(config.SendTimeout),
		relay.WithSweepConcurrency(config.SweepConcurrency),
	}
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(config Config) []api.Option {
	apiOpts := []api.Option{api.WithEnvironment(config.Environment)}
	if config.APIAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(config.APIAddr))
	}
	if config.TwilioValidateSig {
		// Without a token every webhook is rejected.
		var validator api.SignatureValidator
		if config.TwilioAuthToken != "" {
			validator = twiliosms.NewSignatureValidator(config.TwilioAuthToken)
		} else {
			slog.Warn("TWILIO_VALIDATE_SIGNATURE set without TWILIO_AUTH_TOKEN, rejecting all webhooks")
		}
		if config.PublicBaseURL == "" {
			slog.Warn("PUBLIC_BASE_URL not set, validating signatures against the request host")
		}
		apiOpts = append(apiOpts, api.WithSignatureValidation(validator, strings.TrimRight(config.PublicBaseURL, "/")))
	}
	return apiOpts
}

// buildObservabilityOptions constructs tracing options
func buildObservabilityOptions(config Config) []observability.Option {
	opts := []observability.Option{
		observability.WithEnabled(config.OTelEnabled),
		observability.WithService(config.ServiceName, config.Environment, version),
		observability.WithSampleRatio(config.OTelSampleRatio),
	}
	if config.OTelEndpoint != "" {
		opts = append(opts, observability.WithOTLPEndpoint(config.OTelEndpoint, observability.ParseHeaders(config.OTelHeaders), config.OTelInsecure))
	}
	return opts
}
