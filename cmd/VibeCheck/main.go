// Command VibeCheck serves the employee check-in chatbot API.
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
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/BTreeMap/VibeCheck/internal/api"
	"github.com/BTreeMap/VibeCheck/internal/flow"
	"github.com/BTreeMap/VibeCheck/internal/genai"
	"github.com/BTreeMap/VibeCheck/internal/lockfile"
	"github.com/BTreeMap/VibeCheck/internal/questionbank"
	"github.com/BTreeMap/VibeCheck/internal/sentiment"
	"github.com/BTreeMap/VibeCheck/internal/store"
	"github.com/BTreeMap/VibeCheck/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for VibeCheck state data
	DefaultStateDir = "/var/lib/vibecheck"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "vibecheck.db"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags, err := parseCommandLineFlags(flag.CommandLine, os.Args[1:], config)
	if err != nil {
		slog.Error("Failed to parse flags", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping VibeCheck")
	if err := run(ctx, flags); err != nil {
		slog.Error("VibeCheck failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("VibeCheck exited successfully")
}

// Config holds environment configuration
type Config struct {
	StateDir         string
	DatabaseURL      string
	OpenAIKey        string
	OpenAIBaseURL    string
	Model            string
	EmbeddingModel   string
	APIAddr          string
	QuestionBankFile string
	LLMTimeout       time.Duration
	MaxMainQuestions int
	RelevanceTopK    int
	RelevanceRanking bool
	RelevanceMode    string
	Temperature      float64
	MaxTokens        int
}

// Flags holds command line flag values
type Flags struct {
	stateDir         *string
	dbDSN            *string
	openaiKey        *string
	openaiBaseURL    *string
	model            *string
	embeddingModel   *string
	apiAddr          *string
	questionBankFile *string
	llmTimeout       *time.Duration
	maxMainQuestions *int
	relevanceTopK    *int
	relevanceRanking *bool
	relevanceMode    *string
	temperature      *float64
	maxTokens        *int
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
		StateDir:         os.Getenv("VIBECHECK_STATE_DIR"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		OpenAIKey:        os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:    os.Getenv("OPENAI_BASE_URL"),
		Model:            os.Getenv("OPENAI_MODEL"),
		EmbeddingModel:   os.Getenv("OPENAI_EMBEDDING_MODEL"),
		APIAddr:          os.Getenv("API_ADDR"),
		QuestionBankFile: os.Getenv("QUESTION_BANK_FILE"),
		LLMTimeout:       util.ParseDurationEnv("LLM_TIMEOUT", flow.DefaultLLMTimeout),
		MaxMainQuestions: util.ParseIntEnv("MAX_MAIN_QUESTIONS", flow.DefaultMaxMainQuestions),
		RelevanceTopK:    util.ParseIntEnv("RELEVANCE_TOP_K", flow.DefaultTopK),
		RelevanceRanking: util.ParseBoolEnv("RELEVANCE_RANKING", true),
		RelevanceMode:    os.Getenv("RELEVANCE_MODE"),
		Temperature:      util.ParseFloatEnv("GENAI_TEMPERATURE", genai.DefaultTemperature),
		MaxTokens:        util.ParseIntEnv("GENAI_MAX_TOKENS", genai.DefaultMaxTokens),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No VIBECHECK_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	slog.Debug("environment variables loaded",
		"VIBECHECK_STATE_DIR", config.StateDir,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"OPENAI_MODEL", config.Model,
		"API_ADDR", config.APIAddr,
		"QUESTION_BANK_FILE", config.QuestionBankFile,
		"LLM_TIMEOUT", config.LLMTimeout,
		"MAX_MAIN_QUESTIONS", config.MaxMainQuestions,
		"RELEVANCE_RANKING", config.RelevanceRanking)

	return config
}

// parseCommandLineFlags parses args with environment defaults. The database
// DSN defaults to an SQLite file inside the final state directory.
func parseCommandLineFlags(fs *flag.FlagSet, args []string, config Config) (Flags, error) {
	flags := Flags{
		stateDir:         fs.String("state-dir", config.StateDir, "state directory for VibeCheck data (overrides $VIBECHECK_STATE_DIR)"),
		dbDSN:            fs.String("db-dsn", config.DatabaseURL, "database DSN, Postgres URL or SQLite path (overrides $DATABASE_URL)"),
		openaiKey:        fs.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		openaiBaseURL:    fs.String("openai-base-url", config.OpenAIBaseURL, "OpenAI-compatible endpoint (overrides $OPENAI_BASE_URL)"),
		model:            fs.String("model", config.Model, "chat model (overrides $OPENAI_MODEL)"),
		embeddingModel:   fs.String("embedding-model", config.EmbeddingModel, "embedding model (overrides $OPENAI_EMBEDDING_MODEL)"),
		apiAddr:          fs.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		questionBankFile: fs.String("question-bank", config.QuestionBankFile, "JSON question bank replacing the built-in one (overrides $QUESTION_BANK_FILE)"),
		llmTimeout:       fs.Duration("llm-timeout", config.LLMTimeout, "timeout for each LLM call (overrides $LLM_TIMEOUT)"),
		maxMainQuestions: fs.Int("max-main-questions", config.MaxMainQuestions, "main questions per check-in, 0 for no limit (overrides $MAX_MAIN_QUESTIONS)"),
		relevanceTopK:    fs.Int("relevance-top-k", config.RelevanceTopK, "questions kept after ranking (overrides $RELEVANCE_TOP_K)"),
		relevanceRanking: fs.Bool("relevance-ranking", config.RelevanceRanking, "rank the question pool by embedding similarity (overrides $RELEVANCE_RANKING)"),
		relevanceMode:    fs.String("relevance-mode", config.RelevanceMode, "ranking granularity: token or question (overrides $RELEVANCE_MODE)"),
		temperature:      fs.Float64("temperature", config.Temperature, "sampling temperature (overrides $GENAI_TEMPERATURE)"),
		maxTokens:        fs.Int("max-tokens", config.MaxTokens, "completion token ceiling (overrides $GENAI_MAX_TOKENS)"),
	}
	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}

	if *flags.dbDSN == "" {
		*flags.dbDSN = defaultSQLiteDSN(*flags.stateDir)
		slog.Debug("No database DSN provided, defaulting to SQLite", "dsn", *flags.dbDSN)
	}

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_type", store.DetectDSNType(*flags.dbDSN),
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"llmTimeout", *flags.llmTimeout,
		"maxMainQuestions", *flags.maxMainQuestions,
		"relevanceRanking", *flags.relevanceRanking)
	return flags, nil
}

func defaultSQLiteDSN(stateDir string) string {
	return "file:" + filepath.Join(stateDir, DefaultDBFileName) + "?_foreign_keys=on"
}

// run wires the modules together and serves until ctx is cancelled.
func run(ctx context.Context, flags Flags) error {
	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	st, err := store.New(buildStoreOptions(flags)...)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Warn("Failed to close store", "error", err)
		}
	}()

	bank, err := loadQuestionBank(*flags.questionBankFile)
	if err != nil {
		return err
	}

	client, err := genai.NewClient(buildGenAIOptions(flags)...)
	if err != nil {
		if errors.Is(err, genai.ErrMissingAPIKey) {
			return fmt.Errorf("an OpenAI API key is required (set OPENAI_API_KEY or -openai-api-key): %w", err)
		}
		return fmt.Errorf("create genai client: %w", err)
	}

	checkins := flow.NewCheckInFlow(st, client, bank, buildFlowOptions(flags, client)...)
	server := api.NewServer(st, checkins, buildAPIOptions(flags)...)
	return server.Run(ctx)
}

func loadQuestionBank(path string) (*questionbank.Bank, error) {
	if path == "" {
		return questionbank.Default(), nil
	}
	bank, err := questionbank.LoadFile(path)
	if err != nil {
		return nil, err
	}
	slog.Info("Loaded question bank from file", "path", path)
	return bank, nil
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if *flags.dbDSN != "" {
		if store.DetectDSNType(*flags.dbDSN) == "postgres" {
			slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql", "dsn_set", true)
			storeOpts = append(storeOpts, store.WithPostgresDSN(*flags.dbDSN))
		} else {
			slog.Debug("Detected SQLite DSN, configuring SQLite store", "dsn_type", "sqlite", "db_path", *flags.dbDSN)
			storeOpts = append(storeOpts, store.WithSQLiteDSN(*flags.dbDSN))
		}
	}
	return storeOpts
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	if *flags.openaiBaseURL != "" {
		genaiOpts = append(genaiOpts, genai.WithBaseURL(*flags.openaiBaseURL))
	}
	if *flags.model != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(*flags.model))
	}
	if *flags.embeddingModel != "" {
		genaiOpts = append(genaiOpts, genai.WithEmbeddingModel(*flags.embeddingModel))
	}
	genaiOpts = append(genaiOpts,
		genai.WithTemperature(*flags.temperature),
		genai.WithMaxTokens(*flags.maxTokens))
	return genaiOpts
}

// buildFlowOptions constructs check-in flow options
func buildFlowOptions(flags Flags, client genai.ClientInterface) []flow.Option {
	flowOpts := []flow.Option{
		flow.WithTimeout(*flags.llmTimeout),
		flow.WithMaxMainQuestions(*flags.maxMainQuestions),
		flow.WithEmotionAnalyzer(sentiment.NewAnalyzer(client, *flags.llmTimeout)),
	}
	if *flags.relevanceRanking {
		flowOpts = append(flowOpts,
			flow.WithEmbedder(client),
			flow.WithRelevanceTopK(*flags.relevanceTopK),
			flow.WithRelevanceMode(flow.ParseRankMode(*flags.relevanceMode)))
	}
	return flowOpts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	return apiOpts
}
