package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/assessor/internal/bank"
	"github.com/pavelanni/assessor/internal/handler"
	appI18n "github.com/pavelanni/assessor/internal/i18n"
	"github.com/pavelanni/assessor/internal/llm/prompts"
	"github.com/pavelanni/assessor/internal/model"
	"github.com/pavelanni/assessor/internal/report"
	"github.com/pavelanni/assessor/internal/session"
	"github.com/pavelanni/assessor/internal/speech"
)

func main() {
	// A missing .env is normal; the environment may already be set.
	_ = godotenv.Load()
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "assessor",
		Short: "Spoken and written questionnaire server with automated answer evaluation",
	}

	serve := serveCmd()
	root.AddCommand(serve, evaluateCmd(), questionsCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addLogFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func addSlotFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("slot-backend", "sqlite", "Persistence backend (sqlite, redis, mongo, memory)")
	f.String("db", "assessor.db", "SQLite database path")
	f.String("redis-url", "redis://localhost:6379/0", "Redis URL for the redis backend")
	f.String("mongo-uri", "mongodb://localhost:27017", "MongoDB URI for the mongo backend")
	f.String("mongo-db", "assessor", "MongoDB database name")
	f.Duration("slot-ttl", 24*time.Hour, "Expiry of persisted session data (redis only, 0 = never)")
}

func addEvaluatorFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("llm-provider", "openai", "Judge provider (openai, anthropic, gemini, literal, none)")
	f.String("llm-url", "", "OpenAI-compatible API base URL (empty = api.openai.com)")
	f.String("llm-key", "", "API key for the judge provider (or OPENAI_API_KEY, ANTHROPIC_API_KEY, GEMINI_API_KEY)")
	f.String("llm-model", "", "Judge model name (empty = provider default)")
	f.String("transcribe-provider", "openai", "Transcription provider (openai, gemini, none)")
	f.String("transcribe-model", "whisper-1", "Transcription model")
	f.String("prompt-variant", string(prompts.PromptStandard), "Judge prompt variant (strict, standard, lenient)")
	f.Duration("eval-timeout", 60*time.Second, "Time limit per evaluated answer (0 = none)")
}

func addBankFlags(cmd *cobra.Command) {
	cmd.Flags().StringSliceP("questions", "q", nil, "Question bank files, JSON or YAML (repeatable; default: built-in bank)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.StringP("lang", "l", "en", "Default notice language (en, ru)")
	f.Bool("shuffle", true, "Randomize question order per session")
	f.Uint64("seed", 0, "Shuffle seed (0 = random)")
	f.String("tts-provider", "openai", "Speech provider for spoken prompts (openai, none)")
	f.String("tts-voice", "alloy", "Speech voice")
	addBankFlags(cmd)
	addSlotFlags(cmd)
	addEvaluatorFlags(cmd)
	addLogFlags(cmd)
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("ASSESSOR")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("assessor")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/assessor")
	v.AddConfigPath("/etc/assessor")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	questions, err := bank.LoadFiles(v.GetStringSlice("questions"))
	if err != nil {
		return fmt.Errorf("load questions: %w", err)
	}

	slot, err := openSlot(ctx, v)
	if err != nil {
		return err
	}
	defer slot.Close()

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	pipeline, err := buildPipeline(ctx, v)
	if err != nil {
		return err
	}
	speaker, err := speech.New(llmConfig(v))
	if err != nil {
		return fmt.Errorf("create speaker: %w", err)
	}

	examCfg := model.ExamConfig{
		Shuffle:       v.GetBool("shuffle"),
		Seed:          v.GetUint64("seed"),
		PromptVariant: v.GetString("prompt-variant"),
	}
	h, err := handler.New(handler.Config{
		Sessions:    session.NewManager(questions, slot, examCfg),
		Pipeline:    pipeline,
		Scores:      report.New(slot),
		Speaker:     speaker,
		BaseContext: ctx,
	})
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	h.Routes(r)

	addr := v.GetString("addr")
	srv := &http.Server{Addr: addr, Handler: r}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	slog.Info("starting server",
		"addr", addr,
		"bank", questions.Title,
		"questions", questions.Count(),
		"slot_backend", v.GetString("slot-backend"),
		"llm_provider", v.GetString("llm-provider"),
		"transcribe_provider", v.GetString("transcribe-provider"),
		"lang", lang,
		"shuffle", examCfg.Shuffle,
		"prompt_variant", examCfg.PromptVariant,
	)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
