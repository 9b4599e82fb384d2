package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/linkalls/marksheet/internal/debuglog"
	"github.com/linkalls/marksheet/internal/handler"
	appI18n "github.com/linkalls/marksheet/internal/i18n"
	"github.com/linkalls/marksheet/internal/llm"
	"github.com/linkalls/marksheet/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "marksheet",
		Short:        "Answer sheet builder and AI-assisted bubble grader",
		SilenceUsage: true,
	}

	serve := serveCmd()
	root.AddCommand(serve, validateCmd(), gradeCmd(), generateCmd(),
		analyticsCmd(), exportCmd(), sheetCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `marksheet --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

// commonFlags registers the flags every command shares.
func commonFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("db", "marksheet.db", "SQLite database path")
	f.StringP("lang", "l", "en", "Message language (en, ja)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

// llmFlags registers the flags for commands that call the model.
func llmFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("llm-url", "https://api.openai.com/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "", "API key for the model (or set MARKSHEET_LLM_KEY / OPENAI_API_KEY)")
	f.String("llm-model", llm.DefaultModel, "Vision model name")
	f.Duration("llm-timeout", llm.DefaultTimeout, "Timeout for each model request")
	f.Int("llm-retries", llm.DefaultMaxRetries, "Retries for failed model requests")
	f.Int("max-file-mb", 20, "Maximum upload size in megabytes")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}
	commonFlags(cmd)
	llmFlags(cmd)
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.Bool("debug", false, "Keep recent log records and serve them at /api/debug/logs")
	f.String("admin-password", "", "Require basic auth (user admin) for changes (or set MARKSHEET_ADMIN_PASSWORD)")
	f.StringSlice("cors-origins", nil, "Origins allowed to call the API")
	return cmd
}

// setupLogging installs the default logger. In debug mode records are also
// kept in the returned buffer.
func setupLogging(v *viper.Viper) *debuglog.Buffer {
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

	var buf *debuglog.Buffer
	if v.GetBool("debug") {
		buf = debuglog.New(debuglog.DefaultCapacity)
		logHandler = debuglog.NewHandler(buf, logHandler, slog.LevelDebug)
	}
	slog.SetDefault(slog.New(logHandler))
	return buf
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("MARKSHEET")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("llm-key", "MARKSHEET_LLM_KEY", "OPENAI_API_KEY")

	v.SetConfigName("marksheet")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/marksheet")
	v.AddConfigPath("/etc/marksheet")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// setup prepares logging, translations and configuration for a command.
func setup(cmd *cobra.Command) (*viper.Viper, *debuglog.Buffer, error) {
	v := viperForCmd(cmd)
	buf := setupLogging(v)
	if err := appI18n.Init(v.GetString("lang")); err != nil {
		return nil, nil, fmt.Errorf("init i18n: %w", err)
	}
	return v, buf, nil
}

func openStore(v *viper.Viper) (*store.Store, error) {
	db, err := store.New(v.GetString("db"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

func newLLM(v *viper.Viper) *llm.Client {
	key := v.GetString("llm-key")
	if key == "" {
		slog.Warn("no API key configured; detection and generation will fail")
	}
	return llm.New(llm.Config{
		BaseURL:   v.GetString("llm-url"),
		APIKey:    key,
		Model:     v.GetString("llm-model"),
		MaxFileMB: v.GetInt("max-file-mb"),
		Retry: llm.RetryPolicy{
			MaxRetries: v.GetInt("llm-retries"),
			Timeout:    v.GetDuration("llm-timeout"),
		},
		Logger: slog.Default(),
	})
}

func runServe(cmd *cobra.Command, _ []string) error {
	v, debugBuf, err := setup(cmd)
	if err != nil {
		return err
	}

	db, err := openStore(v)
	if err != nil {
		return err
	}
	defer db.Close()
	db.WithLogger(slog.Default())

	llmClient := newLLM(v)
	lang := v.GetString("lang")

	h, err := handler.New(llmClient, db.Exams(), db.History(), handler.Config{
		AdminPassword: v.GetString("admin-password"),
		CORSOrigins:   v.GetStringSlice("cors-origins"),
		MaxFileMB:     v.GetInt("max-file-mb"),
		Lang:          lang,
		Debug:         debugBuf,
		Logger:        slog.Default(),
	})
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"model", llmClient.Model(),
		"llm_url", v.GetString("llm-url"),
		"lang", lang,
		"db", v.GetString("db"),
		"auth", v.GetString("admin-password") != "",
		"debug", debugBuf != nil,
	)
	srv := &http.Server{
		Addr:              addr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}
