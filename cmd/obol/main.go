// Obol is a conversational crypto market assistant.
//
// Inbound messages flow through a two-stage intent pipeline (classify,
// then extract) backed by racing inference providers, and background
// engines poll price alerts and reconcile subscriptions. Configuration
// is loaded from a single YAML file discovered automatically (see
// [config.DefaultSearchPaths]).
//
// Usage:
//
//	obol serve               Start the background engines
//	obol init [dir]          Initialize a working directory with defaults
//	obol ask <message>       Run a single message through the pipeline
//	obol chat                Interactive conversation on stdin
//	obol version             Print version and build information
//	obol -o json version     Output version information as JSON
package main

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/obolbot/obol/internal/alerts"
	"github.com/obolbot/obol/internal/billing"
	"github.com/obolbot/obol/internal/bot"
	"github.com/obolbot/obol/internal/buildinfo"
	"github.com/obolbot/obol/internal/config"
	"github.com/obolbot/obol/internal/convo"
	"github.com/obolbot/obol/internal/feed"
	"github.com/obolbot/obol/internal/intent"
	"github.com/obolbot/obol/internal/llm"
	"github.com/obolbot/obol/internal/notify"
	"github.com/obolbot/obol/internal/store"
	"github.com/obolbot/obol/internal/subs"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for database/sql
)

// cliUserID is the synthetic user the ask and chat subcommands run as.
const cliUserID int64 = 1

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run]. This keeps
// os.Exit, os.Stdout, and os.Args out of the application logic so that
// the full startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the obol command. All OS-level
// dependencies are injected as parameters:
//
//   - ctx controls the lifetime of the process. Cancelling it triggers
//     graceful shutdown of the background engines.
//   - stdout and stderr receive all program output. Structured logs go
//     to stdout; fatal error messages go to stderr.
//   - args is os.Args[1:] — the command-line arguments after the program
//     name. We parse these manually rather than using the flag package
//     to avoid global state that interferes with parallel tests.
//
// run returns nil on clean shutdown and a non-nil error for any failure.
// The caller (main) is responsible for printing the error and exiting.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++ // skip the value
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, stderr, configPath)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: obol ask <message>")
		}
		return runAsk(ctx, stdout, configPath, cmdArgs)
	case "chat":
		return runChat(ctx, stdout, configPath)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	// Print fields in a stable order for human readability.
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w. It is called when
// obol is invoked with no arguments, or with -h / --help.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Obol - Conversational Crypto Market Assistant")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: obol [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Start the alert and subscription engines")
	fmt.Fprintln(w, "  init [dir]   Initialize working directory with defaults (default: .)")
	fmt.Fprintln(w, "  ask          Run a single message through the pipeline")
	fmt.Fprintln(w, "  chat         Interactive conversation on stdin")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/obol/config.yaml, /etc/obol/config.yaml")
	return nil
}

// runAsk handles the "obol ask <message>" subcommand. It boots the full
// pipeline against an in-memory store — nothing to persist for a single
// message — and prints the reply to stdout. Useful for quick smoke
// tests and debugging without running the service.
func runAsk(ctx context.Context, stdout io.Writer, configPath string, args []string) error {
	logger := newLogger(stdout, slog.LevelWarn)

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	engine, err := buildEngine(cfg, db, logger)
	if err != nil {
		return err
	}

	reply := engine.Handle(ctx, bot.Utterance{
		UserID:   cliUserID,
		Username: "cli",
		Language: cfg.Language,
		Text:     strings.Join(args, " "),
	})
	fmt.Fprintln(stdout, reply)
	return nil
}

// runChat handles the "obol chat" subcommand: a line-oriented
// conversation on stdin against the persistent store, so sessions,
// alerts and portfolio state survive between invocations.
func runChat(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelWarn)

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	engine, err := buildEngine(cfg, db, logger)
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout, "obol chat — empty line or Ctrl-D to exit")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Fprint(stdout, "> ")
		if !scanner.Scan() {
			break
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			break
		}
		reply := engine.Handle(ctx, bot.Utterance{
			UserID:   cliUserID,
			Username: "cli",
			Language: cfg.Language,
			Text:     text,
		})
		fmt.Fprintln(stdout, reply)
	}
	return scanner.Err()
}

// runServe handles the "obol serve" subcommand. It is the primary
// operating mode: loads config, opens the database, wires the feed,
// notification sink and billing oracle, starts the alert poller and
// subscription monitor, and blocks until a shutdown signal arrives.
//
// The shutdown sequence is:
//  1. SIGINT or SIGTERM cancels the context
//  2. Both background engines stop and drain their in-flight cycle
//  3. The database connection is closed via defer
func runServe(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo)
	logger.Info("starting obol", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", cfgPath, err)
	}

	// Reconfigure the logger now that we know the desired level. The
	// initial Info-level logger covers only the startup banner.
	{
		level, err := config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		logger = newLogger(stdout, level)
	}

	logger.Info("config loaded", "path", cfgPath, "data_dir", cfg.DataDir)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory %s: %w", cfg.DataDir, err)
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	st, err := store.New(db)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	logger.Info("database opened", "path", databasePath(cfg))

	pf := newFeed(cfg, logger)
	pool := newPool(cfg, logger)
	logger.Info("inference providers configured", "count", pool.Size())

	channelID, err := parseChannelID(cfg.Telegram.ChannelID)
	if err != nil {
		return err
	}
	telegram := notify.NewTelegram("", cfg.Telegram.Token, channelID, logger)

	// --- Alert poller ---
	// Evaluates active price alerts on a fixed cadence and delivers
	// at-most-once trigger notifications.
	alertEngine := alerts.New(st, pf, telegram, time.Duration(cfg.Alerts.PollIntervalSec)*time.Second, logger)
	alertEngine.Start(ctx)
	defer alertEngine.Stop()

	// --- Subscription monitor ---
	// Reconciles stored entitlements against the billing oracle.
	// Without a billing endpoint entitlements are whatever the store
	// says, which suits single-operator deployments.
	var monitor *subs.Monitor
	if cfg.Billing.BaseURL != "" {
		oracle := billing.NewHTTPOracle(cfg.Billing.BaseURL, cfg.Billing.Token, logger)
		monitor = subs.New(st, oracle, telegram, telegram, time.Duration(cfg.Subscriptions.CheckIntervalHours)*time.Hour, logger)
		monitor.Start(ctx)
		defer monitor.Stop()
	} else {
		logger.Warn("billing oracle not configured - subscription monitor disabled")
	}

	// --- Signal handling and graceful shutdown ---
	// NotifyContext wraps the parent context so that SIGINT/SIGTERM
	// cancellation flows through the same ctx used by all components.
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	logger.Info("obol stopped")
	return nil
}

// buildEngine wires the full conversation pipeline over an open
// database handle: store, feed, provider pool, handlers, limiter,
// session tracker and resolver.
func buildEngine(cfg *config.Config, db *sql.DB, logger *slog.Logger) (*bot.Engine, error) {
	st, err := store.New(db)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	pf := newFeed(cfg, logger)
	pool := newPool(cfg, logger)

	handlers := bot.NewHandlers(st, pf, pf, pool, cfg.Limits.PortfolioFreeSlots, logger)
	registry, err := bot.NewDefaultRegistry(handlers)
	if err != nil {
		return nil, fmt.Errorf("build registry: %w", err)
	}

	return bot.NewEngine(
		st,
		bot.NewRateLimiter(st, cfg.Limits.DailyFreeTurns),
		convo.NewSessionTracker(st, logger),
		convo.NewResolver(),
		intent.NewClassifier(pool, logger),
		intent.NewExtractor(pool, logger),
		registry,
		logger,
	), nil
}

// newPool builds the provider pool from configuration. Providers with
// no API key are skipped; an empty pool degrades every inference call
// to the unconfigured-service path rather than failing startup.
func newPool(cfg *config.Config, logger *slog.Logger) *llm.Pool {
	var providers []llm.Provider
	if cfg.Providers.Gemini.APIKey != "" {
		providers = append(providers, llm.NewGeminiClient(cfg.Providers.Gemini.APIKey, cfg.Providers.Gemini.Model, logger))
	}
	if cfg.Providers.OpenAI.APIKey != "" {
		providers = append(providers, llm.NewOpenAIClient(cfg.Providers.OpenAI.APIKey, cfg.Providers.OpenAI.Model, logger))
	}
	return llm.NewPool(logger, providers...)
}

func newFeed(cfg *config.Config, logger *slog.Logger) *feed.CoinGecko {
	cache := feed.NewSymbolCache(cfg.Feed.SymbolCacheSize)
	return feed.NewCoinGecko(cfg.Feed.BaseURL, cfg.Feed.APIKey, cache, logger)
}

func databasePath(cfg *config.Config) string {
	return filepath.Join(cfg.DataDir, "obol.db")
}

func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", databasePath(cfg))
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", databasePath(cfg), err)
	}
	return db, nil
}

// parseChannelID converts the configured channel chat ID. An empty
// value disables membership management (chat ID 0 is never valid on
// the Bot API, so grants and revokes fail loudly if reached).
func parseChannelID(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("telegram.channel_id must be a numeric chat ID, got %q", s)
	}
	return id, nil
}

// newLogger creates a structured logger that writes to w at the given
// level. All log output goes through slog; this helper standardizes the
// handler configuration across subcommands.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}

// loadConfig locates and parses the YAML configuration file. If explicit
// is non-empty, that exact path is used (and must exist). Otherwise,
// [config.FindConfig] searches the default locations. Returns the parsed
// config, the path that was loaded, and any error.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}
