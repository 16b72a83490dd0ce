package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/erazemk/webventory/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// levelRouter is a slog.Handler that routes INFO/WARN to stdout and ERROR+ to stderr.
type levelRouter struct {
	level  slog.Leveler
	stdout slog.Handler
	stderr slog.Handler
}

func (lr *levelRouter) Enabled(_ context.Context, level slog.Level) bool {
	return level >= lr.level.Level()
}

func (lr *levelRouter) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelError {
		return lr.stderr.Handle(ctx, r)
	}
	return lr.stdout.Handle(ctx, r)
}

func (lr *levelRouter) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelRouter{
		level:  lr.level,
		stdout: lr.stdout.WithAttrs(attrs),
		stderr: lr.stderr.WithAttrs(attrs),
	}
}

func (lr *levelRouter) WithGroup(name string) slog.Handler {
	return &levelRouter{
		level:  lr.level,
		stdout: lr.stdout.WithGroup(name),
		stderr: lr.stderr.WithGroup(name),
	}
}

// setupLogger configures structured logging. INFO/WARN go to stdout, ERROR goes
// to stderr. If logPath is non-empty, all levels are also written to that file.
// Returns a cleanup function that closes the log file (if opened).
func setupLogger(logPath string, level *slog.LevelVar) (func(), error) {
	opts := &slog.HandlerOptions{Level: level}

	cleanup := func() {}

	stdoutW := io.Writer(os.Stdout)
	stderrW := io.Writer(os.Stderr)

	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		cleanup = func() { f.Close() }
		stdoutW = io.MultiWriter(os.Stdout, f)
		stderrW = io.MultiWriter(os.Stderr, f)
	}

	handler := &levelRouter{
		level:  level,
		stdout: slog.NewTextHandler(stdoutW, opts),
		stderr: slog.NewTextHandler(stderrW, opts),
	}
	slog.SetDefault(slog.New(handler))
	return cleanup, nil
}

// app is the state shared by all commands once configuration is loaded.
type app struct {
	v        *viper.Viper
	cfg      *config.Config
	level    slog.LevelVar
	closeLog func()
}

func main() {
	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	a := &app{v: config.New(), closeLog: func() {}}

	var (
		configPath string
		envPath    string
	)

	cmd := &cobra.Command{
		Use:   "webventory",
		Short: "Inventory tracking web application",
		Long: `Webventory keeps track of items, their price and quantity, and how
both change over time. Items can be shared with other users, and their
history is plotted as charts.

Running webventory without a command starts the server.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(envPath); err != nil {
				return err
			}
			cfg, err := config.Load(a.v, configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg

			level, _ := config.ParseLevel(cfg.Log.Level)
			a.level.Set(level)

			closeLog, err := setupLogger(cfg.Log.File, &a.level)
			if err != nil {
				return err
			}
			a.closeLog = closeLog

			config.WatchLevel(a.v, &a.level)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.closeLog()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(a)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "config file path (YAML, JSON or TOML)")
	flags.StringVar(&envPath, "env-file", ".env", "dotenv file loaded into the environment if present")
	flags.StringP("db", "d", "", "SQLite database path (default: webventory.db)")
	flags.StringP("log", "l", "", "log file path (default: no file, stdout/stderr only)")
	flags.String("log-level", "", "log level: debug, info, warn, error (default: info)")
	bindFlag(a.v, "db", flags.Lookup("db"))
	bindFlag(a.v, "log.file", flags.Lookup("log"))
	bindFlag(a.v, "log.level", flags.Lookup("log-level"))

	// Serve flags live on the root too, since serving is the default.
	sf := serveFlags(a.v)
	cmd.Flags().AddFlagSet(sf)

	cmd.AddCommand(serveCmd(a, sf), initCmd(a), seedCmd(a))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		// Skips configuration loading.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("webventory version %s\n", version)
		},
	})

	return cmd
}
