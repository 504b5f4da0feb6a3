// Command juridisch analyses legal documents from the command line.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Lllllllleong/legaldocumentflow/internal/analysis"
	"github.com/Lllllllleong/legaldocumentflow/internal/config"
)

const (
	Version = "0.1.0"
	appName = "juridisch"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type globalFlags struct {
	configPath string
	logLevel   string
	logFile    string
}

func rootCmd() *cobra.Command {
	var g globalFlags

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Juridische documentanalyse",
		Long: `juridisch runs a multi-stage model analysis over legal documents and
writes a JSON export, a Markdown report, an xlsx workbook of findings and
the extracted document text.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&g.logFile, "log-file", "", "Write JSON logs to this rotating file instead of stderr")

	cmd.AddCommand(analyzeCmd(&g))
	cmd.AddCommand(&cobra.Command{
		Use:   "variants",
		Short: "List the analysis variants",
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range analysis.Names() {
				v, _ := analysis.Lookup(name)
				fmt.Fprintf(cmd.OutOrStdout(), "%-16s %s (%s)\n", name, v.Title, strings.Join(v.Roles, ", "))
			}
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
		},
	})
	return cmd
}

func loadConfig(g *globalFlags) (*config.Config, error) {
	opts := []config.LoaderOption{config.WithDotEnv(".env")}
	if g.configPath != "" {
		opts = append(opts, config.WithPath(g.configPath))
	}
	cfg, err := config.NewLoader(slog.Default(), opts...).Load()
	if err != nil {
		return nil, err
	}
	if g.logLevel != "" {
		cfg.Logging.Level = g.logLevel
	}
	if g.logFile != "" {
		cfg.Logging.File = g.logFile
	}
	return cfg, nil
}

// newLogger writes text logs to stderr, or JSON logs to a rotating file.
func newLogger(cfg config.LoggingConfig, stderr io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if cfg.File == "" {
		return slog.New(slog.NewTextHandler(stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(&lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
	}, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
