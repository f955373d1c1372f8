package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/andresmejia3/keyredact/internal/logging"
	"github.com/andresmejia3/keyredact/internal/ocr"
	"github.com/andresmejia3/keyredact/internal/store"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Options holds shared configuration for the redact and scan commands
type Options struct {
	InputPath       string
	OutputPath      string
	Keyword         string
	CaseSensitive   bool
	MinConfidence   int
	Engine          string
	Languages       string
	ReuseSimilar    bool
	MaxHashDistance int
}

var (
	// DB is the optional run-history store shared by subcommands
	DB *store.Store
	// logger is the process-wide handle built from --log-level
	logger = slog.Default()

	dbURL    string
	logLevel string
)

// Version is the application version.
const Version = "0.1.0"

// requiresDB marks commands that cannot run without the history store.
const requiresDB = "requiresDB"

var rootCmd = &cobra.Command{
	Use:   "keyredact <input> <output> <keyword>",
	Short: "Blank out every on-screen occurrence of a keyword in a video",
	Long: "Scans each frame of the input video with Tesseract OCR and covers every word matching the\n" +
		"keyword with a white rectangle. The original audio track is carried over to the output.",
	Version:       Version, // This enables the --version flag
	Args:          cobra.ExactArgs(3),
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A missing .env is fine; flags and the real environment still apply.
		_ = godotenv.Load()

		if !cmd.Flags().Changed("log-level") {
			if env := os.Getenv("KEYREDACT_LOG_LEVEL"); env != "" {
				logLevel = env
			}
		}
		level, err := logging.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		logger = logging.New(os.Stderr, level)

		url := resolveDBURL(cmd.Annotations[requiresDB] == "true")
		if url == "" {
			return nil
		}
		// Use the command's context (which will be cancellable) for the connection
		DB, err = store.New(cmd.Context(), url)
		if err != nil {
			if cmd.Annotations[requiresDB] == "true" {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			logger.Warn("run history disabled, database unavailable", "error", err)
			DB = nil
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if DB != nil {
			// Use Background here because the main context might be cancelled already (due to Ctrl+C)
			DB.Close(context.Background())
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		redactOpts.InputPath, redactOpts.OutputPath, redactOpts.Keyword = args[0], args[1], args[2]
		return runRedact(cmd.Context(), redactOpts)
	},
}

// resolveDBURL picks the connection string from --db, then POSTGRES_* variables.
// The local default is only used when the command cannot work without a store.
func resolveDBURL(required bool) string {
	if dbURL != "" {
		return dbURL
	}
	if host := os.Getenv("POSTGRES_HOST"); host != "" {
		user := os.Getenv("POSTGRES_USER")
		pass := os.Getenv("POSTGRES_PASSWORD")
		name := os.Getenv("POSTGRES_DB")
		port := os.Getenv("POSTGRES_PORT")
		if port == "" {
			port = "5432"
		}
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, pass, host, port, name)
	}
	if required {
		return "postgres://localhost:5432/keyredact"
	}
	return ""
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// This tells Cobra not to print the version in the help text, which is cleaner.
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		reportFailure(ctx, err)
		stop()
		os.Exit(1)
	}
}

// reportFailure logs the error that ends the process. Banners were already
// printed by the command that failed.
func reportFailure(ctx context.Context, err error) {
	logCritical(ctx, "keyredact failed", err)
}

// addOCRFlags registers the matching and engine flags shared by redact and scan.
func addOCRFlags(cmd *cobra.Command, opts *Options) {
	cmd.Flags().BoolVar(&opts.CaseSensitive, "case-sensitive", false, "Match the keyword using case-sensitive comparison")
	cmd.Flags().IntVar(&opts.MinConfidence, "min-confidence", 0, "Only redact words whose OCR confidence is at least this value (range: 0-100)")
	cmd.Flags().StringVar(&opts.Engine, "engine", ocr.EngineGosseract, "OCR engine: gosseract (libtesseract) or cli (tesseract binary)")
	cmd.Flags().StringVar(&opts.Languages, "lang", "eng", "Comma-separated Tesseract languages")
	cmd.Flags().BoolVar(&opts.ReuseSimilar, "reuse-similar", false, "Skip OCR on frames identical to the previous one and reuse its boxes")
	cmd.Flags().IntVar(&opts.MaxHashDistance, "similarity-distance", 0, "Perceptual hash distance treated as identical (with --reuse-similar). 0 requires byte-identical frames; higher values may leave moved text unredacted")
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string for run history (optional)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "INFO", "Logging verbosity: "+strings.Join(logging.Levels, ", "))
	addOCRFlags(rootCmd, &redactOpts)
}
