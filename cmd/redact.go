package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/andresmejia3/keyredact/internal/logging"
	"github.com/andresmejia3/keyredact/internal/ocr"
	"github.com/andresmejia3/keyredact/internal/pipeline"
	"github.com/andresmejia3/keyredact/internal/redact"
	"github.com/andresmejia3/keyredact/internal/store"
	"github.com/andresmejia3/keyredact/internal/utils"
	"github.com/andresmejia3/keyredact/internal/video"
)

var redactOpts Options

func runRedact(ctx context.Context, opts Options) error {
	// Create a cancellable context so ffmpeg and tesseract children are killed
	// as soon as this function returns early.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := validateRedactFlags(&opts); err != nil {
		return err
	}
	if err := video.Available(); err != nil {
		utils.ShowError("FFmpeg is required", err, nil)
		return err
	}

	engine, redactor, err := newRedactor(opts)
	if err != nil {
		utils.ShowError("Failed to start OCR engine", err, nil)
		return err
	}
	defer engine.Close()

	runID := startRun(ctx, opts)

	driver := pipeline.New(redactor, logger)
	summary, err := driver.Run(ctx, opts.InputPath, opts.OutputPath)
	finishRun(runID, summary, err)
	if err != nil {
		utils.ShowError("Redaction failed", err, nil)
		return err
	}

	fmt.Printf("✅ Redacted %d boxes across %d of %d frames -> %s\n",
		summary.Boxes, summary.RedactedFrames, summary.Frames, opts.OutputPath)
	if opts.ReuseSimilar {
		fmt.Printf("   OCR skipped on %d similar frames\n", summary.Skipped)
	}
	return nil
}

// newRedactor builds the OCR engine and the keyword redactor on top of it.
// The caller owns the returned engine and must Close it.
func newRedactor(opts Options) (ocr.Engine, *redact.Redactor, error) {
	engine, err := ocr.New(opts.Engine, splitLanguages(opts.Languages))
	if err != nil {
		return nil, nil, err
	}
	logger.Debug("ocr engine ready", "engine", engine.Name(), "lang", opts.Languages)

	r := redact.New(redact.Config{
		Keyword:       opts.Keyword,
		CaseSensitive: opts.CaseSensitive,
		MinConfidence: opts.MinConfidence,
	}, engine, logger)
	if opts.ReuseSimilar {
		r.EnableReuse(opts.MaxHashDistance)
	}
	return engine, r, nil
}

func splitLanguages(s string) []string {
	var langs []string
	for _, l := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '+' }) {
		if l = strings.TrimSpace(l); l != "" {
			langs = append(langs, l)
		}
	}
	return langs
}

// startRun records the run when a history store is configured. Store failures
// are logged and never stop the redaction.
func startRun(ctx context.Context, opts Options) string {
	if DB == nil {
		return ""
	}
	id, err := DB.StartRun(ctx, store.Run{
		InputPath:     opts.InputPath,
		OutputPath:    opts.OutputPath,
		Keyword:       opts.Keyword,
		CaseSensitive: opts.CaseSensitive,
		MinConfidence: opts.MinConfidence,
	})
	if err != nil {
		logger.Warn("failed to record run", "error", err)
		return ""
	}
	return id
}

func finishRun(id string, summary pipeline.Summary, runErr error) {
	if DB == nil || id == "" {
		return
	}
	// Background: the run context is cancelled on Ctrl+C, but the outcome should still be stored.
	if err := DB.FinishRun(context.Background(), id, summary.Frames, summary.RedactedFrames, summary.Boxes, runErr); err != nil {
		logger.Warn("failed to record run outcome", "run", id, "error", err)
	}
}

// clampConfidence forces the threshold into 0..100, warning when it had to move.
func clampConfidence(v int) int {
	switch {
	case v < 0:
		logger.Warn("min-confidence below 0, using 0", "value", v)
		return 0
	case v > 100:
		logger.Warn("min-confidence above 100, using 100", "value", v)
		return 100
	}
	return v
}

// validateInput checks the input path points at a readable regular file.
func validateInput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			utils.ShowError("Input file does not exist", err, nil)
			return err
		}
		utils.ShowError("Unable to access input file", err, nil)
		return err
	}
	if info.IsDir() {
		err := fmt.Errorf("%s is a directory", path)
		utils.ShowError("Input path is a directory, expected a video file", err, nil)
		return err
	}
	return nil
}

// validateMatching checks the options shared by redact and scan.
func validateMatching(opts *Options) error {
	if strings.TrimSpace(opts.Keyword) == "" {
		err := fmt.Errorf("keyword must not be empty")
		utils.ShowError("Configuration Error", err, nil)
		return err
	}
	switch opts.Engine {
	case ocr.EngineGosseract, ocr.EngineCLI:
	default:
		err := fmt.Errorf("invalid engine '%s'. Must be '%s' or '%s'", opts.Engine, ocr.EngineGosseract, ocr.EngineCLI)
		utils.ShowError("Configuration Error", err, nil)
		return err
	}
	if len(splitLanguages(opts.Languages)) == 0 {
		err := fmt.Errorf("at least one OCR language is required")
		utils.ShowError("Configuration Error", err, nil)
		return err
	}
	if opts.MaxHashDistance < 0 {
		opts.MaxHashDistance = 0
	}
	opts.MinConfidence = clampConfidence(opts.MinConfidence)
	return nil
}

func validateRedactFlags(opts *Options) error {
	if err := validateInput(opts.InputPath); err != nil {
		return err
	}
	if strings.TrimSpace(opts.OutputPath) == "" {
		err := fmt.Errorf("output path must not be empty")
		utils.ShowError("Configuration Error", err, nil)
		return err
	}

	// Safety Check: Prevent overwriting input file which causes corruption
	inAbs, _ := filepath.Abs(opts.InputPath)
	outAbs, _ := filepath.Abs(opts.OutputPath)
	if inAbs == outAbs {
		err := fmt.Errorf("input and output paths must be different to prevent file corruption")
		utils.ShowError("Configuration Error", err, nil)
		return err
	}
	if info, err := os.Stat(opts.OutputPath); err == nil && info.IsDir() {
		err := fmt.Errorf("%s is a directory", opts.OutputPath)
		utils.ShowError("Output path is a directory, expected a file name", err, nil)
		return err
	}

	return validateMatching(opts)
}

// logCritical reports a failure that ends the process.
func logCritical(ctx context.Context, msg string, err error) {
	logger.Log(ctx, logging.LevelCritical, msg, "error", err)
}
