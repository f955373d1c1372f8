package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/andresmejia3/keyredact/internal/pipeline"
	"github.com/andresmejia3/keyredact/internal/types"
	"github.com/andresmejia3/keyredact/internal/utils"
	"github.com/andresmejia3/keyredact/internal/video"
	"github.com/spf13/cobra"
)

var scanOpts Options

var scanCmd = &cobra.Command{
	Use:   "scan <input> <keyword>",
	Short: "List where a keyword appears in a video without writing any output",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		scanOpts.InputPath, scanOpts.Keyword = args[0], args[1]
		return runScan(cmd.Context(), scanOpts)
	},
}

func init() {
	addOCRFlags(scanCmd, &scanOpts)
	rootCmd.AddCommand(scanCmd)
}

// runScan performs the OCR pass only and prints the time ranges containing the keyword.
func runScan(ctx context.Context, opts Options) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := validateScanFlags(&opts); err != nil {
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

	driver := pipeline.New(redactor, logger)
	occurrences, info, err := driver.Scan(ctx, opts.InputPath, redactor)
	if err != nil {
		utils.ShowError("Scan failed", err, nil)
		return err
	}

	if len(occurrences) == 0 {
		fmt.Printf("❌ '%s' was not found in %s.\n", opts.Keyword, opts.InputPath)
		return nil
	}
	printOccurrences(os.Stdout, occurrences, info)
	return nil
}

func printOccurrences(out io.Writer, occurrences []pipeline.Occurrence, info types.VideoInfo) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "TIME RANGE\tFRAMES\tMAX BOXES")
	fmt.Fprintln(w, "----------\t------\t---------")
	for _, o := range occurrences {
		start, end := o.Seconds(info.FPS)
		fmt.Fprintf(w, "%s - %s\t%d-%d\t%d\n",
			utils.FmtTime(start),
			utils.FmtTime(end),
			o.StartFrame, o.EndFrame,
			o.MaxBoxes,
		)
	}
	w.Flush()
}

// validateScanFlags ensures all CLI arguments are valid before starting heavy processes.
func validateScanFlags(opts *Options) error {
	if err := validateInput(opts.InputPath); err != nil {
		return err
	}
	return validateMatching(opts)
}
