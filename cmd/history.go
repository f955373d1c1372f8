package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/andresmejia3/keyredact/internal/store"
	"github.com/andresmejia3/keyredact/internal/utils"
	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:         "history",
	Short:       "List previous redaction runs recorded in the database",
	Annotations: map[string]string{requiresDB: "true"},
	Args:        cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		runs, err := DB.ListRuns(cmd.Context(), historyLimit)
		if err != nil {
			utils.ShowError("Failed to list runs", err, nil)
			return err
		}
		printRuns(os.Stdout, runs)
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of runs to show (0 = all)")
	rootCmd.AddCommand(historyCmd)
}

func printRuns(out io.Writer, runs []store.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs found in database.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTED\tSTATUS\tKEYWORD\tFRAMES\tREDACTED\tBOXES\tOUTPUT")
	fmt.Fprintln(w, "--\t-------\t------\t-------\t------\t--------\t-----\t------")

	for _, r := range runs {
		id := r.ID
		if len(id) > 8 {
			id = id[:8]
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			id,
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			r.Status,
			r.Keyword,
			r.Frames,
			r.RedactedFrames,
			r.Boxes,
			filepath.Base(r.OutputPath),
		)
	}
	w.Flush()
}
