package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/aegis-kb/aegis/internal/store"
)

var driftProjectDays int

var driftCmd = &cobra.Command{
	Use:   "drift <object-id>",
	Short: "Assess trust decay and semantic drift for an object",
	Args:  cobra.ExactArgs(1),
	RunE:  runDrift,
}

func init() {
	driftCmd.Flags().IntVar(&driftProjectDays, "project", 0, "also project trust decay this many days ahead")
}

func runDrift(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	eng, db, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	report, err := eng.GetDrift(args[0])
	if err != nil {
		return err
	}
	if err := printJSON(report); err != nil {
		return err
	}

	if driftProjectDays > 0 {
		createdAt, err := store.ParseTime(report.Baseline.Timestamp)
		if err != nil {
			return fmt.Errorf("parse baseline timestamp: %w", err)
		}

		points := eng.Tracker.DecayTimeline(report.Trust.Initial, createdAt, driftProjectDays)
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "DAY\tDATE\tTRUST\tACTION")
		for _, p := range points {
			fmt.Fprintf(w, "%d\t%s\t%.3f\t%s\n", p.Day, p.Date, p.Trust, p.Action)
		}
		w.Flush()
	}
	return nil
}
