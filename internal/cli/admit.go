package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/aegis-kb/aegis/internal/engine"
)

var admitActor string

var admitCmd = &cobra.Command{
	Use:   "admit <type> <fields-json>",
	Short: "Admit a knowledge object through the governance pipeline",
	Args:  cobra.ExactArgs(2),
	RunE:  runAdmit,
}

func init() {
	admitCmd.Flags().StringVar(&admitActor, "actor", "cli", "actor recorded in the provenance ledger")
}

func runAdmit(cmd *cobra.Command, args []string) error {
	objectType := args[0]

	var fields map[string]any
	if err := json.Unmarshal([]byte(args[1]), &fields); err != nil {
		return fmt.Errorf("parse fields json: %w", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	eng, db, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	obj, err := eng.Admit(ctx, objectType, fields, admitActor)
	if err != nil {
		var verr *engine.ValidationError
		if errors.As(err, &verr) {
			fmt.Fprintln(os.Stderr, "validation failed:")
			for _, msg := range verr.Errors {
				fmt.Fprintf(os.Stderr, "  - %s\n", msg)
			}
			os.Exit(1)
		}
		var derr *engine.DeniedError
		if errors.As(err, &derr) {
			fmt.Fprintf(os.Stderr, "denied: %s (coherence %.3f, trust %.3f)\n",
				derr.Rationale, derr.Coherence, derr.Trust)
			fmt.Fprintf(os.Stderr, "  object %s recorded in the ledger\n", derr.ObjectID)
			os.Exit(1)
		}
		return err
	}

	return printJSON(obj)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
