package cli

import (
	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show <object-id>",
	Short: "Show the composed governed view of an object",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func runShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	eng, db, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	obj, err := eng.Reason(args[0])
	if err != nil {
		return err
	}
	return printJSON(obj)
}

var similarTopK int

var similarCmd = &cobra.Command{
	Use:   "similar <object-id>",
	Short: "Find semantically similar objects",
	Args:  cobra.ExactArgs(1),
	RunE:  runSimilar,
}

func init() {
	similarCmd.Flags().IntVar(&similarTopK, "top-k", 5, "maximum number of results")
}

func runSimilar(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	eng, db, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	neighbors, err := eng.FindSimilar(args[0], similarTopK)
	if err != nil {
		return err
	}
	return printJSON(neighbors)
}

var typesCmd = &cobra.Command{
	Use:   "types",
	Short: "List known object types",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		eng, db, err := openEngine(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		return printJSON(eng.Ontology.ListTypes())
	},
}
