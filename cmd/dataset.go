package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kilianp07/open3e-harness/dataset"
)

var datasetECU string

var datasetCmd = &cobra.Command{
	Use:   "dataset [file]",
	Short: "Print the canonical values of a fixture file",
	Args:  cobra.MaximumNArgs(1),
	RunE:  printDataset,
}

func init() {
	datasetCmd.Flags().StringVar(&datasetECU, "ecu", "", "only print records of this ECU")
	rootCmd.AddCommand(datasetCmd)
}

func printDataset(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	path := cfg.Dataset.Path
	if len(args) == 1 {
		path = args[0]
	}
	ds, err := dataset.Load(path)
	if err != nil {
		return err
	}
	if datasetECU != "" {
		ds = ds.Filter(datasetECU)
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	for _, rec := range ds {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", rec.ECU, rec.DID, rec.Expected.Kind(), rec.Canonical())
	}
	return w.Flush()
}
