package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrolled workers ordered by employee number",
	RunE: func(cmd *cobra.Command, args []string) error {
		workers, err := coordinator.List(cmd.Context())
		if err != nil {
			return fmt.Errorf("list workers: %w", err)
		}
		if len(workers) == 0 {
			fmt.Println("No workers enrolled.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tEMPLOYEE NO\tNAME\tTEAM\tSTATUS\tIMAGE")
		for _, wk := range workers {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", wk.ID, wk.EmployeeNumber, wk.Name, wk.Team, wk.Status, wk.ImagePath)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
