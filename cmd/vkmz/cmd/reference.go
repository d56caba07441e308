package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ChrisMcGann/vkmz/pkg/reference"
)

var referenceCmd = &cobra.Command{
	Use:   "reference",
	Short: "Inspect reference databases",
}

var summarizeCmd = &cobra.Command{
	Use:   "summarize [file]",
	Short: "Summarize reference database contents",
	Long: `Print summary statistics about a reference database: record count, mass
range, element coverage and the largest difference between a record's stated
mass and the monoisotopic mass computed from its element counts.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := reference.LoadFile(args[0])
		if err != nil {
			return err
		}
		s := table.Summarize()

		fmt.Printf("Database: %s\n", args[0])
		fmt.Printf("Records: %d\n", s.Records)
		if s.Records == 0 {
			return nil
		}
		fmt.Printf("Mass range: %.4f - %.4f\n", s.MinMass, s.MaxMass)

		elements := make([]string, 0, len(s.Elements))
		for el := range s.Elements {
			elements = append(elements, el)
		}
		sort.Strings(elements)
		fmt.Printf("Elements:\n")
		for _, el := range elements {
			fmt.Printf("  %-2s %d\n", el, s.Elements[el])
		}

		if s.MaxDeviationFrom != "" {
			fmt.Printf("Max mass deviation: %.6f (%s)\n", s.MaxDeviation, s.MaxDeviationFrom)
		}
		if s.Unscored > 0 {
			fmt.Printf("Unscored: %d record(s) with elements of unknown mass\n", s.Unscored)
		}
		return nil
	},
}

func init() {
	referenceCmd.AddCommand(summarizeCmd)
}
