// vkmz - Formula prediction and Van Krevelen ratios for mass-spectrometry features
package main

import (
	"fmt"
	"os"

	"github.com/ChrisMcGann/vkmz/cmd/vkmz/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
