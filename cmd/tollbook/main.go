package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "tollbook",
	Short: "Tollbook — Model Usage Ledger",
	Long:  "Tollbook keeps a per-task ledger of which backend model was active during each slice of a long-running conversation and attributes asynchronous, duplicated, or late usage reports to the correct slice.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: configs/tollbook.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
