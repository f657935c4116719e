package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"datasetdedup/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a sample configuration file",
	Long: `Write a commented sample configuration. Without a path the per-user
default location (~/.config/datasetdedup/config.toml) is used. An existing
file is never overwritten.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConfigInit,
}

func init() {
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	var (
		path string
		err  error
	)
	if len(args) == 1 {
		path, err = config.ExpandPath(args[0])
	} else {
		path, err = config.DefaultConfigPath()
	}
	if err != nil {
		return err
	}
	if err := config.CreateSample(path); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}
