package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage outhookctl configuration",
}

// configViewCmd represents the config view command
var configViewCmd = &cobra.Command{
	Use:   "view",
	Short: "View current configuration",
	Run: func(cmd *cobra.Command, args []string) {
		if outputJSON {
			printOutput(map[string]any{
				"dsn":     viper.GetString("dsn"),
				"nsqd":    viper.GetString("nsqd"),
				"topic":   viper.GetString("topic"),
				"timeout": viper.GetDuration("timeout").String(),
				"json":    viper.GetBool("json"),
			})
			return
		}
		fmt.Println("Current configuration:")
		fmt.Printf("  DSN:     %s\n", viper.GetString("dsn"))
		fmt.Printf("  nsqd:    %s\n", viper.GetString("nsqd"))
		fmt.Printf("  Topic:   %s\n", viper.GetString("topic"))
		fmt.Printf("  Timeout: %s\n", viper.GetDuration("timeout"))
		if viper.ConfigFileUsed() != "" {
			fmt.Printf("  Config file: %s\n", viper.ConfigFileUsed())
		} else {
			fmt.Println("  Config file: none (using defaults)")
		}
	},
}

// configSetCmd represents the config set command
var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a configuration value",
	Long: `Set a configuration value and save it to the config file.

Examples:
  outhookctl config set nsqd localhost:4150
  outhookctl config set timeout 60s`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		validKeys := map[string]bool{
			"dsn":     true,
			"nsqd":    true,
			"topic":   true,
			"timeout": true,
			"json":    true,
		}
		if !validKeys[key] {
			return fmt.Errorf("unknown config key %q", key)
		}

		viper.Set(key, value)

		path := viper.ConfigFileUsed()
		if path == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			path = filepath.Join(home, ".outhookctl.yaml")
		}
		if err := viper.WriteConfigAs(path); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("Set %s = %s (saved to %s)\n", key, value, path)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configViewCmd)
	configCmd.AddCommand(configSetCmd)
	rootCmd.AddCommand(configCmd)
}
