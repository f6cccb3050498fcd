package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/balkashynov/wotrack/internal/config"
)

var configCmd = &cobra.Command{
	Use:         "config",
	Short:       "Create or inspect the config file",
	Annotations: map[string]string{skipSetup: "true"},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the defaults",
	Run: func(cmd *cobra.Command, args []string) {
		force, _ := cmd.Flags().GetBool("force")
		path := resolvedConfigPath()

		if _, err := os.Stat(path); err == nil && !force {
			fmt.Printf("Error: %s already exists (use --force to overwrite)\n", path)
			return
		}
		if err := config.DefaultConfig().Save(path); err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		fmt.Printf("✅ Wrote %s\n", path)
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective config, environment overrides included",
	Run: func(cmd *cobra.Command, args []string) {
		path := resolvedConfigPath()
		c, err := config.Load(path)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}

		shown := *c
		shown.Remote.Token = maskSecret(c.Remote.Token)
		shown.Storage.Postgres.Password = maskSecret(c.Storage.Postgres.Password)
		out, err := yaml.Marshal(&shown)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}

		fmt.Printf("# %s\n", path)
		fmt.Print(string(out))
		if err := c.Validate(); err != nil {
			fmt.Printf("\n⚠️  %v\n", err)
		}
	},
}

func resolvedConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultPath()
}

// maskSecret keeps the last four characters of a token
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}

func init() {
	configInitCmd.Flags().BoolP("force", "f", false, "Overwrite an existing config file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}
