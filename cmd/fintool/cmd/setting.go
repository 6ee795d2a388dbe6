package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/shunichi-ikebuchi/fintool/pkg/config"
)

// settingCmd groups the settings commands.
var settingCmd = &cobra.Command{
	Use:   "setting",
	Short: "Read and change settings in config.json",
	Long: `Read and change settings stored in config.json under the fintool home.
Keys address nested objects with dots. Values are parsed as JSON when
possible and stored as strings otherwise.

Example:
  fintool setting set sync.banamex.mailboxes '["banamex"]'
  fintool setting append sync.banamex.mailboxes banamex-old
  fintool setting get sync.banamex`,
}

var settingGetCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Print a setting",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		settings := loadSettings()

		value, err := settings.Get(args[0])
		exitOnError(err, "failed to get setting")

		out, err := json.MarshalIndent(value, "", "  ")
		exitOnError(err, "failed to encode setting")
		fmt.Println(string(out))
	},
}

var settingSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Set a setting",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		settings := loadSettings()
		exitOnError(settings.Set(args[0], config.ParseValue(args[1])), "failed to set setting")
		exitOnError(settings.Save(), "failed to save settings")
		slog.Info("Setting updated", "key", args[0])
	},
}

var settingAppendCmd = &cobra.Command{
	Use:   "append KEY VALUE",
	Short: "Append a value to a list setting",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		settings := loadSettings()
		exitOnError(settings.Append(args[0], config.ParseValue(args[1])), "failed to append setting")
		exitOnError(settings.Save(), "failed to save settings")
		slog.Info("Setting updated", "key", args[0])
	},
}

func init() {
	settingCmd.AddCommand(settingGetCmd, settingSetCmd, settingAppendCmd)
}

func loadSettings() *config.Settings {
	path := cfg.Paths().GetSettingsPath()
	slog.Debug("Loading settings", "path", path)

	settings, err := config.LoadSettings(path)
	exitOnError(err, "failed to load settings")
	return settings
}
