package cmd

import (
	"fmt"
	"sort"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
)

const maskedValue = "********"

func newConfigCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as TOML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := toml.Marshal(effectiveSettings(app))
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	})

	return cmd
}

var (
	durationKeys = map[string]bool{
		"api.timeout":              true,
		"notify.throttle":          true,
		"farm.heartbeat_interval":  true,
		"farm.rest_after":          true,
		"farm.rest_duration":       true,
		"farm.start_settle":        true,
		"farm.start_retry_step":    true,
		"farm.start_retry_max":     true,
		"farm.stats_interval":      true,
		"farm.stats_write_timeout": true,
		"farm.stagger_step":        true,
	}
	intKeys = map[string]bool{
		"api.attempts":            true,
		"notify.queue_size":       true,
		"farm.start_max_attempts": true,
		"farm.log_capacity":       true,
	}
)

// effectiveSettings groups every known key by section with durations in
// their text form and secrets masked.
func effectiveSettings(app *app) map[string]map[string]any {
	keys := app.viper.AllKeys()
	sort.Strings(keys)

	out := map[string]map[string]any{}
	for _, key := range keys {
		section, name, ok := strings.Cut(key, ".")
		if !ok {
			continue
		}
		if out[section] == nil {
			out[section] = map[string]any{}
		}

		var value any
		switch {
		case key == "notify.webhook_url" && app.viper.GetString(key) != "":
			value = maskedValue
		case durationKeys[key]:
			value = app.viper.GetDuration(key).String()
		case intKeys[key]:
			value = app.viper.GetInt(key)
		default:
			value = app.viper.GetString(key)
		}
		out[section][name] = value
	}
	return out
}
