package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/vantagesign/signdeck/internal/config"
	"github.com/vantagesign/signdeck/internal/errors"
	"github.com/vantagesign/signdeck/internal/manifest"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Inspect and change the fleet-wide display settings",
}

var settingsGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the current display settings",
	RunE:  runSettingsGet,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change display settings and publish the manifest",
	Example: `  signdeck settings set --rotation 15 --brightness 70
  signdeck settings set --schedule-on 08:00 --schedule-off 22:00
  signdeck settings set --theme light`,
	RunE: runSettingsSet,
}

var settingsFlags struct {
	rotation    int
	brightness  int
	theme       string
	scheduleOn  string
	scheduleOff string
}

func init() {
	rootCmd.AddCommand(settingsCmd)
	settingsCmd.AddCommand(settingsGetCmd)
	settingsCmd.AddCommand(settingsSetCmd)

	settingsSetCmd.Flags().IntVar(&settingsFlags.rotation, "rotation", 0, "seconds each logo is shown")
	settingsSetCmd.Flags().IntVar(&settingsFlags.brightness, "brightness", -1, "display brightness, 0-100")
	settingsSetCmd.Flags().StringVar(&settingsFlags.theme, "theme", "", "display theme (dark, light)")
	settingsSetCmd.Flags().StringVar(&settingsFlags.scheduleOn, "schedule-on", "", `daily on time, "HH:MM"`)
	settingsSetCmd.Flags().StringVar(&settingsFlags.scheduleOff, "schedule-off", "", `daily off time, "HH:MM"`)
}

func runSettingsGet(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	publisher, err := newPublisher(ctx, cfg, newLogger())
	if err != nil {
		return err
	}

	m, _, err := publisher.FetchManifest(ctx)
	if err != nil {
		return err
	}

	out := struct {
		Rotation   int               `yaml:"rotation_seconds"`
		Brightness int               `yaml:"brightness"`
		Theme      string            `yaml:"theme,omitempty"`
		Schedule   manifest.Schedule `yaml:"schedule,omitempty"`
		Logos      int               `yaml:"logos"`
	}{
		Rotation:   m.Settings.RotationSeconds,
		Brightness: m.Settings.Brightness,
		Theme:      m.Settings.Theme,
		Schedule:   m.Settings.Schedule,
		Logos:      len(m.Logos),
	}
	return yaml.NewEncoder(os.Stdout).Encode(out)
}

// anyChanged reports whether the user set at least one of the flags.
func anyChanged(flags *pflag.FlagSet, names ...string) bool {
	for _, name := range names {
		if flags.Changed(name) {
			return true
		}
	}
	return false
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	if !anyChanged(flags, "rotation", "brightness", "theme", "schedule-on", "schedule-off") {
		return errors.NewValidation("no_settings", "nothing to change, pass at least one flag")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	publisher, err := newPublisher(ctx, cfg, newLogger())
	if err != nil {
		return err
	}

	m, err := publisher.UpdateSettings(ctx, func(s *manifest.Settings) error {
		if flags.Changed("rotation") {
			if settingsFlags.rotation < 1 {
				return errors.NewValidation("bad_rotation", "rotation must be at least 1 second")
			}
			s.RotationSeconds = settingsFlags.rotation
		}
		if flags.Changed("brightness") {
			if settingsFlags.brightness < 0 || settingsFlags.brightness > 100 {
				return errors.NewValidation("bad_brightness", "brightness must be between 0 and 100")
			}
			s.Brightness = settingsFlags.brightness
		}
		if flags.Changed("theme") {
			s.Theme = settingsFlags.theme
		}
		if flags.Changed("schedule-on") {
			s.Schedule.On = settingsFlags.scheduleOn
		}
		if flags.Changed("schedule-off") {
			s.Schedule.Off = settingsFlags.scheduleOff
		}
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Printf("✓ settings published (manifest updated %s)\n",
		m.UpdatedAt.Format("2006-01-02 15:04:05"))
	return nil
}
