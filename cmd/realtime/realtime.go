package realtime

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/platewatch/platewatch/internal/analysis"
	"github.com/platewatch/platewatch/internal/conf"
)

// Command creates the command that runs the polling pipeline.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "realtime",
		Short: "Poll cameras and recognize plates continuously",
		Long:  "Poll every active camera, recognize license plates, record events and trigger the gate for registered vehicles.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return analysis.RealtimeAnalysis(settings)
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().DurationVar(&settings.Pipeline.Interval, "interval", viper.GetDuration("pipeline.interval"), "Pause between polling cycles")
	cmd.Flags().IntVar(&settings.Pipeline.Workers, "workers", viper.GetInt("pipeline.workers"), "Max cameras processed concurrently, 0 = one per camera")
	cmd.Flags().StringVar(&settings.Storage.ImageDir, "imagedir", viper.GetString("storage.imagedir"), "Directory for recognition snapshots")
	cmd.Flags().BoolVar(&settings.Actuator.Enabled, "actuator", viper.GetBool("actuator.enabled"), "Trigger the gate actuator for registered vehicles")
	cmd.Flags().StringVar(&settings.Actuator.URL, "actuatorurl", viper.GetString("actuator.url"), "URL of the gate actuator endpoint")
	cmd.Flags().BoolVar(&settings.Telemetry.Enabled, "telemetry", viper.GetBool("telemetry.enabled"), "Enable Prometheus telemetry endpoint")
	cmd.Flags().StringVar(&settings.Telemetry.Listen, "listen", viper.GetString("telemetry.listen"), "Listen address and port of telemetry endpoint")

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}
