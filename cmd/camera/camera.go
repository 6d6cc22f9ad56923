// Package camera implements the camera management commands.
package camera

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/platewatch/platewatch/internal/conf"
	"github.com/platewatch/platewatch/internal/datastore"
	"github.com/platewatch/platewatch/internal/errors"
)

// Command creates the camera command and its subcommands.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "camera",
		Short: "Manage RTSP camera sources",
	}
	cmd.AddCommand(addCommand(settings), listCommand(settings),
		setActiveCommand(settings, "enable", true), setActiveCommand(settings, "disable", false))
	return cmd
}

func addCommand(settings *conf.Settings) *cobra.Command {
	var camera datastore.Camera

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a camera",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(settings, func(store datastore.Interface) error {
				if err := store.AddCamera(cmd.Context(), &camera); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "camera %d added: %s (%s)\n", camera.ID, camera.Name, camera.Address)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&camera.Name, "name", "", "Camera name")
	cmd.Flags().StringVar(&camera.Address, "address", "", "Camera host or IP address")
	cmd.Flags().IntVar(&camera.Port, "port", datastore.DefaultCameraPort, "RTSP port")
	cmd.Flags().StringVar(&camera.Username, "username", "", "RTSP username")
	cmd.Flags().StringVar(&camera.Password, "password", "", "RTSP password")
	cmd.Flags().StringVar(&camera.StreamPath, "path", datastore.DefaultStreamPath, "RTSP stream path")
	cmd.Flags().BoolVar(&camera.Active, "active", true, "Poll the camera once added")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("address")

	return cmd
}

func listCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active cameras",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(settings, func(store datastore.Interface) error {
				cameras, err := store.ListActiveSources(cmd.Context())
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tADDRESS\tPORT\tPATH")
				for _, c := range cameras {
					fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n", c.ID, c.Name, c.Address, c.Port, c.StreamPath)
				}
				return w.Flush()
			})
		},
	}
}

func setActiveCommand(settings *conf.Settings, use string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: fmt.Sprintf("%s polling of a camera", use),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 0)
			if err != nil {
				return fmt.Errorf("invalid camera id %q", args[0])
			}
			return withStore(settings, func(store datastore.Interface) error {
				if err := store.SetCameraActive(cmd.Context(), uint(id), active); err != nil {
					if errors.IsNotFound(err) {
						return fmt.Errorf("camera %d not found", id)
					}
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "camera %d %sd\n", id, use)
				return nil
			})
		},
	}
}

// withStore opens the configured store for the duration of fn.
func withStore(settings *conf.Settings, fn func(datastore.Interface) error) error {
	store, err := datastore.Connect(settings)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	return fn(store)
}
