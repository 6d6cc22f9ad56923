// Package vehicle implements the registry management commands.
package vehicle

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/platewatch/platewatch/internal/conf"
	"github.com/platewatch/platewatch/internal/datastore"
	"github.com/platewatch/platewatch/internal/errors"
)

// Command creates the vehicle command and its subcommands.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vehicle",
		Short: "Manage the registered vehicle list",
	}
	cmd.AddCommand(
		addCommand(settings),
		checkCommand(settings),
		setActiveCommand(settings, "activate", true),
		setActiveCommand(settings, "deactivate", false),
	)
	return cmd
}

func addCommand(settings *conf.Settings) *cobra.Command {
	var vehicle datastore.Vehicle

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a vehicle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := datastore.Connect(settings)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.AddVehicle(cmd.Context(), &vehicle); err != nil {
				if errors.Is(err, datastore.ErrDuplicate) {
					return fmt.Errorf("vehicle %s is already registered", vehicle.LicensePlate)
				}
				return err
			}
			state := "active"
			if !vehicle.Active {
				state = "inactive"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "vehicle %s registered to %s (%s)\n", vehicle.LicensePlate, vehicle.OwnerName, state)
			return nil
		},
	}

	cmd.Flags().StringVar(&vehicle.LicensePlate, "plate", "", "License plate")
	cmd.Flags().StringVar(&vehicle.OwnerName, "owner", "", "Owner name")
	cmd.Flags().StringVar(&vehicle.Address, "address", "", "Owner address")
	cmd.Flags().StringVar(&vehicle.PhoneNumber, "phone", "", "Owner phone number")
	cmd.Flags().StringVar(&vehicle.VehicleType, "type", "", "Vehicle type, e.g. car or truck")
	cmd.Flags().BoolVar(&vehicle.Active, "active", true, "Grant access immediately")
	_ = cmd.MarkFlagRequired("plate")
	_ = cmd.MarkFlagRequired("owner")

	return cmd
}

func checkCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "check <plate>",
		Short: "Report whether a plate is actively registered",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := datastore.Connect(settings)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			plate := datastore.NormalizePlate(args[0])
			registered, err := store.IsRegistered(cmd.Context(), plate)
			if err != nil {
				return err
			}
			if registered {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is registered\n", plate)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is not registered\n", plate)
			}
			return nil
		},
	}
}

func setActiveCommand(settings *conf.Settings, use string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <plate>",
		Short: fmt.Sprintf("%s a registration", use),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := datastore.Connect(settings)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			plate := datastore.NormalizePlate(args[0])
			if err := store.SetVehicleActive(cmd.Context(), plate, active); err != nil {
				if errors.IsNotFound(err) {
					return fmt.Errorf("vehicle %s not found", plate)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "vehicle %s %sd\n", plate, use)
			return nil
		},
	}
}
