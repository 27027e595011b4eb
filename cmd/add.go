package cmd

import (
	"fmt"
	"strings"

	"github.com/habitkit/habits/pkg/habit"

	"github.com/spf13/cobra"
)

var addInput habit.Input

var addCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a habit",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := addInput
		in.Name = strings.Join(args, " ")
		in = in.Normalize()
		if err := in.Validate(); err != nil {
			return err
		}
		client, err := newClient()
		if err != nil {
			return err
		}
		h, err := client.CreateHabit(cmd.Context(), in)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created habit %d: %s\n", h.ID, h.Name)
		return nil
	},
}

func init() {
	addCmd.Flags().StringVar(&addInput.Category, "category", "", "category (default "+habit.DefaultCategory+")")
	addCmd.Flags().StringVar(&addInput.Color, "color", "", "color as #rrggbb")
	addCmd.Flags().StringVar(&addInput.ReminderTime, "reminder", "", "daily reminder time as HH:MM")
	rootCmd.AddCommand(addCmd)
}
