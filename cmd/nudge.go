package cmd

import (
	"fmt"
	"time"

	"github.com/habitkit/habits/internal/nudge"
	"github.com/habitkit/habits/internal/nudge/resend"

	"github.com/spf13/cobra"
)

var nudgeWindow time.Duration

var nudgeCmd = &cobra.Command{
	Use:   "nudge",
	Short: "Send a reminder for habit streaks expiring within a certain window",
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Nudge.ResendAPIKey == "" {
			return fmt.Errorf("no Resend API key: set nudge.resend_api_key or HABITS_RESEND_API_KEY")
		}
		if cfg.Nudge.Email == "" {
			return fmt.Errorf("no recipient: set nudge.email or HABITS_NOTIFY_EMAIL")
		}
		if !cmd.Flags().Changed("window") {
			nudgeWindow = time.Duration(cfg.Nudge.ThresholdHours) * time.Hour
		}
		if nudgeWindow <= 0 {
			return fmt.Errorf("nudge window must be positive, got %s", nudgeWindow)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		loc, err := cfg.Location()
		if err != nil {
			return err
		}
		n := &resend.ResendNotifier{
			ApiKey: cfg.Nudge.ResendAPIKey,
			Email:  cfg.Nudge.Email,
			From:   cfg.Nudge.From,
		}

		r, err := nudge.Nudge(cmd.Context(), client, n, time.Now().In(loc), nudgeWindow)
		if err != nil {
			return err
		}
		if r.Empty() {
			fmt.Fprintln(cmd.OutOrStdout(), "nothing to nudge about")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "sent nudge: %d expiring, %d reminders due\n", len(r.Expiring), len(r.Due))
		return nil
	},
}

func init() {
	nudgeCmd.Flags().DurationVar(&nudgeWindow, "window", 4*time.Hour, "warn about streaks that lapse within this window (default from nudge.threshold_hours)")
	rootCmd.AddCommand(nudgeCmd)
}
