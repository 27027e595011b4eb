package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var toggleCmd = &cobra.Command{
	Use:   "toggle <habit-id>",
	Short: "Mark or unmark a habit as done today",
	Long: `The "toggle" command flips today's completion for a habit. Running it twice
on the same day leaves the habit as it was.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid habit id %q", args[0])
		}
		client, err := newClient()
		if err != nil {
			return err
		}
		res, err := client.Toggle(cmd.Context(), id)
		if err != nil {
			return err
		}

		state := "not done"
		if res.Done {
			state = "done"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "habit %d marked %s for %s, streak %d\n", res.HabitID, state, res.Day, res.Streak)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(toggleCmd)
}
