package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats [habit-id]",
	Short: "Show overall stats, or the summary of one habit",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		if len(args) == 1 {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid habit id %q", args[0])
			}
			s, err := client.GetHabitSummary(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s\n", s.Name)
			fmt.Fprintf(out, "  current streak: %d\n", s.CurrentStreak)
			fmt.Fprintf(out, "  longest streak: %d\n", s.LongestStreak)
			fmt.Fprintf(out, "  days done:      %d (this month %d, best month %d)\n", s.TotalDaysDone, s.ThisMonth, s.BestMonth)
			if s.FirstLogged != "" {
				fmt.Fprintf(out, "  first / last:   %s / %s\n", s.FirstLogged, s.LastDone)
			}
			return nil
		}

		st, err := client.GetStats(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "habits:          %d\n", st.Total)
		fmt.Fprintf(out, "completed today: %d\n", st.CompletedToday)
		fmt.Fprintf(out, "best streak:     %d\n", st.BestStreak)
		fmt.Fprintln(out, "last 7 days:")
		for _, d := range st.Week {
			fmt.Fprintf(out, "  %s %s %d\n", d.Day, strings.Repeat("#", d.Count), d.Count)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
