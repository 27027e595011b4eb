package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List habits",
	Long:  `The "list" command lists your habits with today's state and streaks.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		habits, err := client.ListHabits(cmd.Context())
		if err != nil {
			return err
		}
		if len(habits) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no habits yet")
			return nil
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tTODAY\tSTREAK\tLAST DONE")
		for _, h := range habits {
			today := " "
			if h.DoneToday {
				today = "x"
			}
			last := h.LastDone
			if last == "" {
				last = "-"
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\n", h.ID, h.Name, h.Category, today, h.CurrentStreak, last)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
