package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/woxQAQ/timetable-bridge/internal/calendar"
)

func newUTCCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "utc YEAR WEEK WEEKDAY",
		Short: "Resolve an ISO week and weekday to a UTC timestamp",
		Long: `Resolve a (year, week, weekday) triple the way getUTC does for guests.

WEEKDAY counts from Monday = 2 to Sunday = 8. Week 1 is the week containing
January 4. Weeks past the end of the year roll over into the next one.`,
		Example: "  timetable utc 2024 37 4",
		Args:    cobra.ExactArgs(3),
		RunE:    runUTC,
	}
}

func runUTC(cmd *cobra.Command, args []string) error {
	names := []string{"year", "week", "weekday"}
	values := make([]int, len(args))
	for i, arg := range args {
		v, err := strconv.Atoi(arg)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", names[i], arg, err)
		}
		values[i] = v
	}

	seconds := calendar.ResolveUTC(values[0], values[1], values[2])
	fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", seconds, time.Unix(seconds, 0).UTC().Format(time.RFC3339))
	return nil
}
