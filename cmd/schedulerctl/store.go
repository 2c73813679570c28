package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/wolfman30/callback-scheduler/internal/app/bootstrap"
	"github.com/wolfman30/callback-scheduler/internal/bookings"
	"github.com/wolfman30/callback-scheduler/internal/sessions"
	"github.com/wolfman30/callback-scheduler/internal/temporal"
)

func newConflictsCmd(e *env) *cobra.Command {
	var date, clock, exclude string
	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "Check a slot against the booking table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := temporal.ParseDate(date)
			if err != nil {
				return err
			}
			c, err := temporal.ParseClock(clock)
			if err != nil {
				return err
			}
			storage, err := bootstrap.BuildStorage(cmd.Context(), e.cfg, e.logger)
			if err != nil {
				return err
			}
			defer storage.Close()

			conflict, err := bookings.NewDetector(storage.Bookings, e.cfg.ConflictWindow, e.logger).
				Check(cmd.Context(), d, c, exclude)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), conflict)
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Date as DD/MM/YYYY.")
	cmd.Flags().StringVar(&clock, "time", "", "Time as HH:MM.")
	cmd.Flags().StringVar(&exclude, "exclude", "", "Identifier whose own booking is ignored.")
	_ = cmd.MarkFlagRequired("date")
	_ = cmd.MarkFlagRequired("time")
	return cmd
}

func newSessionsCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect persisted sessions",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List persisted sessions without modifying them",
		RunE: func(cmd *cobra.Command, _ []string) error {
			storage, err := bootstrap.BuildStorage(cmd.Context(), e.cfg, e.logger)
			if err != nil {
				return err
			}
			defer storage.Close()

			raw, err := storage.Sessions.Load(cmd.Context())
			if err != nil {
				return err
			}
			ids := make([]string, 0, len(raw))
			for id := range raw {
				ids = append(ids, id)
			}
			sort.Strings(ids)

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "IDENTIFIER\tSTATE\tMESSAGES\tLAST ACTIVITY")
			for _, id := range ids {
				var s sessions.Session
				if err := json.Unmarshal(raw[id], &s); err != nil {
					e.logger.Warn("skipping malformed session", "identifier", id, "error", err)
					continue
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", id, s.State, s.Metadata.MessageCount, s.LastActivity.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	})
	return cmd
}

func newBookingsCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bookings",
		Short: "Inspect the booking table",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List bookings in identifier order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			storage, err := bootstrap.BuildStorage(cmd.Context(), e.cfg, e.logger)
			if err != nil {
				return err
			}
			defer storage.Close()

			all, err := storage.Bookings.All(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "IDENTIFIER\tDATE\tTIME\tSTATUS\tREFERENCE")
			for _, b := range all {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", b.Identifier, b.Date, b.Time, b.Status, b.Reference)
			}
			return tw.Flush()
		},
	})
	return cmd
}
