package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/BTreeMap/VisitDesk/internal/flow"
	"github.com/BTreeMap/VisitDesk/internal/store"
)

const ownerFlag = "owner"

func newTodayCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "today",
		Short: "Print today's patients for an operator",
		RunE: func(cmd *cobra.Command, _ []string) error {
			owner, err := cmd.Flags().GetInt64(ownerFlag)
			if err != nil {
				return err
			}
			return a.withStore(cmd.Context(), func(st store.Store) error {
				rows, err := st.GetTodayPatients(cmd.Context(), owner)
				if err != nil {
					return errors.Wrap(err, "load today's patients")
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), flow.FormatToday(rows))
				return err
			})
		},
	}
	addOwnerFlag(cmd)
	return cmd
}

func newWeekCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "week",
		Short: "Print the last seven days of visits per weekday for an operator",
		RunE: func(cmd *cobra.Command, _ []string) error {
			owner, err := cmd.Flags().GetInt64(ownerFlag)
			if err != nil {
				return err
			}
			return a.withStore(cmd.Context(), func(st store.Store) error {
				stats, err := st.GetWeeklyStats(cmd.Context(), owner)
				if err != nil {
					return errors.Wrap(err, "load weekly stats")
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), flow.FormatWeek(stats))
				return err
			})
		},
	}
	addOwnerFlag(cmd)
	return cmd
}

func addOwnerFlag(cmd *cobra.Command) {
	cmd.Flags().Int64(ownerFlag, 0, "operator ID, the sender's phone number digits")
	_ = cmd.MarkFlagRequired(ownerFlag)
}

func (a *app) withStore(ctx context.Context, fn func(store.Store) error) error {
	st, err := store.Open(ctx, a.cfg.DatabaseDSN, store.WithLogger(a.logger))
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(st)
}
