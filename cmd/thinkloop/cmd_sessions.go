package main

import (
	"github.com/spf13/cobra"
)

func (a *app) sessionsCmd() *cobra.Command {
	var limit int
	var of outputFlags
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List stored sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.requireStore()
			if err != nil {
				return err
			}
			defer s.Close()
			sessions, err := s.Sessions(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if ok, err := of.encode(a.out, sessions); ok {
				return err
			}
			return writeSessions(a.out, sessions)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum sessions to list (0 for all)")
	of.register(cmd)
	return cmd
}

func (a *app) showCmd() *cobra.Command {
	var of outputFlags
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a stored session with its full history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.requireStore()
			if err != nil {
				return err
			}
			defer s.Close()
			o, err := s.Session(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if ok, err := of.encode(a.out, o); ok {
				return err
			}
			writeOutcome(a.out, o)
			return nil
		},
	}
	of.register(cmd)
	return cmd
}
