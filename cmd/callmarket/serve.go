package main

import (
	"context"

	"callmarket/internal/clearinghouse"
	"callmarket/internal/common"
	"callmarket/internal/engine"
	"callmarket/internal/net"
	"callmarket/internal/store"

	"github.com/spf13/cobra"
)

const (
	addressFlagName      = "address"
	portFlagName         = "port"
	participantsFlagName = "participants"
	maxSessionsFlagName  = "max-sessions"
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String(addressFlagName, "0.0.0.0", "Address to listen on")
	serveCmd.Flags().Int(portFlagName, 9001, "Port to listen on")
	serveCmd.Flags().String(dbFlagName, "callmarket.db", "Path to the round store")
	serveCmd.Flags().String(participantsFlagName, "", "Path to the groups and their endowments (JSON)")
	serveCmd.Flags().Int(maxSessionsFlagName, 1024, "Maximum number of connected clients")
	_ = serveCmd.MarkFlagRequired(participantsFlagName)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Collects orders over TCP and clears a group's round when it is closed",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		m, flush, err := newMetrics(cmd)
		if err != nil {
			return err
		}
		defer flush()

		var input sessionInput
		path, _ := cmd.Flags().GetString(participantsFlagName)
		if err := readJSON(path, &input); err != nil {
			return err
		}

		dbPath, _ := cmd.Flags().GetString(dbFlagName)
		st, err := store.Open(dbPath)
		if err != nil {
			return err
		}
		defer st.Close()

		s := &session{
			cfg:   cfg,
			store: st,
			house: clearinghouse.New(engine.New(engine.WithMetrics(m)), cfg.Workers),
		}

		groups := make(map[string]groupInput, len(input.Groups))
		members := make(map[string][]string, len(input.Groups))
		for _, g := range input.Groups {
			groups[g.Group] = g
			for _, p := range g.Participants {
				members[g.Group] = append(members[g.Group], p.Participant)
			}
		}

		desk := clearinghouse.NewDesk(members, func(ctx context.Context, group string, orders []*common.Order) (*engine.Result, error) {
			return s.clear(ctx, groups[group], orders)
		})

		address, _ := cmd.Flags().GetString(addressFlagName)
		port, _ := cmd.Flags().GetInt(portFlagName)
		maxSessions, _ := cmd.Flags().GetInt(maxSessionsFlagName)
		return net.New(address, port, desk, net.WithMaxSessions(maxSessions)).Run(cmd.Context())
	},
}
