package main

import (
	"fmt"
	"strconv"
	"strings"

	"callmarket/internal/common"
	"callmarket/internal/net"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const (
	serverFlagName      = "server"
	groupFlagName       = "group"
	participantFlagName = "participant"
	sideFlagName        = "side"
	priceFlagName       = "price"
	qtyFlagName         = "qty"
)

func init() {
	rootCmd.AddCommand(submitCmd, closeCmd)

	for _, cmd := range []*cobra.Command{submitCmd, closeCmd} {
		cmd.Flags().String(serverFlagName, "127.0.0.1:9001", "Address of the call market server")
		cmd.Flags().String(groupFlagName, "", "Group whose open round is addressed")
		_ = cmd.MarkFlagRequired(groupFlagName)
	}

	submitCmd.Flags().String(participantFlagName, "", "Participant placing the orders")
	submitCmd.Flags().String(sideFlagName, "bid", "Order side: bid or offer")
	submitCmd.Flags().Int64(priceFlagName, 0, "Limit price")
	submitCmd.Flags().String(qtyFlagName, "1", "Quantity or comma-separated list (e.g. 10,20,50)")
	_ = submitCmd.MarkFlagRequired(participantFlagName)
	_ = submitCmd.MarkFlagRequired(priceFlagName)
}

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submits orders to the open round of a group",
	RunE: func(cmd *cobra.Command, args []string) error {
		group, _ := cmd.Flags().GetString(groupFlagName)
		participant, _ := cmd.Flags().GetString(participantFlagName)
		price, _ := cmd.Flags().GetInt64(priceFlagName)
		sideStr, _ := cmd.Flags().GetString(sideFlagName)
		qtyStr, _ := cmd.Flags().GetString(qtyFlagName)

		var side common.Side
		if err := side.UnmarshalText([]byte(strings.ToLower(sideStr))); err != nil {
			return err
		}
		quantities, err := parseQuantities(qtyStr)
		if err != nil {
			return err
		}

		client, err := dialServer(cmd)
		if err != nil {
			return err
		}
		defer client.Close()

		for _, q := range quantities {
			report, err := client.Submit(group, participant, side, price, q)
			if err != nil {
				return err
			}
			fmt.Printf("-> %s %d @ %d accepted: %s\n", side, q, price, report.ID)
		}
		return nil
	},
}

var closeCmd = &cobra.Command{
	Use:   "close",
	Short: "Closes the open round of a group and prints its outcome",
	RunE: func(cmd *cobra.Command, args []string) error {
		group, _ := cmd.Flags().GetString(groupFlagName)

		client, err := dialServer(cmd)
		if err != nil {
			return err
		}
		defer client.Close()

		report, err := client.CloseRound(group)
		if err != nil {
			return err
		}
		fmt.Printf("group %s round %d: price %d, volume %d (%s after %d passes)\n",
			report.Group, report.Round, report.Price, report.Volume, report.ID, report.Passes)
		return nil
	},
}

func dialServer(cmd *cobra.Command) (*net.Client, error) {
	if _, err := loadConfig(cmd); err != nil {
		return nil, err
	}
	address, _ := cmd.Flags().GetString(serverFlagName)
	client, err := net.Dial(cmd.Context(), address)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("server", address).Msg("connected")
	return client, nil
}

// parseQuantities splits a comma-separated list of quantities.
func parseQuantities(input string) ([]int64, error) {
	parts := strings.Split(input, ",")
	result := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		val, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid quantity %q", common.ErrMalformedOrder, p)
		}
		result = append(result, val)
	}
	return result, nil
}
