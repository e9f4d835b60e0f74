package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/gridmesh/energyledger/foundation/ledger/database"
)

var prosumerCmd = &cobra.Command{
	Use:   "prosumer [account]",
	Short: "Print a prosumer account with its market activity",
	Args:  cobra.ExactArgs(1),
	Run:   prosumerRun,
}

func init() {
	rootCmd.AddCommand(prosumerCmd)
}

func prosumerRun(cmd *cobra.Command, args []string) {
	accountID, err := database.ToAccountID(args[0])
	if err != nil {
		log.Fatal(err)
	}

	st, err := openState()
	if err != nil {
		log.Fatal(err)
	}
	defer st.Shutdown()

	stats, err := st.QueryProsumerStats(accountID)
	if err != nil {
		log.Fatal(err)
	}

	p := stats.Prosumer
	fmt.Printf("account:          %s\n", p.AccountID)
	fmt.Printf("name:             %s\n", p.Name)
	fmt.Printf("grid tokens:      %.4f\n", p.GridTokens)
	fmt.Printf("watt tokens:      %.4f\n", p.WattTokens)
	fmt.Printf("energy generated: %.4f\n", p.EnergyGenerated)
	fmt.Printf("energy consumed:  %.4f\n", p.EnergyConsumed)
	fmt.Printf("net energy:       %.4f\n", p.NetEnergy())
	fmt.Printf("energy bought:    %.4f in %d trades\n", stats.EnergyBought, stats.TradesAsBuy)
	fmt.Printf("energy sold:      %.4f in %d trades\n", stats.EnergySold, stats.TradesAsSell)
	fmt.Printf("open orders:      %d\n", stats.OpenOrders)
}
