package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/gridmesh/energyledger/foundation/ledger/database"
)

var bookCmd = &cobra.Command{
	Use:   "book",
	Short: "Print the open order book, best prices first",
	Run:   bookRun,
}

func init() {
	rootCmd.AddCommand(bookCmd)
}

func bookRun(cmd *cobra.Command, args []string) {
	st, err := openState()
	if err != nil {
		log.Fatal(err)
	}
	defer st.Shutdown()

	for _, side := range []database.OrderSide{database.OrderSideBuy, database.OrderSideSell} {
		fmt.Printf("%s orders\n", side)
		for _, order := range st.QueryOrderBook(side) {
			fmt.Printf("  %s  %s  %.4f kwh @ %.4f (%.4f remaining)\n", order.ID, order.Trader, order.EnergyAmount, order.PricePerKWH, order.Remaining)
		}
	}
}
