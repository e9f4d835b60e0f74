package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print chain length, head, and market totals",
	Run:   infoRun,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func infoRun(cmd *cobra.Command, args []string) {
	st, err := openState()
	if err != nil {
		log.Fatal(err)
	}
	defer st.Shutdown()

	length, err := st.ChainLength()
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("chain id:    %d\n", st.Genesis().ChainID)
	fmt.Printf("chain length: %d\n", length)

	if latest, exists := st.LatestBlock(); exists {
		fmt.Printf("head block:  %d\n", latest.Header.Number)
		fmt.Printf("head hash:   %s\n", latest.Hash)
	}

	stats := st.QueryMarketStats()
	fmt.Printf("prosumers:   %d\n", stats.RegisteredUsers)
	fmt.Printf("trades:      %d\n", stats.TotalTrades)
	fmt.Printf("energy kwh:  %.4f\n", stats.TotalEnergy)
	fmt.Printf("value:       %.4f\n", stats.TotalValue)
	fmt.Printf("grid fees:   %.4f\n", stats.TotalGridFees)
}
