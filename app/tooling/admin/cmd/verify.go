package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify every block link, proof of work, and state root in the chain",
	Run:   verifyRun,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

func verifyRun(cmd *cobra.Command, args []string) {
	st, err := openState()
	if err != nil {
		log.Fatal(err)
	}
	defer st.Shutdown()

	blocks, err := st.ValidateChain()
	if err != nil {
		log.Fatalf("chain invalid at block %d: %s", blocks, err)
	}

	fmt.Printf("chain valid: %d blocks verified\n", blocks)
}
