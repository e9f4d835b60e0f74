// This program performs administrative tasks for the energy ledger: key
// management and offline chain inspection against a storage backend.
package main

import "github.com/gridmesh/energyledger/app/tooling/admin/cmd"

func main() {
	cmd.Execute()
}
