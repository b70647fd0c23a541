// trackerctl is the operator CLI for the tracker service: run jobs against
// fleet devices, chain system workflows and inspect device state.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
