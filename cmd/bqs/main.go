// Command bqs runs a bind-queue router.
package main

import (
	"github.com/tebeka/atexit"

	"github.com/sarchlab/bqs/cmd/bqs/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}
