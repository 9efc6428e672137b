// Package main is the entry point for hotdog-etl.
package main

import (
	"fmt"
	"os"

	"github.com/hotdog2030/hotdog-etl/internal/cli"
	"github.com/hotdog2030/hotdog-etl/internal/etlerr"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error [%s]: %v\n", etlerr.KindOf(err), err)
		os.Exit(etlerr.ExitCode(err))
	}
}
