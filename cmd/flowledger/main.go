package main

import (
	"fmt"
	"os"

	"github.com/roach88/flowledger/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "flowledger:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
