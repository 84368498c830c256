package main

import (
	"context"
	"fmt"
	"os"

	"advisory.org/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "advisoryctl:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
