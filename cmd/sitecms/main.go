package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/sitecms/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "sitecms: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
