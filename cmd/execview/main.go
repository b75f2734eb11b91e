package main

import (
	"fmt"
	"os"

	"github.com/deepnoodle-ai/wonton/cli"
)

func main() {
	app := newApp()
	if err := app.Execute(); err != nil {
		if cli.IsHelpRequested(err) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, errorStyle.Sprintf("Error: %v", err))
		os.Exit(cli.GetExitCode(err))
	}
}
