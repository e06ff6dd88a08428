package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/roach88/moments/internal/cli"
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	err := cli.NewRootCommand().Execute()
	if err != nil {
		// Formatted failures are already on stdout; only wrapped causes and
		// cobra usage errors still need reporting.
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) || exitErr.Err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
	}
	os.Exit(cli.GetExitCode(err))
}
