// Command routeops runs the routing workbench headless: solve a CSV of stops
// against the optimization service, probe the service, generate sample stops
// or validate a CSV without solving.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
)

// errCancelled makes the process exit with the conventional interrupt status
var errCancelled = errors.New("cancelled")

const usage = `Usage: routeops <command> [flags]

Commands:
  solve     solve the stops in a CSV file
  health    check that the optimization service is reachable
  sample    print generated sample stops as CSV
  validate  check a CSV file without solving

Run "routeops <command> -h" for command flags.
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	// Logs go to stderr so stdout stays machine readable
	log.SetOutput(stderr)
	if os.Getenv("ROUTEOPS_VERBOSE") == "" {
		log.SetOutput(io.Discard)
	}

	var err error
	switch args[0] {
	case "solve":
		err = runSolve(args[1:], stdout, stderr)
	case "health":
		err = runHealth(args[1:], stdout)
	case "sample":
		err = runSample(args[1:], stdout)
	case "validate":
		err = runValidate(args[1:], stdout)
	case "-h", "--help", "help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}

	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, errCancelled):
		fmt.Fprintln(stderr, "Request cancelled")
		return 130
	default:
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
}
