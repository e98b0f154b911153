// Package cli implements the pdfsigner command-line front end: a thin
// flag-driven layer over the sign package, with defaults drawn from the
// environment via the config package.
package cli

import (
	"fmt"
	"os"
)

// osExit is swappable so command tests can observe exit codes without
// terminating the test binary.
var osExit = os.Exit

func Usage() {
	fmt.Printf("Usage: %s <command> [options] <args>\n\n", os.Args[0])
	fmt.Println("Commands:")
	fmt.Println("  sign       Sign a PDF file")
	fmt.Println("  timestamp  Add a document timestamp to a PDF file")
	fmt.Println("")
	fmt.Printf("Use '%s <command> -h' for command-specific help\n", os.Args[0])
	osExit(1)
}

// Run dispatches os.Args to the named subcommand.
func Run() {
	if len(os.Args) < 2 {
		Usage()
		return
	}
	switch os.Args[1] {
	case "sign":
		SignCommand()
	case "timestamp":
		TimestampCommand()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		Usage()
	}
}
