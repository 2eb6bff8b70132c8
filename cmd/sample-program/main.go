// Package main runs the sample program and writes its output to stdout.
//
// It takes no arguments. The only failure is a write error on stdout,
// which is reported on stderr with exit code 1.
package main

import (
	"fmt"
	"os"

	"github.com/shinji-kodama/mutafix/internal/sample"
)

func main() {
	if err := sample.Run(os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
