// Package main is the entry point for genclient, the command-line client of
// the document generation API.
package main

import (
	"os"

	"github.com/F-kaue/WorkflowApp-sub000/cmd/genclient/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
