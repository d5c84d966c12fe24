// Package main is the entry point for the oraflow CLI.
// It runs Oracle query nodes against a flow of JSON message envelopes.
package main

import (
	"oraflow/cli/cmd"
)

// main is the entry point for the oraflow CLI application.
func main() {
	cmd.Execute()
}
