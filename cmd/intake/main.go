// Command intake screens and assesses symptom descriptions from the terminal
// using the same pipeline as the HTTP server.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
