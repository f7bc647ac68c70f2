// Command sign creates code-signing certificates, signs and verifies
// Windows executables, inspects signing artifacts and packages releases.
package main

import (
	"os"
)

// Version will be set at build time via -ldflags
var Version = "v0.0.0-dev"

func main() {
	os.Exit(run(os.Args[1:], newApp(os.Stdout, os.Stderr)))
}
