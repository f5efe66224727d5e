// overstory is the CLI for slinging and supervising fleets of AI coding
// agents in terminal sessions.
package main

import (
	"os"

	"github.com/overstory-run/overstory/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
