// Command ck is a local-first hybrid code search engine.
package main

import (
	"fmt"
	"os"

	"github.com/lwyBZss8924d/ckindex/cmd/ck/cmd"
	"github.com/lwyBZss8924d/ckindex/internal/ckerr"
)

func main() {
	err := cmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, ckerr.FormatForCLI(err))
	}
	os.Exit(ckerr.ExitCode(err))
}
