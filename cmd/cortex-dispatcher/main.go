// Command cortex-dispatcher is the dispatcher binary's entrypoint.
package main

import (
	"fmt"
	"os"

	"github.com/1Optic/cortex-dispatcher/cmd"
)

func main() {
	if err := cmd.RootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
