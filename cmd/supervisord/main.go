// Command supervisord runs the compute-job supervisor: the admission
// scheduler, connection pool, and maintainer workers described in
// SPEC_FULL.md. The HTTP boundary, user authentication, and the notebook
// environment it serves are external collaborators this binary does not
// implement (spec §1).
package main

import (
	"fmt"
	"os"

	"github.com/yianzhang14/cybergis-compute-core-refactor/cmd/supervisord/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
