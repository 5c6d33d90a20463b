package cmd

import (
	"fmt"
	"os"
)

// fatalf prints an error to stderr and exits, the same terse
// diagnostic path runsc/cmd/util.Fatalf uses.
func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "arenasim: "+format+"\n", args...)
	os.Exit(1)
}
