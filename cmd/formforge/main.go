// Command formforge saves form definitions and keeps their results tables in
// sync.
package main

import (
	"context"
	"os"

	"github.com/roach88/formforge/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
