// Command calnotify tracks fired calendar alerts and their notifications.
package main

import (
	"os"

	"github.com/roach88/calnotify/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:], os.Stdout, os.Stderr))
}
