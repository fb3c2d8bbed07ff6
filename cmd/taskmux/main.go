// taskmux is the tmux development environment manager.
package main

import (
	"os"

	"github.com/nc9/taskmux/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
