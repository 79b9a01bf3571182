// Command botwatch monitors and controls a remote options-trading bot.
package main

import (
	"context"
	"fmt"
	"os"

	"botwatch/internal/cli"
)

func main() {
	if err := cli.Execute(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
