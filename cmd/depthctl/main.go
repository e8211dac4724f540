package main

import (
	"fmt"
	"os"

	"github.com/tyndreus1/depth-anything-3-serverless/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
