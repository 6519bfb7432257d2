package main

import (
	"os"

	"github.com/zhound420/acp-agents-skill/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
