package main

import (
	"os"

	"github.com/wonny/spxlab/cmd/spx/commands"
)

// main is the entry point for the spxlab CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/spx [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
