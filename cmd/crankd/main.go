package main

import (
	"os"

	_ "github.com/unixorn/crankd/internal/handlers"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
