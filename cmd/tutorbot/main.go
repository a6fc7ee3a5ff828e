package main

import (
	"os"

	"github.com/Freeeeeet/tutor_bot/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
