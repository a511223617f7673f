package main

import (
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// .env is optional; real environment variables take precedence.
	_ = godotenv.Load()

	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
