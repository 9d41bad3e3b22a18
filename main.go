package main

import (
	"log"

	"ruleloop/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		log.Fatalf("ruleloop: %v", err)
	}
}
