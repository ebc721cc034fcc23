package main

import (
	"log"

	"benchvault/cmd/bv/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		log.Fatal(err)
	}
}
