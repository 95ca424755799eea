package main

import (
	"log"

	"github.com/thiagokokada/simplegit/cmd"
)

func main() {
	log.SetFlags(0)
	if err := cmd.Run(); err != nil {
		log.Fatalf("simplegit: %v", err)
	}
}
