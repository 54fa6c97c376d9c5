package main

import (
	"log"

	"github.com/helpdeskhq/ticket-messaging/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
