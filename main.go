package main

import (
	"log"

	"booking-system/cmd"
)

func main() {
	if err := cmd.Start(); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
