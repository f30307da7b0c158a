package main

import (
	"log"

	"github.com/relabs-tech/signalboat/internal/app"
	"github.com/relabs-tech/signalboat/internal/config"
)

func main() {
	log.Println("starting signalboat console (MQTT subscriber)")

	// Load configuration
	if err := config.InitGlobal("signalboat_config.txt"); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunConsoleMQTT(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
