// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"log"

	"github.com/relabs-tech/signalboat/internal/app"
	"github.com/relabs-tech/signalboat/internal/config"
)

func main() {
	log.Println("starting signalboat (race committee)")

	// Load configuration
	if err := config.InitGlobal("signalboat_config.txt"); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunSignalBoat(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
