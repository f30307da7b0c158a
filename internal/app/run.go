// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/relabs-tech/signalboat/internal/broker"
	"github.com/relabs-tech/signalboat/internal/config"
	"github.com/relabs-tech/signalboat/internal/course"
	"github.com/relabs-tech/signalboat/internal/geo"
	"github.com/relabs-tech/signalboat/internal/gps"
	"github.com/relabs-tech/signalboat/internal/protocol"
	"github.com/relabs-tech/signalboat/internal/store"
)

// RunSignalBoat runs the race committee device.
func RunSignalBoat() error {
	return runParticipant(protocol.RoleAdmin)
}

// RunObserver runs a device that follows the signal boat's race.
func RunObserver() error {
	return runParticipant(protocol.RoleObserver)
}

func runParticipant(role protocol.Role) error {
	cfg := config.Get()
	if cfg == nil {
		return fmt.Errorf("config not initialized")
	}
	if err := checkRole(cfg, role); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var repo store.Repository
	if role == protocol.RoleAdmin {
		r, err := store.Open(cfg.SettingsBackend, cfg.SettingsPath, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("open settings store: %w", err)
		}
		defer r.Close()
		repo = r
	}

	var pcfg ParticipantConfig
	if role == protocol.RoleAdmin {
		c, err := signalBoatConfig(ctx, cfg, repo)
		if err != nil {
			return err
		}
		pcfg = c
	} else {
		pcfg = participantConfig(cfg, role)
	}
	bus := newBus(cfg, pcfg.ID)
	defer bus.Close()

	p := NewParticipant(pcfg, course.Builtin(), bus, newSource(cfg), repo)
	if role == protocol.RoleAdmin {
		log.Printf("race code: %s", p.RaceID())
	}
	bus.Connect()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := serveWeb(ctx, p); err != nil {
			log.Printf("web server error: %v", err)
		}
	}()

	err := p.Run(ctx)
	stop()
	wg.Wait()
	return err
}

// checkRole makes the config's ROLE agree with the binary started, so a
// device configured as an observer never comes up as the signal boat.
func checkRole(cfg *config.Config, role protocol.Role) error {
	if cfg.Role != string(role) {
		return fmt.Errorf("ROLE=%s in config, but this binary runs as %s; set ROLE=%s", cfg.Role, role, role)
	}
	if role == protocol.RoleObserver && cfg.RaceID == "" {
		return fmt.Errorf("RACE_ID is required for an observer")
	}
	return nil
}

// signalBoatConfig reuses the room code saved by the last run when
// RACE_ID is unset, so a restart keeps the race and its saved course. A
// first run saves a fresh code.
func signalBoatConfig(ctx context.Context, cfg *config.Config, repo store.Repository) (ParticipantConfig, error) {
	if cfg.RaceID != "" {
		return participantConfig(cfg, protocol.RoleAdmin), nil
	}
	raceID, err := repo.LoadRaceID(ctx)
	switch {
	case err == nil:
		log.Printf("sync: resuming race %s", raceID)
	case errors.Is(err, store.ErrNotFound):
		raceID = protocol.NewRoomCode()
		if err := repo.SaveRaceID(ctx, raceID); err != nil {
			return ParticipantConfig{}, fmt.Errorf("save race code: %w", err)
		}
	default:
		return ParticipantConfig{}, fmt.Errorf("load race code: %w", err)
	}
	return raceParticipantConfig(cfg, protocol.RoleAdmin, raceID), nil
}

// newBus builds the broker manager. The client id falls back to the
// participant id so two devices never collide.
func newBus(cfg *config.Config, id string) *broker.Manager {
	clientID := cfg.MQTTClientID
	if clientID == "" {
		clientID = "signalboat-" + id
	}
	return broker.New(broker.Options{
		Broker:            cfg.MQTTBroker,
		ClientID:          clientID,
		Username:          cfg.MQTTUsername,
		Password:          cfg.MQTTPassword,
		ReconnectInterval: cfg.ReconnectInterval(),
		QoS:               1,
	})
}

// newSource picks the location source named by GPS_SOURCE.
func newSource(cfg *config.Config) gps.Source {
	switch cfg.GPSSource {
	case "gpsd":
		log.Printf("gps: using gpsd at %s", cfg.GPSDAddr)
		return gps.NewGPSDSource(cfg.GPSDAddr)
	case "mock":
		log.Printf("gps: using mock source around %.5f,%.5f", cfg.GPSMockLat, cfg.GPSMockLng)
		return gps.NewMockSource(geo.Point{Lat: cfg.GPSMockLat, Lng: cfg.GPSMockLng})
	default:
		log.Printf("gps: using NMEA on %s @ %d baud", cfg.GPSSerialPort, cfg.GPSBaudRate)
		return gps.NewNMEASource(cfg.GPSSerialPort, uint(cfg.GPSBaudRate))
	}
}
