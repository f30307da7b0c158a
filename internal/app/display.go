package app

import (
	"context"
	"fmt"
	"image"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/signalboat/internal/config"
	"github.com/relabs-tech/signalboat/internal/course"
	"github.com/relabs-tech/signalboat/internal/health"
	"github.com/relabs-tech/signalboat/internal/protocol"
)

// RunDisplay drives a 128x64 SSD1306 with the race health, the signal
// boat fix and the course in use.
func RunDisplay() error {
	cfg := config.Get()
	if cfg == nil {
		return fmt.Errorf("config not initialized")
	}
	if cfg.RaceID == "" {
		return fmt.Errorf("RACE_ID is required for the display")
	}

	// Initialize periph
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	// Open I2C bus
	bus, err := i2creg.Open("")
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer bus.Close()

	// the stock driver always talks to 0x3C
	if cfg.DisplayI2CAddr != 0x3C {
		return fmt.Errorf("display address 0x%02X not supported, wire the panel at 0x3C", cfg.DisplayI2CAddr)
	}
	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	log.Printf("display: initialized at 0x%02X", cfg.DisplayI2CAddr)

	if err := drawLines(dev, []string{"", " Signal Boat", " race " + cfg.RaceID, " connecting"}); err != nil {
		log.Printf("display: error showing splash: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mqttBus := newBus(cfg, "display-"+protocol.NewParticipantID())
	defer mqttBus.Close()

	pcfg := participantConfig(cfg, protocol.RoleObserver)
	s := NewSpectator(cfg.RaceID, course.Builtin(), mqttBus, pcfg.RosterExpiry, pcfg.Health, pcfg.Probe)
	mqttBus.Connect()

	go func() {
		if err := s.Run(ctx); err != nil {
			log.Printf("display: listener error: %v", err)
			stop()
		}
	}()

	interval := time.Duration(cfg.DisplayUpdateInterval) * time.Millisecond
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Println("display: starting update loop")
	for {
		select {
		case <-ctx.Done():
			if err := dev.Halt(); err != nil {
				log.Printf("display: halt: %v", err)
			}
			return nil
		case <-ticker.C:
			if err := drawLines(dev, displayLines(snapshot(s))); err != nil {
				log.Printf("display: error updating display: %v", err)
			}
		}
	}
}

// displayLines lays the state out as four rows of at most 18 characters.
func displayLines(st State) []string {
	status := "OK"
	switch st.Health.Severity {
	case health.SeverityWarn:
		status = "WARN"
	case health.SeverityAlert:
		status = "ALERT"
	}
	lines := []string{fmt.Sprintf("%s %s", st.RaceID, status), string(st.Health.Code)}

	sb := "SB: waiting..."
	for _, rec := range st.Roster {
		if rec.Role == protocol.RoleAdmin {
			sb = fmt.Sprintf("%.4f %.4f", rec.Position.Lat, rec.Position.Lng)
			break
		}
	}
	lines = append(lines, sb)

	if st.Course == nil {
		lines = append(lines, "no course")
	} else {
		lines = append(lines, fmt.Sprintf("%s %d legs", shortTopology(st.Course.TopologyID), countLegs(st.Rendered)))
	}
	if st.AdminConflict {
		lines[1] = "2 SIGNAL BOATS!"
	}
	for i, l := range lines {
		if len(l) > 18 {
			lines[i] = l[:18]
		}
	}
	return lines
}

func shortTopology(id string) string {
	switch id {
	case course.TopologyWindwardLeeward:
		return "W/L"
	case course.TopologyWindwardLeewardOffset:
		return "W/L off"
	case course.TopologySimpleOffset:
		return "simple off"
	}
	return id
}

func drawLines(dev *ssd1306.Dev, lines []string) error {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, 128, 64))

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	for i, l := range lines {
		if i > 3 {
			break
		}
		drawer.Dot = fixed.P(0, 13*(i+1)+2)
		drawer.DrawBytes([]byte(l))
	}

	return dev.Draw(dev.Bounds(), img, image.Point{})
}
