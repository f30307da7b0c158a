package app

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relabs-tech/signalboat/internal/config"
	"github.com/relabs-tech/signalboat/internal/course"
	"github.com/relabs-tech/signalboat/internal/protocol"
)

// RunConsoleMQTT prints the race state of RACE_ID to stdout every two
// seconds until interrupted.
func RunConsoleMQTT() error {
	cfg := config.Get()
	if cfg == nil {
		return fmt.Errorf("config not initialized")
	}
	if cfg.RaceID == "" {
		return fmt.Errorf("RACE_ID is required for the console")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := newBus(cfg, "console-"+protocol.NewParticipantID())
	defer bus.Close()

	pcfg := participantConfig(cfg, protocol.RoleObserver)
	s := NewSpectator(cfg.RaceID, course.Builtin(), bus, pcfg.RosterExpiry, pcfg.Health, pcfg.Probe)
	bus.Connect()
	log.Printf("console: following race %s on %s", cfg.RaceID, cfg.MQTTBroker)

	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				printState(os.Stdout, snapshot(s))
			}
		}
	}()

	err := s.Run(ctx)
	log.Println("console: shutting down")
	return err
}

func printState(w io.Writer, st State) {
	fmt.Fprintf(w, "[HEALTH] %-17s %s\n", st.Health.Code, st.Health.Message)
	if st.AdminConflict {
		fmt.Fprintln(w, "[WARN]   two signal boats are publishing on this race")
	}
	if st.Course != nil {
		fmt.Fprintf(w, "[COURSE] %s  marks=%d legs=%d\n", st.Course.TopologyID, len(st.Rendered.Marks), countLegs(st.Rendered))
	} else {
		fmt.Fprintln(w, "[COURSE] none yet")
	}
	for _, rec := range st.Roster {
		heading := "  ---"
		if rec.Heading != nil {
			heading = fmt.Sprintf("%5.1f", *rec.Heading)
		}
		fmt.Fprintf(w, "[%-8s] %-36s LAT=%10.5f LNG=%10.5f HDG=%s AGE=%s\n",
			rec.Role, rec.ID, rec.Position.Lat, rec.Position.Lng, heading,
			time.Since(rec.LastSeenAt).Truncate(time.Second))
	}
}

func countLegs(r course.Rendered) int {
	n := 0
	for _, l := range r.Lines {
		if l.Kind == course.LineLeg {
			n++
		}
	}
	return n
}
