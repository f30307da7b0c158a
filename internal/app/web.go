// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/relabs-tech/signalboat/internal/config"
	"github.com/relabs-tech/signalboat/internal/course"
	"github.com/relabs-tech/signalboat/internal/health"
	"github.com/relabs-tech/signalboat/internal/protocol"
	"github.com/relabs-tech/signalboat/internal/roster"
)

// View is what the web surface reads and the one mutation it may make.
// *Participant and *Spectator satisfy it.
type View interface {
	RaceID() string
	Role() protocol.Role
	Registry() *course.Registry
	Roster() []roster.Record
	Course() (course.Spec, bool)
	Rendered() course.Rendered
	Health() health.Status
	AdminConflict() bool
	SetCourse(ctx context.Context, topology string, params map[string]any) (course.Spec, error)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // boats on the same LAN
	},
}

// State is the full snapshot pushed over /ws and served on /api/state.
type State struct {
	RaceID        string          `json:"raceId"`
	Role          protocol.Role   `json:"role"`
	Health        health.Status   `json:"health"`
	AdminConflict bool            `json:"adminConflict"`
	Roster        []roster.Record `json:"roster"`
	Course        *course.Spec    `json:"course,omitempty"`
	Rendered      course.Rendered `json:"rendered"`
	Time          time.Time       `json:"time"`
}

func snapshot(v View) State {
	st := State{
		RaceID:        v.RaceID(),
		Role:          v.Role(),
		Health:        v.Health(),
		AdminConflict: v.AdminConflict(),
		Roster:        v.Roster(),
		Rendered:      v.Rendered(),
		Time:          time.Now(),
	}
	if spec, ok := v.Course(); ok {
		st.Course = &spec
	}
	return st
}

type topologyInfo struct {
	ID       string         `json:"id"`
	Schema   course.Schema  `json:"schema"`
	Defaults map[string]any `json:"defaults"`
}

type setCourseRequest struct {
	Type   string         `json:"type"`
	Params map[string]any `json:"params"`
}

// NewRouter builds the HTTP API over v.
func NewRouter(v View) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, snapshot(v))
		})
		r.Get("/roster", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, v.Roster())
		})
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, v.Health())
		})
		r.Get("/course", func(w http.ResponseWriter, _ *http.Request) {
			spec, ok := v.Course()
			if !ok {
				http.Error(w, "no course yet", http.StatusNotFound)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"course": spec, "rendered": v.Rendered()})
		})
		r.Get("/course.geojson", func(w http.ResponseWriter, _ *http.Request) {
			rendered := v.Rendered()
			if rendered.Empty() {
				http.Error(w, "no course yet", http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Type", "application/geo+json")
			if err := json.NewEncoder(w).Encode(course.GeoJSON(rendered)); err != nil {
				log.Printf("web: geojson encode error: %v", err)
			}
		})
		r.Get("/course/schema", func(w http.ResponseWriter, _ *http.Request) {
			reg := v.Registry()
			list := make([]topologyInfo, 0, len(reg.IDs()))
			for _, id := range reg.IDs() {
				t, _ := reg.Get(id)
				list = append(list, topologyInfo{ID: id, Schema: t.Schema(), Defaults: course.Encode(t.Defaults())})
			}
			writeJSON(w, http.StatusOK, list)
		})
		r.Post("/course", func(w http.ResponseWriter, req *http.Request) {
			var body setCourseRequest
			if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, 64<<10)).Decode(&body); err != nil {
				http.Error(w, "invalid JSON body", http.StatusBadRequest)
				return
			}
			spec, err := v.SetCourse(req.Context(), body.Type, body.Params)
			switch {
			case errors.Is(err, ErrNotAdmin), errors.Is(err, ErrReadOnly):
				http.Error(w, err.Error(), http.StatusForbidden)
			case errors.Is(err, course.ErrUnknownTopology), errors.Is(err, course.ErrInvalidParams):
				http.Error(w, err.Error(), http.StatusBadRequest)
			case err != nil:
				log.Printf("web: set course: %v", err)
				http.Error(w, "could not save course", http.StatusInternalServerError)
			default:
				writeJSON(w, http.StatusOK, spec)
			}
		})
	})

	r.Get("/ws", func(w http.ResponseWriter, req *http.Request) {
		serveState(w, req, v)
	})

	// Static files from ./web as the root
	r.Handle("/*", http.FileServer(http.Dir("web")))
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("web: json encode error: %v", err)
	}
}

// serveState pushes a snapshot every second until the client goes away.
func serveState(w http.ResponseWriter, r *http.Request, v View) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("web: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("web: websocket error: %v", err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(snapshot(v)); err != nil {
			return
		}
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

// serveWeb listens on the configured port until ctx is done.
func serveWeb(ctx context.Context, v View) error {
	cfg := config.Get()
	if cfg.WebServerPort <= 0 {
		<-ctx.Done()
		return nil
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WebServerPort),
		Handler:           NewRouter(v),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("web server listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
