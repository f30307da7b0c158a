// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package health folds connectivity, sync and GPS signals into one
// status for the operator.
package health

import (
	"fmt"
	"time"

	"github.com/relabs-tech/signalboat/internal/broker"
	"github.com/relabs-tech/signalboat/internal/gps"
)

// Code names a status, highest precedence first.
type Code string

const (
	Offline          Code = "offline"
	BrokerConnecting Code = "broker_connecting"
	BrokerError      Code = "broker_error"
	DataStale        Code = "data_stale"
	GPSError         Code = "gps_error"
	GPSAcquiring     Code = "gps_acquiring"
	GPSInaccurate    Code = "gps_inaccurate"
	RemoteLost       Code = "remote_lost"
	RemoteDelayed    Code = "remote_delayed"
	Healthy          Code = "healthy"
)

// Severity drives the indicator color.
type Severity string

const (
	SeverityOK    Severity = "ok"
	SeverityWarn  Severity = "warn"
	SeverityAlert Severity = "alert"
)

// Thresholds are the staleness limits.
type Thresholds struct {
	DataStale      time.Duration
	GPSInaccurateM float64
	RemoteWarn     time.Duration
	RemoteAlert    time.Duration
}

// DefaultThresholds: 30 s data, 100 m GPS, 35/55 s remote heartbeat.
func DefaultThresholds() Thresholds {
	return Thresholds{
		DataStale:      30 * time.Second,
		GPSInaccurateM: 100,
		RemoteWarn:     35 * time.Second,
		RemoteAlert:    55 * time.Second,
	}
}

// Snapshot is every input of Evaluate. Zero times mean "never".
type Snapshot struct {
	NetworkOnline     bool
	Broker            broker.State
	BrokerErr         error
	LastInboundAt     time.Time
	GPS               gps.Status
	RemoteHeartbeatAt time.Time // the watched peer, zero when none is watched
}

// Status is the evaluated health.
type Status struct {
	Code     Code          `json:"code"`
	Severity Severity      `json:"severity"`
	Message  string        `json:"message"`
	Since    time.Duration `json:"-"`
}

// Evaluate applies the fixed precedence to s. It is a pure function of
// its arguments.
func Evaluate(s Snapshot, now time.Time, th Thresholds) Status {
	switch {
	case !s.NetworkOnline:
		return Status{Code: Offline, Severity: SeverityAlert, Message: "network offline"}

	case s.Broker == broker.Failed:
		msg := "broker error"
		if s.BrokerErr != nil {
			msg = "broker error: " + s.BrokerErr.Error()
		}
		return Status{Code: BrokerError, Severity: SeverityAlert, Message: msg}

	case s.Broker != broker.Connected:
		return Status{Code: BrokerConnecting, Severity: SeverityWarn, Message: "connecting to broker"}

	case !s.LastInboundAt.IsZero() && now.Sub(s.LastInboundAt) > th.DataStale:
		age := now.Sub(s.LastInboundAt)
		return Status{Code: DataStale, Severity: SeverityWarn, Since: age,
			Message: fmt.Sprintf("no sync data for %s", age.Truncate(time.Second))}

	case s.GPS.Err != "":
		return Status{Code: GPSError, Severity: SeverityAlert, Message: "gps: " + s.GPS.Err}

	// readings this poor are also past the acceptance ceiling, so a fix
	// lost to them reads as inaccurate rather than acquiring
	case s.GPS.HasFix && s.GPS.AccuracyM > th.GPSInaccurateM:
		return Status{Code: GPSInaccurate, Severity: SeverityWarn,
			Message: fmt.Sprintf("gps accuracy %.0f m", s.GPS.AccuracyM)}

	case !s.GPS.OK:
		msg := "acquiring gps"
		if s.GPS.HasFix {
			msg = "gps fix lost, reacquiring"
		}
		return Status{Code: GPSAcquiring, Severity: SeverityWarn, Message: msg}
	}

	if !s.RemoteHeartbeatAt.IsZero() {
		age := now.Sub(s.RemoteHeartbeatAt)
		switch {
		case age > th.RemoteAlert:
			return Status{Code: RemoteLost, Severity: SeverityAlert, Since: age,
				Message: fmt.Sprintf("signal boat silent for %s", age.Truncate(time.Second))}
		case age > th.RemoteWarn:
			return Status{Code: RemoteDelayed, Severity: SeverityWarn, Since: age,
				Message: fmt.Sprintf("signal boat heartbeat delayed %s", age.Truncate(time.Second))}
		}
	}
	return Status{Code: Healthy, Severity: SeverityOK, Message: "ok"}
}
