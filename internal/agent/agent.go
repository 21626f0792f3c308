// Copyright 2026 The Tempmon Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package agent runs the thermometer's event loop. All state lives on a
// single goroutine; buttons and timers are polled there, and cloud callbacks
// and status API requests are funneled in as queued commands. The telemetry
// upload switch therefore has exactly one writer, while its value is
// mirrored to the status light, the status API and the cloud twin.
package agent

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"periph.io/x/conn/v3/physic"

	"github.com/mtnrbq/tempmon/internal/cloud"
	"github.com/mtnrbq/tempmon/internal/status"
)

// Cloud is the part of cloud.Client the agent drives.
type Cloud interface {
	Connect(ctx context.Context) error
	Close()
	IsConnected() bool
	SendTelemetry(ctx context.Context, t cloud.Telemetry) cloud.Result
	SendThermometerMovedEvent(ctx context.Context) cloud.Result
	SendDeviceDetails(ctx context.Context, serialNumber string) cloud.Result
	AckUploadEnabled(ctx context.Context, enabled bool) cloud.Result
	SyncTwin(ctx context.Context) error
}

// Panel is the part of ui.Panel the agent drives.
type Panel interface {
	Poll() (uploadToggled, moved bool)
	SetLight(on bool) error
}

// Recorder receives each sensor reading, for the status API's buffer.
type Recorder interface {
	Record(status.Reading)
}

// Config holds the agent's identity and timing.
type Config struct {
	DeviceID     string
	SerialNumber string
	// TelemetryInterval is how often the sensor is read and a telemetry
	// event uploaded.
	TelemetryInterval time.Duration
	// ButtonPollInterval is how often the buttons are sampled.
	ButtonPollInterval time.Duration
	// ConnectRetryInterval is the delay between initial connect attempts.
	ConnectRetryInterval time.Duration
	// CloudOpTimeout bounds each cloud call made from the event loop. A
	// lost hub response must not stall telemetry and button polling.
	CloudOpTimeout time.Duration
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.TelemetryInterval <= 0 {
		out.TelemetryInterval = 5 * time.Second
	}
	if out.ButtonPollInterval <= 0 {
		out.ButtonPollInterval = 10 * time.Millisecond
	}
	if out.ConnectRetryInterval <= 0 {
		out.ConnectRetryInterval = 5 * time.Second
	}
	if out.CloudOpTimeout <= 0 {
		out.CloudOpTimeout = 5 * time.Second
	}
	return out
}

// Agent ties the sensor, panel and cloud together.
type Agent struct {
	cfg      Config
	sensor   physic.SenseEnv
	panel    Panel
	recorder Recorder
	log      *slog.Logger

	cloud Cloud
	cmds  chan func(ctx context.Context)

	// uploadEnabled is owned by the Run goroutine.
	uploadEnabled bool

	// snapshot mirrors loop state for concurrent readers.
	mu       sync.Mutex
	snapshot status.State
}

// New builds an agent. The cloud client is supplied to Run, since its
// callbacks must be wired through Callbacks first; the recorder, if any,
// through SetRecorder.
func New(cfg Config, sensor physic.SenseEnv, panel Panel, log *slog.Logger) *Agent {
	cfg = cfg.withDefaults()
	return &Agent{
		cfg:      cfg,
		sensor:   sensor,
		panel:    panel,
		log:      log,
		cmds:     make(chan func(ctx context.Context), 16),
		snapshot: status.State{DeviceID: cfg.DeviceID, SerialNumber: cfg.SerialNumber},
	}
}

// opCtx derives the bounded context used for a single cloud operation.
func (a *Agent) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, a.cfg.CloudOpTimeout)
}

// SetRecorder wires the reading recorder. Must be called before Run.
func (a *Agent) SetRecorder(r Recorder) {
	a.recorder = r
}

// Callbacks returns the cloud callbacks, each of which queues work onto the
// agent loop.
func (a *Agent) Callbacks() cloud.Callbacks {
	return cloud.Callbacks{
		UploadEnabledChanged: func(enabled bool) {
			a.enqueue(func(ctx context.Context) {
				a.log.Info("upload switch changed via cloud", "enabled", enabled)
				a.setUploadEnabled(ctx, enabled)
			})
		},
		DisplayAlert: func(message string) {
			a.enqueue(func(context.Context) {
				a.log.Warn("ALERT", "message", message)
				a.updateSnapshot(func(s *status.State) { s.LastAlert = message })
			})
		},
		ConnectionChanged: func(connected bool) {
			a.enqueue(func(ctx context.Context) { a.handleConnection(ctx, connected) })
		},
	}
}

// State implements status.Controls.
func (a *Agent) State() status.State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshot
}

// SetUploadEnabled implements status.Controls.
func (a *Agent) SetUploadEnabled(enabled bool) {
	a.enqueue(func(ctx context.Context) {
		a.log.Info("upload switch changed via status api", "enabled", enabled)
		a.setUploadEnabled(ctx, enabled)
	})
}

// SignalMoved implements status.Controls.
func (a *Agent) SignalMoved() {
	a.enqueue(func(ctx context.Context) { a.deviceMoved(ctx) })
}

func (a *Agent) enqueue(cmd func(ctx context.Context)) {
	select {
	case a.cmds <- cmd:
	default:
		a.log.Warn("command queue full, dropping command")
	}
}

// Run connects to the cloud and drives the loop until ctx is canceled.
func (a *Agent) Run(ctx context.Context, cl Cloud) error {
	a.cloud = cl
	defer cl.Close()

	if err := a.connect(ctx, cl); err != nil {
		return err
	}

	if err := a.panel.SetLight(a.uploadEnabled); err != nil {
		a.log.Warn("status light unavailable", "err", err)
	}

	telemetry := time.NewTicker(a.cfg.TelemetryInterval)
	defer telemetry.Stop()
	buttons := time.NewTicker(a.cfg.ButtonPollInterval)
	defer buttons.Stop()

	for {
		select {
		case <-ctx.Done():
			a.log.Info("agent stopping")
			return nil
		case <-telemetry.C:
			a.sendTelemetry(ctx)
		case <-buttons.C:
			a.pollButtons(ctx)
		case cmd := <-a.cmds:
			cmd(ctx)
		}
	}
}

func (a *Agent) connect(ctx context.Context, cl Cloud) error {
	for {
		err := cl.Connect(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
		a.log.Warn("cloud connection failed, retrying", "err", err, "retryIn", a.cfg.ConnectRetryInterval)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(a.cfg.ConnectRetryInterval):
		}
	}
}

func (a *Agent) sendTelemetry(ctx context.Context) {
	var env physic.Env
	if err := a.sensor.Sense(&env); err != nil {
		a.log.Error("sensor read failed", "err", err)
		return
	}
	reading := status.Reading{
		Temperature: env.Temperature.Celsius(),
		Humidity:    float64(env.Humidity) / float64(physic.PercentRH),
		Time:        time.Now(),
	}
	if a.recorder != nil {
		a.recorder.Record(reading)
	}

	if !a.cloud.IsConnected() {
		return
	}
	if !a.uploadEnabled {
		a.log.Info("telemetry upload disabled, not sending")
		return
	}
	t := cloud.Telemetry{Temperature: reading.Temperature, Humidity: reading.Humidity}
	opCtx, cancel := a.opCtx(ctx)
	defer cancel()
	if result := a.cloud.SendTelemetry(opCtx, t); result != cloud.ResultOK {
		a.log.Warn("telemetry upload failed", "result", result)
		return
	}
	a.log.Info("telemetry uploaded", "temperature", t.Temperature, "humidity", t.Humidity)
}

func (a *Agent) pollButtons(ctx context.Context) {
	uploadToggled, moved := a.panel.Poll()
	if uploadToggled {
		enabled := !a.uploadEnabled
		a.log.Info("upload switch changed via button", "enabled", enabled)
		a.setUploadEnabled(ctx, enabled)
	}
	if moved {
		a.deviceMoved(ctx)
	}
}

// setUploadEnabled is the single writer of the upload switch. It mirrors the
// new value to the light, the status snapshot and the cloud twin.
func (a *Agent) setUploadEnabled(ctx context.Context, enabled bool) {
	a.uploadEnabled = enabled
	a.updateSnapshot(func(s *status.State) { s.UploadEnabled = enabled })
	if err := a.panel.SetLight(enabled); err != nil {
		a.log.Warn("status light update failed", "err", err)
	}
	opCtx, cancel := a.opCtx(ctx)
	defer cancel()
	if result := a.cloud.AckUploadEnabled(opCtx, enabled); result != cloud.ResultOK {
		a.log.Warn("could not report upload switch to cloud", "result", result)
	}
}

func (a *Agent) deviceMoved(ctx context.Context) {
	a.log.Info("device moved")
	opCtx, cancel := a.opCtx(ctx)
	defer cancel()
	if result := a.cloud.SendThermometerMovedEvent(opCtx); result != cloud.ResultOK {
		a.log.Warn("could not send moved event to cloud", "result", result)
	}
}

func (a *Agent) handleConnection(ctx context.Context, connected bool) {
	a.updateSnapshot(func(s *status.State) { s.Connected = connected })
	if !connected {
		a.log.Warn("cloud connection lost")
		return
	}
	a.log.Info("cloud connection established")
	opCtx, cancel := a.opCtx(ctx)
	if result := a.cloud.SendDeviceDetails(opCtx, a.cfg.SerialNumber); result != cloud.ResultOK {
		a.log.Warn("could not send device details to cloud", "result", result)
	}
	cancel()
	// Pick up a desired switch change made while the device was offline.
	opCtx, cancel = a.opCtx(ctx)
	if err := a.cloud.SyncTwin(opCtx); err != nil {
		a.log.Warn("twin sync failed", "err", err)
	}
	cancel()
	opCtx, cancel = a.opCtx(ctx)
	if result := a.cloud.AckUploadEnabled(opCtx, a.uploadEnabled); result != cloud.ResultOK {
		a.log.Warn("could not report upload switch to cloud", "result", result)
	}
	cancel()
}

func (a *Agent) updateSnapshot(f func(*status.State)) {
	a.mu.Lock()
	f(&a.snapshot)
	a.mu.Unlock()
}
