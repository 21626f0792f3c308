// Copyright 2026 The Tempmon Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Command tempmon runs the thermometer agent: it reads temperature and
// humidity from an SHT31 sensor (or a simulated one), uploads telemetry to
// an Azure IoT hub over MQTT, mirrors the telemetry upload switch between
// buttons, light and device twin, and serves a local status API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/mtnrbq/tempmon/internal/agent"
	"github.com/mtnrbq/tempmon/internal/cloud"
	"github.com/mtnrbq/tempmon/internal/config"
	"github.com/mtnrbq/tempmon/internal/iothub"
	"github.com/mtnrbq/tempmon/internal/logging"
	"github.com/mtnrbq/tempmon/internal/status"
	"github.com/mtnrbq/tempmon/internal/ui"
	"github.com/mtnrbq/tempmon/sht3x"
	"github.com/mtnrbq/tempmon/simled"
	"github.com/mtnrbq/tempmon/simtherm"
)

const (
	exitSuccess = 0
	exitConfig  = 1
	exitSensor  = 2
	exitPanel   = 3
	exitCloud   = 4
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitConfig
	}

	log, logFile := logging.Init(cfg.LogPath)
	if logFile != nil {
		defer logFile.Close()
	}
	log.Info("tempmon starting", "deviceId", cfg.DeviceID, "simulate", cfg.Simulate)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sensor, err := newSensor(cfg)
	if err != nil {
		log.Error("sensor init failed", "err", err)
		return exitSensor
	}
	defer sensor.Halt()
	log.Info("sensor ready", "sensor", sensor)

	panel, err := newPanel(cfg)
	if err != nil {
		log.Error("panel init failed", "err", err)
		return exitPanel
	}

	hub, err := iothub.New(iothub.Config{
		HubHost:   cfg.HubHost,
		DeviceID:  cfg.DeviceID,
		BrokerURL: cfg.BrokerURL,
		CertFile:  cfg.CertFile,
		KeyFile:   cfg.KeyFile,
		CAFile:    cfg.CAFile,
	}, log)
	if err != nil {
		log.Error("hub client init failed", "err", err)
		return exitCloud
	}

	a := agent.New(agent.Config{
		DeviceID:          cfg.DeviceID,
		SerialNumber:      cfg.SerialNumber,
		TelemetryInterval: cfg.TelemetryInterval,
	}, sensor, panel, log)
	cl := cloud.New(hub, a.Callbacks(), log)

	if cfg.StatusAddr != "" {
		srv := status.New(a, log)
		a.SetRecorder(srv)
		go func() {
			if err := srv.Run(ctx, cfg.StatusAddr); err != nil {
				log.Error("status api failed", "err", err)
			}
		}()
	}

	if err := a.Run(ctx, cl); err != nil {
		log.Error("agent failed", "err", err)
		return exitCloud
	}
	log.Info("tempmon exiting")
	return exitSuccess
}

func newSensor(cfg config.Config) (physic.SenseEnv, error) {
	if cfg.Simulate {
		return simtherm.New(&simtherm.DefaultOpts), nil
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("initializing host drivers: %w", err)
	}
	bus, err := i2creg.Open(cfg.I2CBus)
	if err != nil {
		return nil, fmt.Errorf("opening i2c bus %q: %w", cfg.I2CBus, err)
	}
	dev, err := sht3x.New(bus, i2c.Addr(cfg.I2CAddr), &sht3x.DefaultOpts)
	if err != nil {
		bus.Close()
		return nil, err
	}
	return dev, nil
}

func newPanel(cfg config.Config) (agent.Panel, error) {
	light, err := newLight(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Simulate || cfg.ButtonAPin == "" || cfg.ButtonBPin == "" {
		return ui.NewSimPanel(light), nil
	}
	buttonA := gpioreg.ByName(cfg.ButtonAPin)
	if buttonA == nil {
		return nil, fmt.Errorf("unknown gpio pin %q", cfg.ButtonAPin)
	}
	buttonB := gpioreg.ByName(cfg.ButtonBPin)
	if buttonB == nil {
		return nil, fmt.Errorf("unknown gpio pin %q", cfg.ButtonBPin)
	}
	return ui.NewPanel(buttonA, buttonB, light)
}

func newLight(cfg config.Config) (ui.Light, error) {
	if cfg.Simulate || cfg.LEDPin == "" {
		return simled.New(&simled.Opts{Label: "upload"}), nil
	}
	pin := gpioreg.ByName(cfg.LEDPin)
	if pin == nil {
		return nil, fmt.Errorf("unknown gpio pin %q", cfg.LEDPin)
	}
	// Dev board LEDs sit between the supply rail and the pin.
	return ui.NewPinLight(pin, true)
}
