// Copyright 2026 The Tempmon Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package cloud translates between thermometer concepts and their hub
// representation: telemetry events, the serial number reported property, the
// writable telemetry upload switch and the displayAlert direct method.
package cloud

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/mtnrbq/tempmon/internal/iothub"
)

// Result is the outcome of a cloud operation.
type Result int

const (
	ResultOK Result = iota
	// ResultNoNetwork means the hub connection is down; the caller may
	// retry once it is restored.
	ResultNoNetwork
	ResultOtherFailure
)

func (r Result) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultNoNetwork:
		return "no network"
	case ResultOtherFailure:
		return "other failure"
	default:
		return fmt.Sprintf("Result(%d)", int(r))
	}
}

// Telemetry is one thermometer reading as uploaded to the hub.
type Telemetry struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
}

// Callbacks are invoked from the MQTT receive path. They must not block.
type Callbacks struct {
	// UploadEnabledChanged fires when the cloud changes the writable
	// thermometerTelemetryUploadEnabled property.
	UploadEnabledChanged func(enabled bool)
	// DisplayAlert fires when the cloud invokes the displayAlert method.
	DisplayAlert func(message string)
	// ConnectionChanged fires when the hub connection goes up or down.
	ConnectionChanged func(connected bool)
}

// hubClient is the part of iothub.DeviceClient the cloud layer uses.
type hubClient interface {
	Connect(ctx context.Context) error
	Disconnect()
	IsConnected() bool
	SendEvent(ctx context.Context, payload []byte, props map[string]string) error
	UpdateReported(ctx context.Context, patch any) error
	GetTwin(ctx context.Context) ([]byte, error)
	SetConnectionHandler(iothub.ConnectionHandler)
	SetDesiredHandler(iothub.DesiredHandler)
	SetMethodHandler(iothub.MethodHandler)
}

var eventProps = map[string]string{"$.ct": "application/json", "$.ce": "utf-8"}

// Client exposes the thermometer's view of the cloud.
type Client struct {
	hub hubClient
	log *slog.Logger
	cb  Callbacks

	// Last seen desired property version, echoed back as "av" in the
	// writable property acknowledgment.
	ackVersion atomic.Int64
}

// New wires the callbacks into a hub client. Call Connect afterwards.
func New(hub hubClient, cb Callbacks, log *slog.Logger) *Client {
	c := &Client{hub: hub, log: log, cb: cb}
	hub.SetConnectionHandler(c.handleConnection)
	hub.SetDesiredHandler(c.handleDesired)
	hub.SetMethodHandler(c.handleMethod)
	return c
}

// Connect establishes the hub connection.
func (c *Client) Connect(ctx context.Context) error {
	return c.hub.Connect(ctx)
}

// Close tears down the hub connection.
func (c *Client) Close() {
	c.hub.Disconnect()
}

// IsConnected reports whether the hub connection is up.
func (c *Client) IsConnected() bool {
	return c.hub.IsConnected()
}

// SendTelemetry uploads one reading as a device-to-cloud event.
func (c *Client) SendTelemetry(ctx context.Context, t Telemetry) Result {
	b, err := json.Marshal(t)
	if err != nil {
		return ResultOtherFailure
	}
	return c.sendEvent(ctx, b)
}

// SendThermometerMovedEvent reports that the device was physically moved.
func (c *Client) SendThermometerMovedEvent(ctx context.Context) Result {
	return c.sendEvent(ctx, []byte(`{"thermometerMoved":true}`))
}

func (c *Client) sendEvent(ctx context.Context, payload []byte) Result {
	if !c.hub.IsConnected() {
		return ResultNoNetwork
	}
	if err := c.hub.SendEvent(ctx, payload, eventProps); err != nil {
		c.log.Error("event upload failed", "err", err)
		return ResultOtherFailure
	}
	return ResultOK
}

// SendDeviceDetails reports the device serial number to the twin.
func (c *Client) SendDeviceDetails(ctx context.Context, serialNumber string) Result {
	return c.updateReported(ctx, map[string]string{"serialNumber": serialNumber})
}

// AckUploadEnabled acknowledges the writable upload switch with the device's
// current value, completing the desired/reported handshake.
func (c *Client) AckUploadEnabled(ctx context.Context, enabled bool) Result {
	patch := map[string]any{
		"thermometerTelemetryUploadEnabled": map[string]any{
			"value": enabled,
			"ac":    200,
			"av":    c.ackVersion.Load(),
			"ad":    "reported successfully",
		},
	}
	return c.updateReported(ctx, patch)
}

func (c *Client) updateReported(ctx context.Context, patch any) Result {
	if !c.hub.IsConnected() {
		return ResultNoNetwork
	}
	if err := c.hub.UpdateReported(ctx, patch); err != nil {
		c.log.Error("reported property update failed", "err", err)
		return ResultOtherFailure
	}
	return ResultOK
}

// SyncTwin fetches the full twin and applies the desired upload switch, so a
// change made while the device was offline is not missed.
func (c *Client) SyncTwin(ctx context.Context) error {
	b, err := c.hub.GetTwin(ctx)
	if err == iothub.ErrNoTwin {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cloud: twin sync: %w", err)
	}
	var twin struct {
		Desired json.RawMessage `json:"desired"`
	}
	if err := json.Unmarshal(b, &twin); err != nil {
		return fmt.Errorf("cloud: twin sync: %w", err)
	}
	c.applyDesired(twin.Desired, 0)
	return nil
}

func (c *Client) handleConnection(connected bool) {
	if c.cb.ConnectionChanged != nil {
		c.cb.ConnectionChanged(connected)
	}
}

func (c *Client) handleDesired(payload []byte, version int64) {
	c.applyDesired(payload, version)
}

func (c *Client) applyDesired(payload []byte, topicVersion int64) {
	var desired struct {
		UploadEnabled *bool `json:"thermometerTelemetryUploadEnabled"`
		Version       int64 `json:"$version"`
	}
	if err := json.Unmarshal(payload, &desired); err != nil {
		c.log.Warn("unparseable desired properties", "err", err)
		return
	}
	version := desired.Version
	if version == 0 {
		version = topicVersion
	}
	if version > c.ackVersion.Load() {
		c.ackVersion.Store(version)
	}
	if desired.UploadEnabled == nil {
		return
	}
	c.log.Info("desired upload switch received", "enabled", *desired.UploadEnabled, "version", version)
	if c.cb.UploadEnabledChanged != nil {
		c.cb.UploadEnabledChanged(*desired.UploadEnabled)
	}
}

func (c *Client) handleMethod(name string, payload []byte) (int, []byte) {
	if name != "displayAlert" {
		c.log.Warn("unknown direct method", "method", name)
		return 404, []byte(`{}`)
	}
	// The alert text arrives as a JSON-encoded string.
	var message string
	if err := json.Unmarshal(payload, &message); err != nil {
		return 400, []byte(`"Invalid payload. Expected a JSON string."`)
	}
	if c.cb.DisplayAlert != nil {
		c.cb.DisplayAlert(message)
	}
	return 200, []byte(`"Alert displayed."`)
}
