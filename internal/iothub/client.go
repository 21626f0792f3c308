// Copyright 2026 The Tempmon Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package iothub

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ErrNoTwin is returned for twin operations that need a hub to answer when
// the client is connected to a plain broker instead.
var ErrNoTwin = errors.New("iothub: twin requests need a hub connection")

// Config describes the hub connection.
type Config struct {
	// HubHost is the hub hostname; the client connects to port 8883 with
	// TLS and the X.509 device certificate.
	HubHost  string
	DeviceID string

	// BrokerURL, when set, replaces the hub with a plain MQTT broker.
	// Twin responses are not awaited in this mode since no hub answers.
	BrokerURL string

	CertFile string
	KeyFile  string
	CAFile   string
}

// ConnectionHandler is invoked when the connection state changes.
type ConnectionHandler func(connected bool)

// DesiredHandler is invoked with the payload of a desired property patch and
// the twin version carried on the topic (0 if absent).
type DesiredHandler func(payload []byte, version int64)

// MethodHandler is invoked for a direct method call and returns the response
// status code and payload.
type MethodHandler func(name string, payload []byte) (int, []byte)

type twinResponse struct {
	status  int
	payload []byte
}

// DeviceClient is a device-side hub client over MQTT.
type DeviceClient struct {
	cfg    Config
	log    *slog.Logger
	client mqtt.Client
	hub    bool

	rid atomic.Uint64

	onConnection ConnectionHandler
	onDesired    DesiredHandler
	onMethod     MethodHandler

	// requestTimeout bounds twin requests whose caller context carries no
	// deadline of its own, so a dropped response cannot block forever.
	requestTimeout time.Duration

	mu      sync.Mutex
	pending map[string]chan twinResponse
}

// New returns a DeviceClient for the given configuration. Handlers must be
// registered before Connect.
func New(cfg Config, log *slog.Logger) (*DeviceClient, error) {
	if cfg.DeviceID == "" {
		return nil, errors.New("iothub: device id is required")
	}
	if cfg.HubHost == "" && cfg.BrokerURL == "" {
		return nil, errors.New("iothub: hub host or broker url is required")
	}
	c := &DeviceClient{
		cfg:            cfg,
		log:            log,
		hub:            cfg.HubHost != "",
		requestTimeout: 30 * time.Second,
		pending:        make(map[string]chan twinResponse),
	}

	opts := mqtt.NewClientOptions()
	opts.SetClientID(cfg.DeviceID)
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(false)
	opts.SetOnConnectHandler(c.handleConnect)
	opts.SetConnectionLostHandler(c.handleConnectionLost)
	if c.hub {
		tlsCfg, err := newTLSConfig(cfg.CertFile, cfg.KeyFile, cfg.CAFile)
		if err != nil {
			return nil, err
		}
		opts.AddBroker("tls://" + cfg.HubHost + ":8883")
		opts.SetUsername(username(cfg.HubHost, cfg.DeviceID))
		opts.SetTLSConfig(tlsCfg)
	} else {
		opts.AddBroker(cfg.BrokerURL)
	}
	c.client = mqtt.NewClient(opts)
	return c, nil
}

func newTLSConfig(certFile, keyFile, caFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("iothub: loading device certificate: %w", err)
	}
	pool, err := x509.SystemCertPool()
	if err != nil {
		pool = x509.NewCertPool()
	}
	if caFile != "" {
		pem, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("iothub: loading ca bundle: %w", err)
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("iothub: no certificates found in %s", caFile)
		}
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// SetConnectionHandler registers the connection state callback.
func (c *DeviceClient) SetConnectionHandler(h ConnectionHandler) { c.onConnection = h }

// SetDesiredHandler registers the desired property patch callback.
func (c *DeviceClient) SetDesiredHandler(h DesiredHandler) { c.onDesired = h }

// SetMethodHandler registers the direct method callback.
func (c *DeviceClient) SetMethodHandler(h MethodHandler) { c.onMethod = h }

// Connect establishes the connection. Subscriptions are made from the
// on-connect path so they survive reconnects.
func (c *DeviceClient) Connect(ctx context.Context) error {
	tok := c.client.Connect()
	if err := c.wait(ctx, tok); err != nil {
		return fmt.Errorf("iothub: connect: %w", err)
	}
	return nil
}

// Disconnect closes the connection, allowing in-flight messages to drain.
func (c *DeviceClient) Disconnect() {
	c.client.Disconnect(250)
}

// IsConnected reports whether the underlying connection is up.
func (c *DeviceClient) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

func (c *DeviceClient) handleConnect(client mqtt.Client) {
	for topic, handler := range map[string]mqtt.MessageHandler{
		methodSubscription:      c.handleMethod,
		twinDesiredSubscription: c.handleDesired,
		twinResponseSub:         c.handleTwinResponse,
	} {
		if tok := client.Subscribe(topic, 1, handler); tok.Wait() && tok.Error() != nil {
			c.log.Error("subscribe failed", "topic", topic, "err", tok.Error())
		}
	}
	c.log.Info("hub connected", "deviceId", c.cfg.DeviceID)
	if c.onConnection != nil {
		c.onConnection(true)
	}
}

func (c *DeviceClient) handleConnectionLost(_ mqtt.Client, err error) {
	c.log.Warn("hub connection lost", "err", err)
	if c.onConnection != nil {
		c.onConnection(false)
	}
}

// SendEvent publishes a device-to-cloud event with an optional property bag.
func (c *DeviceClient) SendEvent(ctx context.Context, payload []byte, props map[string]string) error {
	tok := c.client.Publish(eventTopic(c.cfg.DeviceID, props), 1, false, payload)
	if err := c.wait(ctx, tok); err != nil {
		return fmt.Errorf("iothub: send event: %w", err)
	}
	return nil
}

// UpdateReported patches the twin's reported properties. On a hub
// connection the hub's acknowledgment is awaited and a failure status is
// returned as an error.
func (c *DeviceClient) UpdateReported(ctx context.Context, patch any) error {
	b, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("iothub: marshal reported properties: %w", err)
	}
	rid := c.nextRID()
	if !c.hub {
		tok := c.client.Publish(twinReportedTopic(rid), 1, false, b)
		if err := c.wait(ctx, tok); err != nil {
			return fmt.Errorf("iothub: update reported: %w", err)
		}
		return nil
	}
	resp, err := c.request(ctx, twinReportedTopic(rid), rid, b)
	if err != nil {
		return err
	}
	if resp.status >= 300 {
		return fmt.Errorf("iothub: reported property update rejected with status %d", resp.status)
	}
	return nil
}

// GetTwin retrieves the full twin document (desired and reported sections).
func (c *DeviceClient) GetTwin(ctx context.Context) ([]byte, error) {
	if !c.hub {
		return nil, ErrNoTwin
	}
	rid := c.nextRID()
	resp, err := c.request(ctx, twinGetTopic(rid), rid, nil)
	if err != nil {
		return nil, err
	}
	if resp.status >= 300 {
		return nil, fmt.Errorf("iothub: twin request rejected with status %d", resp.status)
	}
	return resp.payload, nil
}

// request publishes to a topic carrying a request id and waits for the
// matching response on $iothub/twin/res.
func (c *DeviceClient) request(ctx context.Context, topic string, rid uint64, payload []byte) (twinResponse, error) {
	if _, ok := ctx.Deadline(); !ok && c.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}
	key := strconv.FormatUint(rid, 10)
	ch := make(chan twinResponse, 1)
	c.mu.Lock()
	c.pending[key] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, key)
		c.mu.Unlock()
	}()

	tok := c.client.Publish(topic, 1, false, payload)
	if err := c.wait(ctx, tok); err != nil {
		return twinResponse{}, fmt.Errorf("iothub: twin request: %w", err)
	}
	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		return twinResponse{}, ctx.Err()
	}
}

func (c *DeviceClient) handleTwinResponse(_ mqtt.Client, m mqtt.Message) {
	status, rid, err := parseTwinResponseTopic(m.Topic())
	if err != nil {
		c.log.Warn("unparseable twin response", "topic", m.Topic(), "err", err)
		return
	}
	c.mu.Lock()
	ch := c.pending[rid]
	c.mu.Unlock()
	if ch == nil {
		c.log.Warn("twin response for unknown request", "rid", rid, "status", status)
		return
	}
	ch <- twinResponse{status: status, payload: m.Payload()}
}

func (c *DeviceClient) handleDesired(_ mqtt.Client, m mqtt.Message) {
	if c.onDesired == nil {
		return
	}
	c.onDesired(m.Payload(), parseDesiredVersion(m.Topic()))
}

func (c *DeviceClient) handleMethod(_ mqtt.Client, m mqtt.Message) {
	name, rid, err := parseMethodTopic(m.Topic())
	if err != nil {
		c.log.Warn("unparseable method topic", "topic", m.Topic(), "err", err)
		return
	}
	status, resp := 501, []byte(`{}`)
	if c.onMethod != nil {
		status, resp = c.onMethod(name, m.Payload())
	}
	// Waiting for the publish here would hold up paho's in-order message
	// dispatch, so the response is confirmed off the handler goroutine.
	tok := c.client.Publish(methodResponseTopic(status, rid), 1, false, resp)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.wait(ctx, tok); err != nil {
			c.log.Warn("method response publish failed", "method", name, "err", err)
		}
	}()
}

func (c *DeviceClient) nextRID() uint64 {
	return c.rid.Add(1)
}

func (c *DeviceClient) wait(ctx context.Context, tok mqtt.Token) error {
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
