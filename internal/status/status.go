// Copyright 2026 The Tempmon Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package status serves a small local HTTP API for inspecting and poking the
// thermometer: current state, recent readings, and the same upload toggle
// and moved signal the physical buttons produce.
package status

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

const (
	readingRetention = 15 * time.Minute
	latestKey        = "latest"
)

// State is the device snapshot returned by GET /api/state.
type State struct {
	DeviceID      string `json:"deviceId"`
	SerialNumber  string `json:"serialNumber"`
	UploadEnabled bool   `json:"telemetryUploadEnabled"`
	Connected     bool   `json:"cloudConnected"`
	LastAlert     string `json:"lastAlert,omitempty"`
	// LastReading is filled in by the server from its reading buffer.
	LastReading *Reading `json:"lastReading,omitempty"`
}

// Reading is one sensor sample.
type Reading struct {
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	Time        time.Time `json:"time"`
}

// Controls is the agent surface the API drives.
type Controls interface {
	State() State
	SetUploadEnabled(enabled bool)
	SignalMoved()
}

// Server is the local status API.
type Server struct {
	controls Controls
	readings *cache.Cache
	log      *slog.Logger
	router   *gin.Engine
}

// New builds the API around the given controls.
func New(controls Controls, log *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		controls: controls,
		readings: cache.New(readingRetention, time.Minute),
		log:      log,
		router:   gin.New(),
	}
	s.router.Use(gin.Recovery())
	api := s.router.Group("/api")
	api.GET("/state", s.getState)
	api.GET("/readings", s.getReadings)
	api.GET("/readings/latest", s.getLatestReading)
	api.POST("/upload", s.postUpload)
	api.POST("/moved", s.postMoved)
	return s
}

// Record buffers a reading for the readings endpoints. Old readings expire.
func (s *Server) Record(r Reading) {
	s.readings.Set(r.Time.UTC().Format(time.RFC3339Nano), r, cache.DefaultExpiration)
	s.readings.Set(latestKey, r, cache.NoExpiration)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves the API until ctx is canceled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.log.Info("status api listening", "addr", addr)
	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) getState(c *gin.Context) {
	state := s.controls.State()
	if v, found := s.readings.Get(latestKey); found {
		r := v.(Reading)
		state.LastReading = &r
	}
	c.JSON(http.StatusOK, state)
}

func (s *Server) getReadings(c *gin.Context) {
	items := s.readings.Items()
	out := make([]Reading, 0, len(items))
	for key, item := range items {
		if key == latestKey {
			continue
		}
		out = append(out, item.Object.(Reading))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	c.JSON(http.StatusOK, out)
}

func (s *Server) getLatestReading(c *gin.Context) {
	v, found := s.readings.Get(latestKey)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "no readings yet"})
		return
	}
	c.JSON(http.StatusOK, v.(Reading))
}

func (s *Server) postUpload(c *gin.Context) {
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Enabled == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expected body {\"enabled\": bool}"})
		return
	}
	s.controls.SetUploadEnabled(*body.Enabled)
	c.JSON(http.StatusOK, gin.H{"enabled": *body.Enabled})
}

func (s *Server) postMoved(c *gin.Context) {
	s.controls.SignalMoved()
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}
