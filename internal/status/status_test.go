// Copyright 2026 The Tempmon Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package status

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type fakeControls struct {
	state   State
	enabled []bool
	moved   int
}

func (f *fakeControls) State() State            { return f.state }
func (f *fakeControls) SetUploadEnabled(b bool) { f.enabled = append(f.enabled, b) }
func (f *fakeControls) SignalMoved()            { f.moved++ }

func newTestServer(ctrl *fakeControls) *Server {
	return New(ctrl, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestGetState(t *testing.T) {
	ctrl := &fakeControls{state: State{
		DeviceID:      "tempmon-01",
		SerialNumber:  "TEMPMON-01234",
		UploadEnabled: true,
		Connected:     true,
	}}
	w := do(t, newTestServer(ctrl), http.MethodGet, "/api/state", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var got State
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.DeviceID != "tempmon-01" || !got.UploadEnabled || got.LastReading != nil {
		t.Fatalf("got %+v", got)
	}
}

func TestGetStateIncludesLastReading(t *testing.T) {
	ctrl := &fakeControls{}
	s := newTestServer(ctrl)
	s.Record(Reading{Temperature: 49.2, Humidity: 58.0, Time: time.Now()})

	w := do(t, s, http.MethodGet, "/api/state", "")
	var got State
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.LastReading == nil || got.LastReading.Temperature != 49.2 {
		t.Fatalf("got %+v", got)
	}
}

func TestReadings(t *testing.T) {
	s := newTestServer(&fakeControls{})

	w := do(t, s, http.MethodGet, "/api/readings/latest", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("empty latest: status %d", w.Code)
	}

	base := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	s.Record(Reading{Temperature: 50.5, Humidity: 60.1, Time: base})
	s.Record(Reading{Temperature: 51.0, Humidity: 60.3, Time: base.Add(5 * time.Second)})

	w = do(t, s, http.MethodGet, "/api/readings", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var all []Reading
	if err := json.Unmarshal(w.Body.Bytes(), &all); err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || !all[0].Time.Before(all[1].Time) {
		t.Fatalf("got %+v", all)
	}

	w = do(t, s, http.MethodGet, "/api/readings/latest", "")
	if w.Code != http.StatusOK {
		t.Fatalf("latest: status %d", w.Code)
	}
	var latest Reading
	if err := json.Unmarshal(w.Body.Bytes(), &latest); err != nil {
		t.Fatal(err)
	}
	if latest.Temperature != 51.0 {
		t.Fatalf("latest %+v", latest)
	}
}

func TestPostUpload(t *testing.T) {
	ctrl := &fakeControls{}
	s := newTestServer(ctrl)

	w := do(t, s, http.MethodPost, "/api/upload", `{"enabled":false}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body)
	}
	if len(ctrl.enabled) != 1 || ctrl.enabled[0] {
		t.Fatalf("controls saw %v", ctrl.enabled)
	}

	for _, body := range []string{"", "{}", `{"enabled":"yes"}`} {
		if w := do(t, s, http.MethodPost, "/api/upload", body); w.Code != http.StatusBadRequest {
			t.Errorf("body %q: status %d", body, w.Code)
		}
	}
}

func TestPostMoved(t *testing.T) {
	ctrl := &fakeControls{}
	w := do(t, newTestServer(ctrl), http.MethodPost, "/api/moved", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("status %d", w.Code)
	}
	if ctrl.moved != 1 {
		t.Fatalf("moved %d", ctrl.moved)
	}
}
