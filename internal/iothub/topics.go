// Copyright 2026 The Tempmon Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package iothub implements the device-facing MQTT surface of an Azure IoT
// hub: device-to-cloud events, device twin reads and patches, and direct
// methods.
//
// The topic grammar is part of the hub's public device contract. Telemetry
// goes to devices/{id}/messages/events/, twin traffic uses the reserved
// $iothub/twin/... topics and direct methods arrive on $iothub/methods/POST.
package iothub

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const apiVersion = "2021-04-12"

const (
	methodSubscription      = "$iothub/methods/POST/#"
	twinResponseSub         = "$iothub/twin/res/#"
	twinDesiredSubscription = "$iothub/twin/PATCH/properties/desired/#"

	methodPrefix      = "$iothub/methods/POST/"
	twinResponsePfx   = "$iothub/twin/res/"
	twinDesiredPrefix = "$iothub/twin/PATCH/properties/desired/"
)

// username builds the MQTT username the hub expects.
func username(hubHost, deviceID string) string {
	return hubHost + "/" + deviceID + "/?api-version=" + apiVersion
}

// eventTopic builds the device-to-cloud event topic, with an optional
// URL-encoded property bag appended.
func eventTopic(deviceID string, props map[string]string) string {
	topic := "devices/" + deviceID + "/messages/events/"
	if len(props) == 0 {
		return topic
	}
	v := url.Values{}
	for k, val := range props {
		v.Set(k, val)
	}
	return topic + v.Encode()
}

func twinGetTopic(rid uint64) string {
	return fmt.Sprintf("$iothub/twin/GET/?$rid=%d", rid)
}

func twinReportedTopic(rid uint64) string {
	return fmt.Sprintf("$iothub/twin/PATCH/properties/reported/?$rid=%d", rid)
}

func methodResponseTopic(status int, rid string) string {
	return fmt.Sprintf("$iothub/methods/res/%d/?$rid=%s", status, rid)
}

// parseMethodTopic extracts the method name and request id from a direct
// method invocation topic, $iothub/methods/POST/{name}/?$rid={rid}.
func parseMethodTopic(topic string) (name, rid string, err error) {
	rest, ok := strings.CutPrefix(topic, methodPrefix)
	if !ok {
		return "", "", fmt.Errorf("iothub: not a method topic: %q", topic)
	}
	name, query, ok := strings.Cut(rest, "/?")
	if !ok || name == "" {
		return "", "", fmt.Errorf("iothub: malformed method topic: %q", topic)
	}
	vals, err := url.ParseQuery(query)
	if err != nil {
		return "", "", fmt.Errorf("iothub: malformed method topic %q: %w", topic, err)
	}
	rid = vals.Get("$rid")
	if rid == "" {
		return "", "", fmt.Errorf("iothub: method topic %q has no request id", topic)
	}
	return name, rid, nil
}

// parseTwinResponseTopic extracts the status code and request id from a twin
// response topic, $iothub/twin/res/{status}/?$rid={rid}.
func parseTwinResponseTopic(topic string) (status int, rid string, err error) {
	rest, ok := strings.CutPrefix(topic, twinResponsePfx)
	if !ok {
		return 0, "", fmt.Errorf("iothub: not a twin response topic: %q", topic)
	}
	code, query, ok := strings.Cut(rest, "/?")
	if !ok {
		return 0, "", fmt.Errorf("iothub: malformed twin response topic: %q", topic)
	}
	status, err = strconv.Atoi(code)
	if err != nil {
		return 0, "", fmt.Errorf("iothub: bad status in twin response topic %q: %w", topic, err)
	}
	vals, err := url.ParseQuery(query)
	if err != nil {
		return 0, "", fmt.Errorf("iothub: malformed twin response topic %q: %w", topic, err)
	}
	return status, vals.Get("$rid"), nil
}

// parseDesiredVersion extracts the twin $version from a desired property
// patch topic, $iothub/twin/PATCH/properties/desired/?$version={v}. Returns
// 0 when the topic carries no version, as a plain broker would deliver.
func parseDesiredVersion(topic string) int64 {
	rest, ok := strings.CutPrefix(topic, twinDesiredPrefix)
	if !ok {
		return 0
	}
	rest = strings.TrimPrefix(rest, "?")
	vals, err := url.ParseQuery(rest)
	if err != nil {
		return 0
	}
	v, err := strconv.ParseInt(vals.Get("$version"), 10, 64)
	if err != nil {
		return 0
	}
	return v
}
