// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"testing"
)

func TestPublishTopic(t *testing.T) {
	if got, want := PublishTopic("Pixhawk"), "PixhawkSource/PixhawkChannel"; got != want {
		t.Errorf("PublishTopic = %q, want %q", got, want)
	}
	if got, want := SinkName("Pixhawk"), "PixhawkSink"; got != want {
		t.Errorf("SinkName = %q, want %q", got, want)
	}
	if got, want := SourceName("Pixhawk"), "PixhawkSource"; got != want {
		t.Errorf("SourceName = %q, want %q", got, want)
	}
}

func TestParseFilter(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		want    Filter
		wantErr bool
	}{
		{name: "empty is default", pattern: "", want: DefaultFilter},
		{name: "any any", pattern: "*/*", want: Filter{Source: "*", Channel: "*"}},
		{name: "exact", pattern: "GpsSource/GpsChannel", want: Filter{Source: "GpsSource", Channel: "GpsChannel"}},
		{name: "source wildcard channel", pattern: "GpsSource/*", want: Filter{Source: "GpsSource", Channel: "*"}},
		{name: "bare source", pattern: "GpsSource", want: Filter{Source: "GpsSource", Channel: "*"}},
		{name: "empty source", pattern: "/GpsChannel", wantErr: true},
		{name: "empty channel", pattern: "GpsSource/", wantErr: true},
		{name: "three segments", pattern: "a/b/c", wantErr: true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := ParseFilter(test.pattern)
			if test.wantErr {
				if err == nil {
					t.Fatalf("ParseFilter(%q) = %v, want error", test.pattern, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseFilter(%q): %v", test.pattern, err)
			}
			if got != test.want {
				t.Errorf("ParseFilter(%q) = %+v, want %+v", test.pattern, got, test.want)
			}
		})
	}
}

func TestFilterMatch(t *testing.T) {
	tests := []struct {
		filter string
		topic  string
		want   bool
	}{
		{"*/*", "PixhawkSource/PixhawkChannel", true},
		{"PixhawkSource/*", "PixhawkSource/PixhawkChannel", true},
		{"PixhawkSource/*", "GpsSource/GpsChannel", false},
		{"*/GpsChannel", "GpsSource/GpsChannel", true},
		{"GpsSource/GpsChannel", "GpsSource/GpsChannel", true},
		{"GpsSource/GpsChannel", "GpsSource/Other", false},
		{"*/*", "no-separator", false},
	}

	for _, test := range tests {
		filter, err := ParseFilter(test.filter)
		if err != nil {
			t.Fatalf("ParseFilter(%q): %v", test.filter, err)
		}
		if got := filter.Match(test.topic); got != test.want {
			t.Errorf("%q.Match(%q) = %v, want %v", test.filter, test.topic, got, test.want)
		}
	}
}

func TestFilterString(t *testing.T) {
	if got := DefaultFilter.String(); got != "*/*" {
		t.Errorf("DefaultFilter.String() = %q, want */*", got)
	}
}

func TestMQTTTopicFilter(t *testing.T) {
	tests := []struct {
		filter Filter
		want   string
	}{
		{DefaultFilter, "+/+"},
		{Filter{Source: "GpsSource", Channel: "*"}, "GpsSource/+"},
		{Filter{Source: "GpsSource", Channel: "GpsChannel"}, "GpsSource/GpsChannel"},
	}
	for _, test := range tests {
		if got := MQTTTopicFilter(test.filter); got != test.want {
			t.Errorf("MQTTTopicFilter(%v) = %q, want %q", test.filter, got, test.want)
		}
	}
}

func TestRedisPattern(t *testing.T) {
	tests := []struct {
		filter Filter
		want   string
	}{
		{DefaultFilter, "*/*"},
		{Filter{Source: "GpsSource", Channel: "*"}, "GpsSource/*"},
		{Filter{Source: "odd[1]?", Channel: "*"}, `odd\[1\]\?/*`},
	}
	for _, test := range tests {
		if got := RedisPattern(test.filter); got != test.want {
			t.Errorf("RedisPattern(%v) = %q, want %q", test.filter, got, test.want)
		}
	}
}
