// Copyright 2026 The AppRun Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
	"time"
)

// sampleStatus is a representative control socket message using cbor
// struct tags.
type sampleStatus struct {
	Backend          string    `cbor:"backend"`
	PassesCompleted  uint64    `cbor:"passes_completed"`
	BundlesTracked   int       `cbor:"bundles_tracked"`
	DescriptorsOwned int       `cbor:"descriptors_owned"`
	LastPassAt       time.Time `cbor:"last_pass_at"`
}

func TestRoundTrip(t *testing.T) {
	original := sampleStatus{
		Backend:          "poll",
		PassesCompleted:  42,
		BundlesTracked:   7,
		DescriptorsOwned: 5,
		LastPassAt:       time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC),
	}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	var decoded sampleStatus
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if decoded.Backend != original.Backend || decoded.PassesCompleted != original.PassesCompleted {
		t.Errorf("round trip mismatch: got %+v, want %+v", decoded, original)
	}
	if !decoded.LastPassAt.Equal(original.LastPassAt) {
		t.Errorf("LastPassAt = %v, want %v", decoded.LastPassAt, original.LastPassAt)
	}
}

func TestDeterministicEncoding(t *testing.T) {
	value := map[string]int{"zebra": 1, "apple": 2, "mango": 3}

	first, err := Marshal(value)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	second, err := Marshal(value)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("same map produced different encodings")
	}
}

func TestDecodeIntoAny(t *testing.T) {
	data, err := Marshal(map[string]any{"action": "status"})
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	asMap, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("decoded type = %T, want map[string]any", decoded)
	}
	if asMap["action"] != "status" {
		t.Errorf("action = %v, want status", asMap["action"])
	}
}
