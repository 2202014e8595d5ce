// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type sampleManifest struct {
	Environment string            `cbor:"environment"`
	Created     time.Time         `cbor:"created"`
	Files       map[string]string `cbor:"files"`
	Size        int64             `cbor:"size,omitempty"`
}

type sampleReport struct {
	Environment string `json:"environment"`
	Passed      int    `json:"passed"`
}

func TestMarshalUnmarshalRoundtrip(t *testing.T) {
	t.Parallel()

	original := sampleManifest{
		Environment: "roman-cal",
		Created:     time.Date(2026, 3, 1, 12, 0, 0, 500, time.UTC),
		Files:       map[string]string{"bin/python": "ab12", "lib/site.py": "cd34"},
		Size:        4096,
	}
	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded sampleManifest
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if diff := cmp.Diff(original, decoded); diff != "" {
		t.Errorf("roundtrip mismatch (-want +got):\n%s", diff)
	}
}

func TestMarshalDeterministicMapOrder(t *testing.T) {
	t.Parallel()

	// Go randomizes map iteration; encoding many times must still
	// produce one byte sequence.
	manifest := sampleManifest{Files: map[string]string{}}
	for _, name := range []string{"z", "a", "m", "b", "y", "c", "x", "d"} {
		manifest.Files[name] = name + name
	}
	first, err := Marshal(manifest)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for range 20 {
		again, err := Marshal(manifest)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("deterministic encoding violated: %x != %x", first, again)
		}
	}
}

func TestJSONTagFallback(t *testing.T) {
	t.Parallel()

	data, err := Marshal(sampleReport{Environment: "roman-cal", Passed: 3})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	diagnostic, err := Diagnose(data)
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if !strings.Contains(diagnostic, `"environment": "roman-cal"`) {
		t.Errorf("diagnostic %s does not use json field names", diagnostic)
	}
}

func TestEncoderDecoderStream(t *testing.T) {
	t.Parallel()

	reports := []sampleReport{{"a", 1}, {"b", 2}, {"c", 0}}
	var buffer bytes.Buffer
	encoder := NewEncoder(&buffer)
	for _, report := range reports {
		if err := encoder.Encode(report); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}
	decoder := NewDecoder(&buffer)
	for i, want := range reports {
		var got sampleReport
		if err := decoder.Decode(&got); err != nil {
			t.Fatalf("Decode %d: %v", i, err)
		}
		if got != want {
			t.Errorf("report %d = %+v, want %+v", i, got, want)
		}
	}
}

func TestUnmarshalIgnoresUnknownFields(t *testing.T) {
	t.Parallel()

	data, err := Marshal(map[string]any{"environment": "e", "future": []int{1, 2}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded sampleManifest
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Environment != "e" {
		t.Errorf("Environment = %q, want e", decoded.Environment)
	}
}
