package core

import (
	"sync"
	"testing"
	"time"
)

func TestParseAspectRatio(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    AspectRatio
		wantErr bool
	}{
		{name: "empty defaults to square", input: "", want: AspectSquare},
		{name: "wide", input: "16:9", want: AspectWide},
		{name: "trims whitespace", input: " 3:4 ", want: AspectPortrait},
		{name: "unsupported", input: "2:1", wantErr: true},
		{name: "garbage", input: "square", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAspectRatio(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAspectRatio(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseAspectRatio(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestAspectRatioValid(t *testing.T) {
	for _, a := range AspectRatios {
		if !a.Valid() {
			t.Errorf("%q should be valid", a)
		}
	}
	if AspectRatio("").Valid() {
		t.Error("empty aspect ratio should be invalid")
	}
}

func TestNewImageID_UniqueUnderConcurrency(t *testing.T) {
	const workers = 8
	const perWorker = 500

	var (
		mu   sync.Mutex
		seen = make(map[int64]struct{}, workers*perWorker)
		wg   sync.WaitGroup
	)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]int64, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				local = append(local, NewImageID())
			}
			mu.Lock()
			defer mu.Unlock()
			for _, id := range local {
				if _, dup := seen[id]; dup {
					t.Errorf("duplicate id %d", id)
				}
				seen[id] = struct{}{}
			}
		}()
	}
	wg.Wait()

	if len(seen) != workers*perWorker {
		t.Errorf("got %d unique ids, want %d", len(seen), workers*perWorker)
	}
}

func TestNewImageID_Increasing(t *testing.T) {
	prev := NewImageID()
	for i := 0; i < 100; i++ {
		next := NewImageID()
		if next <= prev {
			t.Fatalf("id %d not greater than previous %d", next, prev)
		}
		prev = next
	}
}

func TestNextImageID(t *testing.T) {
	const ms = 1_767_225_600_000 // 2026-01-01T00:00:00Z

	tests := []struct {
		name  string
		last  int64
		nonce int64
		want  int64
	}{
		{"fresh millisecond", 0, 417, ms*1000 + 417},
		{"zero nonce", 0, 0, ms * 1000},
		{"bumped past last", ms*1000 + 900, 12, ms*1000 + 901},
		{"clock behind last", (ms+5)*1000 + 3, 999, (ms+5)*1000 + 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := nextImageID(tt.last, ms, tt.nonce); got != tt.want {
				t.Errorf("nextImageID() = %d, want %d", got, tt.want)
			}
		})
	}

	// Separate processes share a millisecond but not a nonce.
	if a, b := nextImageID(0, ms, 1), nextImageID(0, ms, 2); a == b {
		t.Errorf("same millisecond, different nonce: both %d", a)
	}
}

func TestNewImageID_EncodesMillisecond(t *testing.T) {
	before := time.Now().UnixMilli()
	id := NewImageID()

	// Bumps only move an id forward, so it never encodes an earlier time.
	if got := id / 1000; got < before {
		t.Errorf("id %d encodes ms %d, want at least %d", id, got, before)
	}
	if id >= 1<<53 {
		t.Errorf("id %d is not exactly representable as a float64", id)
	}
}

func TestImageRecordPayload(t *testing.T) {
	rec := ImageRecord{Src: JPEGDataURI("QUJD")}
	if got := rec.Payload(); got != "QUJD" {
		t.Errorf("Payload() = %q, want %q", got, "QUJD")
	}

	raw := ImageRecord{Src: "QUJD"}
	if got := raw.Payload(); got != "QUJD" {
		t.Errorf("Payload() without header = %q, want %q", got, "QUJD")
	}
}
