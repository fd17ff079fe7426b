package engine

import (
	"testing"
)

func TestFloats(t *testing.T) {
	tests := []struct {
		name       string
		serverSeed string
		clientSeed string
		nonce      uint64
		cursor     uint64
		count      int
	}{
		{
			name:       "single float",
			serverSeed: "test_server_seed",
			clientSeed: "test_client_seed",
			nonce:      1,
			count:      1,
		},
		{
			name:       "crosses an hmac round",
			serverSeed: "test_server_seed",
			clientSeed: "test_client_seed",
			nonce:      1,
			count:      12,
		},
		{
			name:       "cursor boundary",
			serverSeed: "test_server_seed",
			clientSeed: "test_client_seed",
			nonce:      1,
			cursor:     31,
			count:      2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			floats := Floats(tt.serverSeed, tt.clientSeed, tt.nonce, tt.cursor, tt.count)
			if len(floats) != tt.count {
				t.Fatalf("Floats() returned %d floats, want %d", len(floats), tt.count)
			}
			for i, f := range floats {
				if f < 0 || f >= 1 {
					t.Errorf("float %d out of range [0, 1): %f", i, f)
				}
			}
		})
	}
}

func TestFairSourceMatchesFloats(t *testing.T) {
	want := Floats("server", "client", 7, 0, 20)
	src := NewFairSource("server", "client", 7)
	for i, w := range want {
		if got := src.Float64(); got != w {
			t.Fatalf("draw %d = %v, want %v", i, got, w)
		}
	}
}

func TestFairSourceNonceChangesStream(t *testing.T) {
	a := NewFairSource("server", "client", 1).Float64()
	b := NewFairSource("server", "client", 2).Float64()
	if a == b {
		t.Errorf("expected different first draws for different nonces, both %v", a)
	}
}

func TestSeededSourceDeterministic(t *testing.T) {
	a := NewSeededSource(42)
	b := NewSeededSource(42)
	for i := 0; i < 100; i++ {
		if x, y := a.Float64(), b.Float64(); x != y {
			t.Fatalf("draw %d differs: %v != %v", i, x, y)
		}
	}
}

func TestDefaultSourceRange(t *testing.T) {
	src := DefaultSource()
	for i := 0; i < 1000; i++ {
		if f := src.Float64(); f < 0 || f >= 1 {
			t.Fatalf("draw out of range: %v", f)
		}
	}
}

func TestBytesToFloat(t *testing.T) {
	tests := []struct {
		name     string
		bytes    [4]byte
		expected float64
	}{
		{"all zeros", [4]byte{0, 0, 0, 0}, 0.0},
		{"first byte half", [4]byte{128, 0, 0, 0}, 0.5},
		{"quarter", [4]byte{64, 0, 0, 0}, 0.25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := bytesToFloat(tt.bytes); got != tt.expected {
				t.Errorf("bytesToFloat(%v) = %v, want %v", tt.bytes, got, tt.expected)
			}
		})
	}

	if max := bytesToFloat([4]byte{255, 255, 255, 255}); max >= 1 {
		t.Errorf("max bytes should stay below 1, got %v", max)
	}
}

func TestHashServerSeed(t *testing.T) {
	got := HashServerSeed("abc")
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got != want {
		t.Errorf("HashServerSeed = %s, want %s", got, want)
	}
}
