package geo

import (
	"strings"
	"testing"
)

func TestEncodeGeohash_KnownPoint(t *testing.T) {
	// The canonical geohash example point.
	if got := EncodeGeohash(42.605, -5.603, 5); got != "ezs42" {
		t.Errorf("EncodeGeohash(42.605, -5.603, 5) = %q, want ezs42", got)
	}
}

func TestEncodeGeohash_PrecisionFallback(t *testing.T) {
	got := EncodeGeohash(4.7110, -74.0721, 0)
	if len(got) != CoarsePrecision {
		t.Errorf("len = %d, want CoarsePrecision %d", len(got), CoarsePrecision)
	}
}

func TestEncodeGeohash_PrefixProperty(t *testing.T) {
	// A coarser geohash of the same point is a prefix of a finer one.
	fine := EncodeGeohash(4.7110, -74.0721, 9)
	coarse := EncodeGeohash(4.7110, -74.0721, 5)
	if !strings.HasPrefix(fine, coarse) {
		t.Errorf("coarse %q is not a prefix of fine %q", coarse, fine)
	}
}

func TestEncodeGeohash_AlphabetOnly(t *testing.T) {
	got := EncodeGeohash(-33.8688, 151.2093, 12)
	if len(got) != 12 {
		t.Fatalf("len = %d, want 12", len(got))
	}
	for _, c := range got {
		if !geohashChars[c] {
			t.Errorf("geohash %q contains invalid character %q", got, c)
		}
	}
}

func TestTruncateGeohash(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		precision int
		want      string
	}{
		{"truncates", "ezs42kjuxd", 6, "ezs42k"},
		{"already short", "ezs4", 6, "ezs4"},
		{"uppercase normalized", "EZS42K", 4, "ezs4"},
		{"empty", "", 6, ""},
		{"zero precision", "ezs42", 0, ""},
		{"invalid characters", "ezsa2", 6, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TruncateGeohash(tt.in, tt.precision); got != tt.want {
				t.Errorf("TruncateGeohash(%q, %d) = %q, want %q", tt.in, tt.precision, got, tt.want)
			}
		})
	}
}
