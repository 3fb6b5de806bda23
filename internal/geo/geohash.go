package geo

import "strings"

// CoarsePrecision is the geohash precision used when a location leaves
// the process, e.g. in webhook notifications. Six characters is roughly
// a 1.2 km by 0.6 km cell, coarse enough not to pinpoint an address.
const CoarsePrecision = 6

// geohashAlphabet is the standard geohash base32 alphabet. It omits
// 'a', 'i', 'l', and 'o'.
const geohashAlphabet = "0123456789bcdefghjkmnpqrstuvwxyz"

var geohashChars = func() map[rune]bool {
	chars := make(map[rune]bool, len(geohashAlphabet))
	for _, c := range geohashAlphabet {
		chars[c] = true
	}
	return chars
}()

// EncodeGeohash encodes a coordinate pair into a geohash of the given
// length. A precision below 1 falls back to CoarsePrecision.
func EncodeGeohash(lat, lng float64, precision int) string {
	if precision < 1 {
		precision = CoarsePrecision
	}

	latLo, latHi := -90.0, 90.0
	lngLo, lngHi := -180.0, 180.0

	var out strings.Builder
	out.Grow(precision)

	bits := 0
	var ch uint

	// Bits alternate between longitude and latitude, longitude first.
	lngTurn := true
	for out.Len() < precision {
		if lngTurn {
			mid := (lngLo + lngHi) / 2
			if lng > mid {
				ch |= 1 << (4 - bits)
				lngLo = mid
			} else {
				lngHi = mid
			}
		} else {
			mid := (latLo + latHi) / 2
			if lat > mid {
				ch |= 1 << (4 - bits)
				latLo = mid
			} else {
				latHi = mid
			}
		}

		lngTurn = !lngTurn
		bits++

		if bits == 5 {
			out.WriteByte(geohashAlphabet[ch])
			bits = 0
			ch = 0
		}
	}

	return out.String()
}

// TruncateGeohash lowers the resolution of an existing geohash to the
// given precision. Returns "" for empty input, invalid characters, or a
// precision below 1; input already at or below the precision is returned
// lowercased.
func TruncateGeohash(hash string, precision int) string {
	if hash == "" || precision < 1 {
		return ""
	}

	lower := strings.ToLower(hash)
	for _, c := range lower {
		if !geohashChars[c] {
			return ""
		}
	}

	if len(lower) <= precision {
		return lower
	}
	return lower[:precision]
}
