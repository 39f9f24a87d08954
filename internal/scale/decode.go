// Package scale implements the device logic for Sencor BLE kitchen
// scales: decoding weight notifications, suppressing idle zero readings,
// caching the last weight per device, and supervising the connection to
// each configured scale.
package scale

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// AdvertisedName is the local name Sencor food scales advertise.
const AdvertisedName = "sencorfood"

// MatchesAdvertisedName reports whether a discovered device name belongs
// to a Sencor food scale. The scales append a suffix to the base name,
// so the match is a case-insensitive substring test.
func MatchesAdvertisedName(name string) bool {
	return strings.Contains(strings.ToLower(name), AdvertisedName)
}

// Details carries the raw payload fields a weight was decoded from.
type Details struct {
	RawHigh  byte
	RawLow   byte
	SignFlag byte
}

// Decode extracts a weight in grams from a notification payload.
//
// The scale encodes the magnitude big-endian in bytes 2 and 3 and the
// sign in byte 7 (1 means negative, any other value positive; payloads
// too short to carry byte 7 are positive). Payloads shorter than 4
// bytes carry no weight and return ok=false.
func Decode(payload []byte) (weight int, details Details, ok bool) {
	if len(payload) < 4 {
		return 0, Details{}, false
	}

	details.RawHigh = payload[2]
	details.RawLow = payload[3]
	if len(payload) > 7 {
		details.SignFlag = payload[7]
	}

	weight = int(uint16(details.RawHigh)<<8 | uint16(details.RawLow))
	if details.SignFlag == 1 {
		weight = -weight
	}
	return weight, details, true
}

// FormatPayload renders a notification payload as a timestamped debug
// line with hex and decimal views, plus the decoded weight when the
// payload carries one.
func FormatPayload(payload []byte) string {
	ts := time.Now().Format("2006-01-02 15:04:05.000")
	raw := make([]string, len(payload))
	for i, b := range payload {
		raw[i] = strconv.Itoa(int(b))
	}
	line := fmt.Sprintf("[%s] HEX: %x | RAW: [%s]", ts, payload, strings.Join(raw, ", "))
	if weight, _, ok := Decode(payload); ok {
		line += fmt.Sprintf(" | WEIGHT: %d", weight)
	}
	return line
}
