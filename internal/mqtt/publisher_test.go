package mqtt

import (
	"encoding/json"
	"testing"
)

func TestSanitizeAddress(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"AA:BB:CC:DD:EE:FF", "aabbccddeeff"},
		{"aa:bb:cc:dd:ee:ff", "aabbccddeeff"},
		{"1C0734A5-9F73-4D8A-B3F1-2A79C8E1B0AD", "1c0734a59f734d8ab3f12a79c8e1b0ad"},
		{"plain", "plain"},
	}

	for _, tt := range tests {
		if got := sanitizeAddress(tt.input); got != tt.want {
			t.Errorf("sanitizeAddress(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestReadingTopic(t *testing.T) {
	got := readingTopic("sencorscale", "AA:BB:CC:DD:EE:FF")
	want := "sencorscale/aabbccddeeff/weight"
	if got != want {
		t.Errorf("readingTopic() = %q, want %q", got, want)
	}
}

func TestDiscoveryTopic(t *testing.T) {
	got := discoveryTopic("homeassistant", "AA:BB:CC:DD:EE:FF")
	want := "homeassistant/sensor/sencorscale_aabbccddeeff/weight/config"
	if got != want {
		t.Errorf("discoveryTopic() = %q, want %q", got, want)
	}
}

func TestNewDiscoveryConfig(t *testing.T) {
	cfg := newDiscoveryConfig("sencorscale", "AA:BB", "kitchen")

	if cfg.Name != "kitchen" {
		t.Errorf("Name = %q, want %q", cfg.Name, "kitchen")
	}
	if cfg.UniqueID != "sencorscale_aabb" {
		t.Errorf("UniqueID = %q, want %q", cfg.UniqueID, "sencorscale_aabb")
	}
	if cfg.StateTopic != "sencorscale/aabb/weight" {
		t.Errorf("StateTopic = %q, want %q", cfg.StateTopic, "sencorscale/aabb/weight")
	}
	if cfg.ValueTemplate != "{{ value_json.weight_g }}" {
		t.Errorf("ValueTemplate = %q", cfg.ValueTemplate)
	}
	if cfg.UnitOfMeasurement != "g" || cfg.DeviceClass != "weight" {
		t.Errorf("unit/class = %q/%q, want g/weight", cfg.UnitOfMeasurement, cfg.DeviceClass)
	}
}

func TestNewDiscoveryConfigDefaultName(t *testing.T) {
	cfg := newDiscoveryConfig("sencorscale", "AA:BB", "")

	if cfg.Name != "Kitchen Scale aabb" {
		t.Errorf("Name = %q, want %q", cfg.Name, "Kitchen Scale aabb")
	}
	if cfg.Device.Name != cfg.Name {
		t.Errorf("Device.Name = %q, want %q", cfg.Device.Name, cfg.Name)
	}
}

func TestReadingJSONShape(t *testing.T) {
	data, err := json.Marshal(Reading{Address: "AA:BB", Name: "kitchen", WeightG: 300})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["weight_g"] != float64(300) {
		t.Errorf("weight_g = %v, want 300", decoded["weight_g"])
	}
	if decoded["address"] != "AA:BB" {
		t.Errorf("address = %v, want AA:BB", decoded["address"])
	}
}
