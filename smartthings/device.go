package smartthings

import (
	"sort"
	"strings"
)

// Device is a device as listed by GET /devices.
type Device struct {
	ID           string   `json:"id"`
	DisplayName  string   `json:"displayName"`
	Capabilities []string `json:"capabilities"`
}

// HasCapability reports whether any component of d has the capability.
func (d Device) HasCapability(id string) bool {
	for _, c := range d.Capabilities {
		if c == id {
			return true
		}
	}
	return false
}

// IsWeatherDevice reports whether d reports temperature, humidity or air
// quality.
func IsWeatherDevice(d Device) bool {
	for _, c := range weatherCapabilities {
		if d.HasCapability(c) {
			return true
		}
	}
	for _, c := range d.Capabilities {
		if strings.HasPrefix(c, "airQuality") {
			return true
		}
	}
	return false
}

var weatherCapabilities = []string{
	"temperatureMeasurement",
	"relativeHumidityMeasurement",
	"pm25Measurement",
}

// WeatherDevices filters devices down to the ones IsWeatherDevice accepts,
// keeping their order.
func WeatherDevices(devices []Device) []Device {
	var out []Device
	for _, d := range devices {
		if IsWeatherDevice(d) {
			out = append(out, d)
		}
	}
	return out
}

type deviceList struct {
	Items []apiDevice `json:"items"`
	Links struct {
		Next *struct {
			Href string `json:"href"`
		} `json:"next"`
	} `json:"_links"`
}

type apiDevice struct {
	DeviceID   string `json:"deviceId"`
	Name       string `json:"name"`
	Label      string `json:"label"`
	Components []struct {
		ID           string `json:"id"`
		Capabilities []struct {
			ID string `json:"id"`
		} `json:"capabilities"`
	} `json:"components"`
}

func (a apiDevice) device() Device {
	d := Device{ID: a.DeviceID, DisplayName: a.Label}
	if d.DisplayName == "" {
		d.DisplayName = a.Name
	}
	seen := make(map[string]bool)
	for _, comp := range a.Components {
		for _, c := range comp.Capabilities {
			if c.ID != "" && !seen[c.ID] {
				seen[c.ID] = true
				d.Capabilities = append(d.Capabilities, c.ID)
			}
		}
	}
	sort.Strings(d.Capabilities)
	return d
}
