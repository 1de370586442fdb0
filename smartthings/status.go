package smartthings

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Attribute is the last reported state of one capability attribute.
type Attribute struct {
	Value     interface{} `json:"value"`
	Unit      string      `json:"unit,omitempty"`
	Timestamp string      `json:"timestamp,omitempty"`
}

// Time parses Timestamp, returning the zero time when it is absent or
// malformed.
func (a Attribute) Time() time.Time {
	t, err := time.Parse(time.RFC3339Nano, a.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Float returns the attribute value as a number. Numeric strings are
// accepted.
func (a Attribute) Float() (float64, bool) {
	var f float64
	switch v := a.Value.(type) {
	case float64:
		f = v
	case json.Number:
		n, err := v.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		f = n
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Status is the main component status: capability -> attribute -> state.
type Status map[string]map[string]Attribute

// Attribute looks up one attribute.
func (s Status) Attribute(capability, attribute string) (Attribute, bool) {
	attrs, ok := s[capability]
	if !ok {
		return Attribute{}, false
	}
	a, ok := attrs[attribute]
	if !ok || a.Value == nil {
		return Attribute{}, false
	}
	return a, true
}

// Reading is the subset of a status the dashboard shows. Missing or
// non-numeric attributes are nil. Temperature is in °C and Pressure in hPa.
type Reading struct {
	Temperature *float64    `json:"temperature,omitempty"`
	Humidity    *float64    `json:"humidity,omitempty"`
	PM1         *float64    `json:"pm1,omitempty"`
	PM25        *float64    `json:"pm25,omitempty"`
	PM10        *float64    `json:"pm10,omitempty"`
	Pressure    *float64    `json:"pressure,omitempty"`
	AQI         interface{} `json:"aqi,omitempty"`
	// UpdatedAt is the newest attribute timestamp in the reading.
	UpdatedAt time.Time `json:"updatedAt"`
}

// Reading maps the status to the dashboard's measurements.
func (s Status) Reading() Reading {
	var r Reading
	r.Temperature = s.number("temperatureMeasurement", "temperature", &r, celsius)
	r.Humidity = s.number("relativeHumidityMeasurement", "humidity", &r, nil)
	r.PM1 = s.number("veryFineDustSensor", "veryFineDustLevel", &r, nil)
	r.PM25 = s.number("fineDustSensor", "fineDustLevel", &r, nil)
	r.PM10 = s.number("dustSensor", "dustLevel", &r, nil)
	r.Pressure = s.number("atmosphericPressureMeasurement", "atmosphericPressure", &r, hectopascal)
	if a, ok := s.Attribute("airQualityHealthConcern", "airQualityHealthConcern"); ok {
		r.AQI = a.Value
		r.touch(a)
	}
	return r
}

func (s Status) number(capability, attribute string, r *Reading, convert func(float64, string) float64) *float64 {
	a, ok := s.Attribute(capability, attribute)
	if !ok {
		return nil
	}
	f, ok := a.Float()
	if !ok {
		return nil
	}
	if convert != nil {
		f = convert(f, a.Unit)
	}
	r.touch(a)
	return &f
}

func (r *Reading) touch(a Attribute) {
	if t := a.Time(); t.After(r.UpdatedAt) {
		r.UpdatedAt = t
	}
}

func celsius(v float64, unit string) float64 {
	if strings.EqualFold(unit, "F") {
		return (v - 32) * 5 / 9
	}
	return v
}

func hectopascal(v float64, unit string) float64 {
	switch strings.ToLower(unit) {
	case "kpa":
		return v * 10
	case "pa":
		return v / 100
	case "inhg":
		return v * 33.8639
	}
	return v
}
