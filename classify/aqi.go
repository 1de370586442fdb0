package classify

import (
	"encoding/json"
	"math"
	"strings"
)

// AQI is the air quality health concern level reported by a sensor.
type AQI int

const (
	// AQIUnknown is used for missing, unrecognized or out of range values
	AQIUnknown AQI = iota
	// AQIGood is good
	AQIGood
	// AQIModerate is also reported as "fair"
	AQIModerate
	// AQISlightlyUnhealthy is unhealthy for sensitive groups
	AQISlightlyUnhealthy
	// AQIUnhealthy is also reported as "poor"
	AQIUnhealthy
	// AQIVeryUnhealthy is also reported as "very poor"
	AQIVeryUnhealthy
	// AQIHazardous is also reported as "extremely poor"
	AQIHazardous
)

// AQICategory is the display data for one AQI level.
type AQICategory struct {
	Level   AQI    `json:"level"`
	Label   string `json:"label"`
	Message string `json:"message"`
	Color   Color  `json:"color"`
	Icon    string `json:"icon"`
}

// aqiCategories is indexed by AQI.
var aqiCategories = [...]AQICategory{
	AQIUnknown:           {Level: AQIUnknown, Label: "Unknown", Message: "Unknown", Color: "#cccccc", Icon: "❓"},
	AQIGood:              {Level: AQIGood, Label: "Good", Message: "Air quality is good", Color: "#28a745", Icon: "😀"},
	AQIModerate:          {Level: AQIModerate, Label: "Moderate", Message: "Acceptable air quality", Color: "#ffc107", Icon: "🙂"},
	AQISlightlyUnhealthy: {Level: AQISlightlyUnhealthy, Label: "Slightly Unhealthy", Message: "Sensitive groups should limit outdoor activity", Color: "#fd7e14", Icon: "😕"},
	AQIUnhealthy:         {Level: AQIUnhealthy, Label: "Unhealthy", Message: "WEAR MASK - Unhealthy air", Color: "#dc3545", Icon: "☹️"},
	AQIVeryUnhealthy:     {Level: AQIVeryUnhealthy, Label: "Very Unhealthy", Message: "STAY INDOORS - Very unhealthy", Color: "#6f42c1", Icon: "🤢"},
	AQIHazardous:         {Level: AQIHazardous, Label: "Hazardous", Message: "HAZARDOUS - DO NOT GO OUTSIDE", Color: "#721c24", Icon: "☠️"},
}

// aqiAliases maps normalized names to a level. Keys must already be
// lower-case with single spaces.
var aqiAliases = map[string]AQI{
	"unknown":            AQIUnknown,
	"good":               AQIGood,
	"moderate":           AQIModerate,
	"fair":               AQIModerate,
	"slightly unhealthy": AQISlightlyUnhealthy,
	"slightlyunhealthy":  AQISlightlyUnhealthy,
	"unhealthy":          AQIUnhealthy,
	"poor":               AQIUnhealthy,
	"very unhealthy":     AQIVeryUnhealthy,
	"veryunhealthy":      AQIVeryUnhealthy,
	"very poor":          AQIVeryUnhealthy,
	"extremely poor":     AQIHazardous,
	"extremelypoor":      AQIHazardous,
	"hazardous":          AQIHazardous,
}

func (a AQI) valid() bool {
	return a >= AQIUnknown && a <= AQIHazardous
}

func (a AQI) String() string {
	if !a.valid() {
		return aqiCategories[AQIUnknown].Label
	}
	return aqiCategories[a].Label
}

// MarshalText lets AQI be used as a JSON value
func (a AQI) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// MarshalYAML define custom marshaling for AQI
func (a AQI) MarshalYAML() (interface{}, error) {
	return a.String(), nil
}

// UnmarshalYAML define custom unmarshaling for AQI. Both level numbers and
// names are accepted, anything else becomes AQIUnknown.
func (a *AQI) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var aux interface{}
	if err := unmarshal(&aux); err != nil {
		return err
	}
	*a = AQICategoryFor(aux).Level
	return nil
}

// normalizeAQIName lower-cases s, collapses whitespace runs to one space
// and trims it.
func normalizeAQIName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// ResolveAQIName looks up a reported name in the alias table.
func ResolveAQIName(name string) (AQI, bool) {
	level, ok := aqiAliases[normalizeAQIName(name)]
	return level, ok
}

// AQICategoryForIndex returns the canonical entry for n, or Unknown when n
// is outside 0..6.
func AQICategoryForIndex(n int) AQICategory {
	level := AQI(n)
	if !level.valid() {
		level = AQIUnknown
	}
	return aqiCategories[level]
}

// AQICategoryForName resolves name through the alias table first and then
// indexes the canonical table with the result.
func AQICategoryForName(name string) AQICategory {
	level, ok := ResolveAQIName(name)
	if !ok {
		return aqiCategories[AQIUnknown]
	}
	return AQICategoryForIndex(int(level))
}

// AQICategoryFor accepts the value shapes a device reports: integers,
// integral floats, json.Number and names. Strings only go through the
// alias table, so "2" is Unknown.
func AQICategoryFor(v interface{}) AQICategory {
	switch value := v.(type) {
	case AQI:
		return AQICategoryForIndex(int(value))
	case int:
		return AQICategoryForIndex(value)
	case int64:
		if value < math.MinInt32 || value > math.MaxInt32 {
			return aqiCategories[AQIUnknown]
		}
		return AQICategoryForIndex(int(value))
	case float64:
		return aqiCategoryForFloat(value)
	case json.Number:
		if f, err := value.Float64(); err == nil {
			return aqiCategoryForFloat(f)
		}
		return AQICategoryForName(value.String())
	case string:
		return AQICategoryForName(value)
	default:
		return aqiCategories[AQIUnknown]
	}
}

func aqiCategoryForFloat(f float64) AQICategory {
	if f != math.Trunc(f) || f < float64(AQIUnknown) || f > float64(AQIHazardous) {
		return aqiCategories[AQIUnknown]
	}
	return AQICategoryForIndex(int(f))
}
