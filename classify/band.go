package classify

import (
	"fmt"
	"math"
)

// BandName identifies a clothing temperature band
type BandName int

const (
	// Freezing is at or below 0°C
	Freezing BandName = iota
	// Cold is up to 10°C
	Cold
	// Cool is up to 15°C
	Cool
	// Mild is up to 20°C
	Mild
	// Warm is up to 25°C
	Warm
	// Hot is up to 30°C
	Hot
	// VeryHot is anything above 30°C
	VeryHot
)

func (b BandName) String() string {
	switch b {
	case Freezing:
		return "freezing"
	case Cold:
		return "cold"
	case Cool:
		return "cool"
	case Mild:
		return "mild"
	case Warm:
		return "warm"
	case Hot:
		return "hot"
	case VeryHot:
		return "veryhot"
	default:
		return "unknown"
	}
}

// MarshalText lets BandName be used as a JSON value and map key
func (b BandName) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// MarshalYAML define custom marshaling for BandName
func (b BandName) MarshalYAML() (interface{}, error) {
	return b.String(), nil
}

// UnmarshalYAML define custom unmarshaling for BandName
func (b *BandName) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var aux string
	if err := unmarshal(&aux); err != nil {
		return err
	}
	for _, band := range bands {
		if band.Name.String() == aux {
			*b = band.Name
			return nil
		}
	}
	return fmt.Errorf("unknown temperature band %q", aux)
}

// Band is the clothing recommendation for a temperature range.
type Band struct {
	Name  BandName `json:"name"`
	Max   float64  `json:"-"`
	Items []string `json:"items"`
	Color Color    `json:"color"`
}

// bands is ordered by ascending upper bound. The last entry is unbounded.
var bands = []Band{
	{Name: Freezing, Max: 0, Items: []string{"❄️ Heavy Coat", "🧤 Gloves", "🧣 Scarf", "🎿 Warm Boots"}, Color: "#0066ff"},
	{Name: Cold, Max: 10, Items: []string{"🧥 Jacket", "👖 Long Pants", "👢 Shoes"}, Color: "#0099ff"},
	{Name: Cool, Max: 15, Items: []string{"🧥 Light Jacket", "👖 Long Pants", "👟 Sneakers"}, Color: "#00ccff"},
	{Name: Mild, Max: 20, Items: []string{"👕 Long Sleeve Shirt", "👖 Long Pants"}, Color: "#00ff99"},
	{Name: Warm, Max: 25, Items: []string{"👕 T-Shirt", "👖 Shorts or Light Pants"}, Color: "#ffff00"},
	{Name: Hot, Max: 30, Items: []string{"👕 T-Shirt", "🩳 Shorts"}, Color: "#ff9900"},
	{Name: VeryHot, Max: math.Inf(1), Items: []string{"👕 Light T-Shirt", "🩳 Shorts", "🕶️ Sunglasses"}, Color: "#ff3300"},
}

// ClothingFor returns the first band whose upper bound is at or above tempC.
// NaN falls through to the unbounded top band.
func ClothingFor(tempC float64) Band {
	for _, b := range bands {
		if tempC <= b.Max {
			return b.clone()
		}
	}
	return bands[len(bands)-1].clone()
}

func (b Band) clone() Band {
	b.Items = append([]string(nil), b.Items...)
	return b
}
