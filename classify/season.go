package classify

import (
	"fmt"
	"time"
)

// Season is a calendar season of the northern hemisphere
type Season int

const (
	// Winter is December to February
	Winter Season = iota
	// Spring is March to May
	Spring
	// Summer is June to August
	Summer
	// Autumn is September to November
	Autumn
)

func (s Season) String() string {
	switch s {
	case Winter:
		return "winter"
	case Spring:
		return "spring"
	case Summer:
		return "summer"
	case Autumn:
		return "autumn"
	default:
		return "unknown"
	}
}

// MarshalText lets Season be used as a JSON value
func (s Season) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// MarshalYAML define custom marshaling for Season
func (s Season) MarshalYAML() (interface{}, error) {
	return s.String(), nil
}

// UnmarshalYAML define custom unmarshaling for Season
func (s *Season) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var aux string
	if err := unmarshal(&aux); err != nil {
		return err
	}
	switch aux {
	case "winter":
		*s = Winter
	case "spring":
		*s = Spring
	case "summer":
		*s = Summer
	case "autumn":
		*s = Autumn
	default:
		return fmt.Errorf("unknown season %q", aux)
	}
	return nil
}

// SeasonFor maps a month to its season.
func SeasonFor(m time.Month) Season {
	switch {
	case m >= time.March && m <= time.May:
		return Spring
	case m >= time.June && m <= time.August:
		return Summer
	case m >= time.September && m <= time.November:
		return Autumn
	default:
		return Winter
	}
}
