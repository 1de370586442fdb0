package classify

// Color is a CSS hex color.
type Color string

// Grade is a severity tier for a measured value. Higher Level is worse.
type Grade struct {
	Level int    `json:"level"`
	Label string `json:"label"`
	Color Color  `json:"color"`
}

// ParticulateGrade applies to PM1, PM2.5 and PM10 concentrations in µg/m³.
func ParticulateGrade(concentration float64) Grade {
	switch {
	case concentration <= 12:
		return Grade{Level: 0, Label: "good", Color: "#00aa00"}
	case concentration <= 35:
		return Grade{Level: 1, Label: "fair", Color: "#ffaa00"}
	case concentration <= 55:
		return Grade{Level: 2, Label: "moderate", Color: "#ff6600"}
	case concentration <= 150:
		return Grade{Level: 3, Label: "poor", Color: "#ff3300"}
	default:
		return Grade{Level: 4, Label: "very poor", Color: "#990000"}
	}
}

// ParticulateColor is the display color of ParticulateGrade.
func ParticulateColor(concentration float64) Color {
	return ParticulateGrade(concentration).Color
}

// HumidityGrade grades relative humidity in percent. Level here is the
// distance from the comfortable range, not a strict ordering.
func HumidityGrade(percent float64) Grade {
	switch {
	case percent < 30:
		return Grade{Level: 1, Label: "dry", Color: "#0099ff"}
	case percent < 50:
		return Grade{Level: 0, Label: "good", Color: "#00cc00"}
	case percent < 70:
		return Grade{Level: 1, Label: "humid", Color: "#ffaa00"}
	default:
		return Grade{Level: 2, Label: "very humid", Color: "#ff6600"}
	}
}

// HumidityColor is the display color of HumidityGrade.
func HumidityColor(percent float64) Color {
	return HumidityGrade(percent).Color
}

// PressureGrade grades atmospheric pressure in hPa. Falling pressure
// means weather is turning.
func PressureGrade(hPa float64) Grade {
	switch {
	case hPa >= 1013:
		return Grade{Level: 0, Label: "favorable", Color: "#00cc00"}
	case hPa >= 1009:
		return Grade{Level: 1, Label: "stable", Color: "#ffaa00"}
	default:
		return Grade{Level: 2, Label: "unfavorable", Color: "#ff6600"}
	}
}

// PressureColor is the display color of PressureGrade.
func PressureColor(hPa float64) Color {
	return PressureGrade(hPa).Color
}
