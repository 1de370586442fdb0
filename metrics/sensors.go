package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/eivy/smartthings-weather/classify"
	"github.com/eivy/smartthings-weather/smartthings"
)

// Sensor descriptions
var (
	temperature = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "temperature_celsius"),
		"The temperature reported by the device",
		[]string{"name", "id"}, nil,
	)

	humidity = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "humidity_percent"),
		"The relative humidity reported by the device",
		[]string{"name", "id"}, nil,
	)

	particulate = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "particulate_micrograms_per_cubic_meter"),
		"The particulate matter concentration by particle size",
		[]string{"name", "id", "size"}, nil,
	)

	pressure = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "pressure_hectopascals"),
		"The atmospheric pressure reported by the device",
		[]string{"name", "id"}, nil,
	)

	aqiLevel = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "aqi_level"),
		"The air quality health concern level (0 = unknown, 6 = hazardous)",
		[]string{"name", "id"}, nil,
	)

	clothingBand = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "clothing_band"),
		"The current clothing band (1 for the active band)",
		[]string{"name", "id", "band"}, nil,
	)
)

func describeSensors(ch chan<- *prometheus.Desc) {
	ch <- temperature
	ch <- humidity
	ch <- particulate
	ch <- pressure
	ch <- aqiLevel
	ch <- clothingBand
}

type sensorState struct {
	ID      string
	Name    string
	Reading smartthings.Reading
	AQI     classify.AQI
}

func (s *sensorState) collect(ch chan<- prometheus.Metric) {
	r := s.Reading
	if r.Temperature != nil {
		ch <- prometheus.MustNewConstMetric(temperature, prometheus.GaugeValue, *r.Temperature, s.Name, s.ID)
		band := classify.ClothingFor(*r.Temperature)
		ch <- prometheus.MustNewConstMetric(clothingBand, prometheus.GaugeValue, 1, s.Name, s.ID, band.Name.String())
	}
	if r.Humidity != nil {
		ch <- prometheus.MustNewConstMetric(humidity, prometheus.GaugeValue, *r.Humidity, s.Name, s.ID)
	}
	for size, v := range map[string]*float64{"pm1": r.PM1, "pm2.5": r.PM25, "pm10": r.PM10} {
		if v != nil {
			ch <- prometheus.MustNewConstMetric(particulate, prometheus.GaugeValue, *v, s.Name, s.ID, size)
		}
	}
	if r.Pressure != nil {
		ch <- prometheus.MustNewConstMetric(pressure, prometheus.GaugeValue, *r.Pressure, s.Name, s.ID)
	}
	if r.AQI != nil {
		ch <- prometheus.MustNewConstMetric(aqiLevel, prometheus.GaugeValue, float64(s.AQI), s.Name, s.ID)
	}
}

// UpdateReading stores the latest reading of a device.
func (c *Collector) UpdateReading(id, name string, r smartthings.Reading) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sensors[id] = &sensorState{
		ID:      id,
		Name:    name,
		Reading: r,
		AQI:     classify.AQICategoryFor(r.AQI).Level,
	}
	c.lastUpdateTime = c.now()
}

// ForgetSensors drops every stored reading, e.g. after logout.
func (c *Collector) ForgetSensors() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sensors = make(map[string]*sensorState)
}
