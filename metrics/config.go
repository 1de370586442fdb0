package metrics

// Config controls the Prometheus endpoint.
type Config struct {
	Enabled bool   `yaml:"Enabled" env:"METRICS_ENABLED"`
	Path    string `yaml:"Path" env:"METRICS_PATH"`
}

// DefaultPath is used when Config.Path is empty.
const DefaultPath = "/metrics"
