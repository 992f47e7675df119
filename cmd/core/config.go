package core

// Config holds settings that cut across every component.
type Config struct {
	// StrictMode refuses configurations that are unsafe outside development,
	// e.g. running without an audit retention policy.
	StrictMode bool `koanf:"strictmode"`
}

func DefaultConfig() Config {
	return Config{
		StrictMode: true,
	}
}
