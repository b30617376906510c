package collector

import "time"

// Config contains configurable parameters for metric collection.
type Config struct {
	SampleTimeout   time.Duration // Timeout for one local sample (default: 5s)
	DiskPath        string        // Root filesystem to report through Disk (default: "/")
	TopProcessCount int           // Number of top processes to collect (default: 15)
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		SampleTimeout:   5 * time.Second,
		DiskPath:        "/",
		TopProcessCount: 15,
	}
}
