package config

import "time"

// DefaultConfig returns the configuration used when no file and no
// overrides are present. Unsafe requests are disabled by default; a
// deployment must opt in explicitly.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			IP:   "0.0.0.0",
			Port: 8000,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Security: SecurityConfig{
			AllowUnsafe: false,
			MaxFileSize: 32 << 20,
			MaxWidth:    16384,
			MaxHeight:   16384,
			MaxPixels:   64 << 20,
		},
		HTTPLoader: HTTPLoaderConfig{
			MaxBodySize:   32 << 20,
			Timeout:       Duration(20 * time.Second),
			DefaultScheme: "https",
		},
		ResultStorage: ResultStorageConfig{
			Type: "none",
			TTL:  Duration(24 * time.Hour),
		},
		Processor: ProcessorConfig{
			LoadTimeout:    Duration(20 * time.Second),
			ProcessTimeout: Duration(30 * time.Second),
		},
	}
}
