// Package config loads the server configuration from an optional YAML
// file, an optional .env file and REFRACT_* environment overrides.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Log           LogConfig           `yaml:"log"`
	Security      SecurityConfig      `yaml:"security"`
	HTTPLoader    HTTPLoaderConfig    `yaml:"http_loader"`
	FileStorage   FileStorageConfig   `yaml:"file_storage"`
	S3            S3Config            `yaml:"s3"`
	ResultStorage ResultStorageConfig `yaml:"result_storage"`
	Processor     ProcessorConfig     `yaml:"processor"`
}

type ServerConfig struct {
	IP    string `yaml:"ip"`
	Port  int    `yaml:"port"`
	Debug bool   `yaml:"debug"`
}

func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.IP, c.Port)
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type SecurityConfig struct {
	Secret      string `yaml:"secret"`
	AllowUnsafe bool   `yaml:"allow_unsafe"`
	MaxFileSize int64  `yaml:"max_file_size"`
	MaxWidth    int    `yaml:"max_width"`
	MaxHeight   int    `yaml:"max_height"`
	MaxPixels   int64  `yaml:"max_pixels"`
}

type HTTPLoaderConfig struct {
	AllowedSources []string `yaml:"allowed_sources"`
	MaxBodySize    int64    `yaml:"max_body_size"`
	Timeout        Duration `yaml:"timeout"`
	UserAgent      string   `yaml:"user_agent"`
	DefaultScheme  string   `yaml:"default_scheme"`
}

// FileStorageConfig describes the filesystem source storage. When enabled
// it is consulted before the HTTP fetch adaptor.
type FileStorageConfig struct {
	Enabled bool   `yaml:"enabled"`
	Root    string `yaml:"root"`
}

type S3Config struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
	Prefix    string `yaml:"prefix"`
}

// ResultStorageConfig selects the result cache backend. Type is one of
// none, file, redis or s3.
type ResultStorageConfig struct {
	Type  string      `yaml:"type"`
	Root  string      `yaml:"root"`
	TTL   Duration    `yaml:"ttl"`
	Redis RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type ProcessorConfig struct {
	LoadTimeout          Duration `yaml:"load_timeout"`
	ProcessTimeout       Duration `yaml:"process_timeout"`
	IgnoreUnknownFilters bool     `yaml:"ignore_unknown_filters"`
}

// Duration is a time.Duration that unmarshals from YAML duration strings
// like "30s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}
