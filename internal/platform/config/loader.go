package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	platformerrors "refract-server-go/internal/platform/errors"
)

// Loader assembles the configuration in layers: defaults, then the YAML
// file, then environment overrides.
type Loader struct {
	path      string
	useDotEnv bool
}

func NewLoader() *Loader {
	return &Loader{useDotEnv: true}
}

// WithPath overrides the config file location. An empty path falls back
// to REFRACT_CONFIG and then ./config.yaml.
func (l *Loader) WithPath(path string) *Loader {
	l.path = path
	return l
}

// WithDotEnv toggles loading a .env file before reading the environment.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// Result captures the loaded configuration and its origin path. Path is
// empty when no config file was found.
type Result struct {
	Config *Config
	Path   string
}

func (l *Loader) Load() (*Result, error) {
	const op = "config.load"

	if l.useDotEnv {
		// missing .env just means the environment is already set
		_ = godotenv.Load()
	}

	cfg := DefaultConfig()

	path := l.path
	if path == "" {
		path = os.Getenv("REFRACT_CONFIG")
	}
	explicit := path != ""
	if path == "" {
		path = "config.yaml"
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, platformerrors.Wrap(platformerrors.KindConfig, op,
				"parsing "+path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		path = ""
	default:
		return nil, platformerrors.Wrap(platformerrors.KindConfig, op,
			"reading "+path, err)
	}

	applyEnv(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return &Result{Config: cfg, Path: path}, nil
}

// applyEnv overlays REFRACT_* variables onto the loaded configuration.
func applyEnv(cfg *Config) {
	envString("REFRACT_SERVER_IP", &cfg.Server.IP)
	envInt("REFRACT_SERVER_PORT", &cfg.Server.Port)
	envBool("REFRACT_DEBUG", &cfg.Server.Debug)

	envString("REFRACT_LOG_LEVEL", &cfg.Log.Level)
	envString("REFRACT_LOG_FORMAT", &cfg.Log.Format)

	envString("REFRACT_SECRET", &cfg.Security.Secret)
	envBool("REFRACT_ALLOW_UNSAFE", &cfg.Security.AllowUnsafe)
	envInt64("REFRACT_MAX_FILE_SIZE", &cfg.Security.MaxFileSize)
	envInt("REFRACT_MAX_WIDTH", &cfg.Security.MaxWidth)
	envInt("REFRACT_MAX_HEIGHT", &cfg.Security.MaxHeight)
	envInt64("REFRACT_MAX_PIXELS", &cfg.Security.MaxPixels)

	if v := os.Getenv("REFRACT_ALLOWED_SOURCES"); v != "" {
		cfg.HTTPLoader.AllowedSources = strings.Split(v, ",")
	}
	envDuration("REFRACT_LOAD_TIMEOUT", &cfg.Processor.LoadTimeout)
	envDuration("REFRACT_PROCESS_TIMEOUT", &cfg.Processor.ProcessTimeout)
	envBool("REFRACT_IGNORE_UNKNOWN_FILTERS", &cfg.Processor.IgnoreUnknownFilters)

	envString("REFRACT_RESULT_STORAGE", &cfg.ResultStorage.Type)
	envDuration("REFRACT_RESULT_TTL", &cfg.ResultStorage.TTL)
	envString("REFRACT_REDIS_ADDR", &cfg.ResultStorage.Redis.Addr)
	envString("REFRACT_REDIS_PASSWORD", &cfg.ResultStorage.Redis.Password)

	envBool("REFRACT_S3_ENABLED", &cfg.S3.Enabled)
	envString("REFRACT_S3_ENDPOINT", &cfg.S3.Endpoint)
	envString("REFRACT_S3_ACCESS_KEY", &cfg.S3.AccessKey)
	envString("REFRACT_S3_SECRET_KEY", &cfg.S3.SecretKey)
	envString("REFRACT_S3_BUCKET", &cfg.S3.Bucket)
}

func validate(cfg *Config) error {
	const op = "config.validate"

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return platformerrors.Newf(platformerrors.KindConfig, op,
			"server port %d out of range", cfg.Server.Port)
	}
	if !cfg.Security.AllowUnsafe && cfg.Security.Secret == "" {
		return platformerrors.New(platformerrors.KindConfig, op,
			"a signing secret is required unless unsafe requests are allowed")
	}
	switch cfg.ResultStorage.Type {
	case "", "none", "file", "redis", "s3":
	default:
		return platformerrors.Newf(platformerrors.KindConfig, op,
			"unknown result storage type %q", cfg.ResultStorage.Type)
	}
	if cfg.ResultStorage.Type == "file" && cfg.ResultStorage.Root == "" {
		return platformerrors.New(platformerrors.KindConfig, op,
			"file result storage requires a root directory")
	}
	if cfg.ResultStorage.Type == "redis" && cfg.ResultStorage.Redis.Addr == "" {
		return platformerrors.New(platformerrors.KindConfig, op,
			"redis result storage requires an address")
	}
	if cfg.ResultStorage.Type == "s3" && !cfg.S3.Enabled {
		return platformerrors.New(platformerrors.KindConfig, op,
			"s3 result storage requires the s3 section to be enabled")
	}
	return nil
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			*dst = parsed
		}
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			*dst = parsed
		}
	}
}

func envInt64(key string, dst *int64) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = parsed
		}
	}
}

func envDuration(key string, dst *Duration) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			*dst = Duration(parsed)
		}
	}
}
