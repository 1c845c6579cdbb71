package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the base name for configuration files (without extension).
	ConfigFileName = "recibo"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "RECIBO"
)

// Loader resolves configuration from files, environment variables and flag
// bindings, in that precedence order (flags highest).
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader over the global viper instance so cobra flag
// bindings made by the root command are visible here.
func NewLoader() *Loader {
	return &Loader{v: viper.GetViper()}
}

// Load resolves the configuration from the standard search paths, the
// environment and any bound flags, then validates it. A missing config file
// is not an error; defaults apply.
func (l *Loader) Load() (*Config, error) {
	l.v.SetConfigName(ConfigFileName)
	l.v.SetConfigType("yaml")
	l.addConfigPaths()
	l.setupEnvironmentVariables()
	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return l.unmarshal()
}

// LoadWithFile resolves the configuration from a specific file path instead
// of the search paths. An empty path falls back to Load.
func (l *Loader) LoadWithFile(configFile string) (*Config, error) {
	if configFile == "" {
		return l.Load()
	}
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configFile)
	}

	l.v.SetConfigFile(configFile)
	l.setupEnvironmentVariables()
	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	return l.unmarshal()
}

func (l *Loader) unmarshal() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// Set overrides a value in the configuration. Used by tests and by commands
// that translate positional arguments into settings.
func (l *Loader) Set(key string, value interface{}) {
	l.v.Set(key, value)
}

// GetConfigFileUsed returns the path of the config file actually read.
func (l *Loader) GetConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// GetViper exposes the underlying viper instance for flag binding.
func (l *Loader) GetViper() *viper.Viper {
	return l.v
}

func (l *Loader) addConfigPaths() {
	l.v.AddConfigPath(".")

	if home, err := os.UserHomeDir(); err == nil {
		l.v.AddConfigPath(home)
	}

	l.v.AddConfigPath("/etc/recibo")

	if configDir, exists := os.LookupEnv("XDG_CONFIG_HOME"); exists {
		l.v.AddConfigPath(filepath.Join(configDir, "recibo"))
	} else if home, err := os.UserHomeDir(); err == nil {
		l.v.AddConfigPath(filepath.Join(home, ".config", "recibo"))
	}
}

func (l *Loader) setupEnvironmentVariables() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.AutomaticEnv()
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

func (l *Loader) setDefaults() {
	defaults := DefaultConfig()

	l.v.SetDefault("log_level", defaults.LogLevel)
	l.v.SetDefault("verbose", defaults.Verbose)

	l.v.SetDefault("ocr.language", defaults.OCR.Language)
	l.v.SetDefault("ocr.tessdata_prefix", defaults.OCR.TessdataPrefix)
	l.v.SetDefault("ocr.pass_timeout_sec", defaults.OCR.PassTimeoutSec)
	l.v.SetDefault("ocr.timeout_sec", defaults.OCR.TimeoutSec)
	l.v.SetDefault("ocr.early_exit_confidence", defaults.OCR.EarlyExitConf)

	l.v.SetDefault("preprocess.max_side", defaults.Preprocess.MaxSide)
	l.v.SetDefault("preprocess.max_variant_bytes", defaults.Preprocess.MaxVariantBytes)
	l.v.SetDefault("preprocess.jpeg_quality", defaults.Preprocess.JPEGQuality)

	l.v.SetDefault("cropper.target_width", defaults.Cropper.TargetWidth)
	l.v.SetDefault("cropper.width_margin", defaults.Cropper.WidthMargin)
	l.v.SetDefault("cropper.height_margin", defaults.Cropper.HeightMargin)
	l.v.SetDefault("cropper.min_area_ratio", defaults.Cropper.MinAreaRatio)

	l.v.SetDefault("pipeline.request_timeout_sec", defaults.Pipeline.RequestTimeoutSec)
	l.v.SetDefault("pipeline.auto_apply_corrections", defaults.Pipeline.AutoApplyCorrections)
	l.v.SetDefault("pipeline.auto_apply_threshold", defaults.Pipeline.AutoApplyThreshold)

	l.v.SetDefault("server.host", defaults.Server.Host)
	l.v.SetDefault("server.port", defaults.Server.Port)
	l.v.SetDefault("server.cors_origin", defaults.Server.CORSOrigin)
	l.v.SetDefault("server.max_upload_mb", defaults.Server.MaxUploadMB)
	l.v.SetDefault("server.shutdown_timeout", defaults.Server.ShutdownTimeout)
}

// GenerateDefaultConfigFile writes a config file populated with defaults.
func GenerateDefaultConfigFile(filename string) error {
	loader := NewLoader()
	loader.setDefaults()
	if filename == "" {
		filename = "recibo.yaml"
	}
	return loader.v.WriteConfigAs(filename)
}
