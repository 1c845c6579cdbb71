// Package config defines the application configuration and its loading from
// files, environment variables and command-line flags.
package config

import (
	"fmt"
	"time"

	"github.com/MeKo-Tech/recibo/internal/cropper"
	"github.com/MeKo-Tech/recibo/internal/ocr"
	"github.com/MeKo-Tech/recibo/internal/pipeline"
	"github.com/MeKo-Tech/recibo/internal/preprocess"
)

// Config is the complete configuration for the recibo application, covering
// the scan and serve commands. Values load from configuration files,
// environment variables (RECIBO_ prefix) and command-line flags.
type Config struct {
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	OCR        OCRConfig        `mapstructure:"ocr" yaml:"ocr" json:"ocr"`
	Preprocess PreprocessConfig `mapstructure:"preprocess" yaml:"preprocess" json:"preprocess"`
	Cropper    CropperConfig    `mapstructure:"cropper" yaml:"cropper" json:"cropper"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline" yaml:"pipeline" json:"pipeline"`
	Server     ServerConfig     `mapstructure:"server" yaml:"server" json:"server"`
}

// OCRConfig contains settings for the Tesseract backend and the pass
// orchestrator.
type OCRConfig struct {
	Language       string  `mapstructure:"language" yaml:"language" json:"language"`
	TessdataPrefix string  `mapstructure:"tessdata_prefix" yaml:"tessdata_prefix" json:"tessdata_prefix"`
	PassTimeoutSec int     `mapstructure:"pass_timeout_sec" yaml:"pass_timeout_sec" json:"pass_timeout_sec"`
	TimeoutSec     int     `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	EarlyExitConf  float64 `mapstructure:"early_exit_confidence" yaml:"early_exit_confidence" json:"early_exit_confidence"`
}

// PreprocessConfig contains image preparation settings.
type PreprocessConfig struct {
	MaxSide         int `mapstructure:"max_side" yaml:"max_side" json:"max_side"`
	MaxVariantBytes int `mapstructure:"max_variant_bytes" yaml:"max_variant_bytes" json:"max_variant_bytes"`
	JPEGQuality     int `mapstructure:"jpeg_quality" yaml:"jpeg_quality" json:"jpeg_quality"`
}

// CropperConfig contains document cropping settings.
type CropperConfig struct {
	TargetWidth  int     `mapstructure:"target_width" yaml:"target_width" json:"target_width"`
	WidthMargin  float64 `mapstructure:"width_margin" yaml:"width_margin" json:"width_margin"`
	HeightMargin float64 `mapstructure:"height_margin" yaml:"height_margin" json:"height_margin"`
	MinAreaRatio float64 `mapstructure:"min_area_ratio" yaml:"min_area_ratio" json:"min_area_ratio"`
}

// PipelineConfig contains settings for the whole extraction run.
type PipelineConfig struct {
	RequestTimeoutSec    int     `mapstructure:"request_timeout_sec" yaml:"request_timeout_sec" json:"request_timeout_sec"`
	AutoApplyCorrections bool    `mapstructure:"auto_apply_corrections" yaml:"auto_apply_corrections" json:"auto_apply_corrections"`
	AutoApplyThreshold   float64 `mapstructure:"auto_apply_threshold" yaml:"auto_apply_threshold" json:"auto_apply_threshold"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string `mapstructure:"host" yaml:"host" json:"host"`
	Port            int    `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB     int    `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// DefaultConfig returns the configuration defaults, derived from the
// component defaults so there is a single source of truth for each value.
func DefaultConfig() *Config {
	pl := pipeline.DefaultConfig()
	return &Config{
		LogLevel: "info",
		OCR: OCRConfig{
			Language:       "eng",
			PassTimeoutSec: int(pl.OCR.PassTimeout / time.Second),
			TimeoutSec:     int(pl.OCR.OverallTimeout / time.Second),
			EarlyExitConf:  pl.OCR.EarlyExitConfidence,
		},
		Preprocess: PreprocessConfig{
			MaxSide:         pl.Preprocess.MaxSide,
			MaxVariantBytes: pl.Preprocess.MaxVariantBytes,
			JPEGQuality:     pl.Preprocess.JPEGQuality,
		},
		Cropper: CropperConfig{
			TargetWidth:  pl.Cropper.TargetWidth,
			WidthMargin:  pl.Cropper.WidthMargin,
			HeightMargin: pl.Cropper.HeightMargin,
			MinAreaRatio: pl.Cropper.MinAreaRatio,
		},
		Pipeline: PipelineConfig{
			RequestTimeoutSec:  int(pl.RequestTimeout / time.Second),
			AutoApplyThreshold: pl.AutoApplyThreshold,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			CORSOrigin:      "*",
			MaxUploadMB:     5,
			ShutdownTimeout: 10,
		},
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q (want debug, info, warn or error)", c.LogLevel)
	}
	if c.OCR.PassTimeoutSec <= 0 {
		return fmt.Errorf("ocr.pass_timeout_sec must be positive, got %d", c.OCR.PassTimeoutSec)
	}
	if c.OCR.TimeoutSec < c.OCR.PassTimeoutSec {
		return fmt.Errorf("ocr.timeout_sec (%d) must be at least ocr.pass_timeout_sec (%d)",
			c.OCR.TimeoutSec, c.OCR.PassTimeoutSec)
	}
	if c.OCR.EarlyExitConf < 0 || c.OCR.EarlyExitConf > 1 {
		return fmt.Errorf("ocr.early_exit_confidence must be in [0,1], got %g", c.OCR.EarlyExitConf)
	}
	if c.Preprocess.MaxSide < 100 {
		return fmt.Errorf("preprocess.max_side must be at least 100, got %d", c.Preprocess.MaxSide)
	}
	if c.Preprocess.JPEGQuality < 1 || c.Preprocess.JPEGQuality > 100 {
		return fmt.Errorf("preprocess.jpeg_quality must be in [1,100], got %d", c.Preprocess.JPEGQuality)
	}
	if c.Cropper.MinAreaRatio <= 0 || c.Cropper.MinAreaRatio > 1 {
		return fmt.Errorf("cropper.min_area_ratio must be in (0,1], got %g", c.Cropper.MinAreaRatio)
	}
	if c.Pipeline.AutoApplyThreshold < 0 || c.Pipeline.AutoApplyThreshold > 1 {
		return fmt.Errorf("pipeline.auto_apply_threshold must be in [0,1], got %g", c.Pipeline.AutoApplyThreshold)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in [1,65535], got %d", c.Server.Port)
	}
	if c.Server.MaxUploadMB < 1 {
		return fmt.Errorf("server.max_upload_mb must be at least 1, got %d", c.Server.MaxUploadMB)
	}
	return nil
}

// ToPipelineConfig converts the flat file/env representation into the
// pipeline's native configuration.
func (c *Config) ToPipelineConfig() pipeline.Config {
	return pipeline.Config{
		Preprocess: preprocess.Config{
			MaxSide:         c.Preprocess.MaxSide,
			MaxVariantBytes: c.Preprocess.MaxVariantBytes,
			JPEGQuality:     c.Preprocess.JPEGQuality,
		},
		Cropper: cropper.Config{
			TargetWidth:  c.Cropper.TargetWidth,
			WidthMargin:  c.Cropper.WidthMargin,
			HeightMargin: c.Cropper.HeightMargin,
			MinAreaRatio: c.Cropper.MinAreaRatio,
		},
		OCR: ocr.Config{
			PassTimeout:         time.Duration(c.OCR.PassTimeoutSec) * time.Second,
			OverallTimeout:      time.Duration(c.OCR.TimeoutSec) * time.Second,
			EarlyExitConfidence: c.OCR.EarlyExitConf,
			MinTextChars:        ocr.DefaultConfig().MinTextChars,
			SegModes:            ocr.DefaultSegModes,
		},
		RequestTimeout:       time.Duration(c.Pipeline.RequestTimeoutSec) * time.Second,
		AutoApplyCorrections: c.Pipeline.AutoApplyCorrections,
		AutoApplyThreshold:   c.Pipeline.AutoApplyThreshold,
	}
}
