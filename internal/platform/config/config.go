// Package config resolves the corpus pipeline's configuration from
// environment variables with an optional YAML overlay, mirroring
// qdrant.Config / qdrant.ResolveConfigFromEnv's env-first, typed-error
// validation style.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/qrvid/corpus/internal/platform/corerr"
	"github.com/qrvid/corpus/internal/platform/envutil"
)

// ECL is a QR error-correction level.
type ECL string

const (
	ECLLow     ECL = "L"
	ECLMedium  ECL = "M"
	ECLQuartile ECL = "Q"
	ECLHigh    ECL = "H"
)

func (e ECL) Valid() bool {
	switch e {
	case ECLLow, ECLMedium, ECLQuartile, ECLHigh:
		return true
	default:
		return false
	}
}

// Config holds every tunable named in spec.md §6.
type Config struct {
	ChunkSize      int     `yaml:"chunk_size"`
	ChunkOverlap   int     `yaml:"chunk_overlap"`
	VideoFPS       float64 `yaml:"video_fps"`
	ECL            ECL     `yaml:"qr_error_correction_level"`
	VideoWidth     int     `yaml:"video_width"`
	VideoHeight    int     `yaml:"video_height"`
	Verbose        bool    `yaml:"verbose"`
	MaxCacheSize   int     `yaml:"max_cache_size"`
	EncoderBinary  string  `yaml:"encoder_binary"`  // ffmpeg
	ProbeBinary    string  `yaml:"probe_binary"`    // ffprobe
	ModuleMargin   int     `yaml:"module_margin"`
	MaxEncodeConcurrency int `yaml:"max_encode_concurrency"`
	EmbedTimeoutSeconds  int `yaml:"embed_timeout_seconds"`
}

// Default returns the defaults named throughout spec.md §4 and §6.
func Default() Config {
	return Config{
		ChunkSize:            500,
		ChunkOverlap:         50,
		VideoFPS:             1,
		ECL:                  ECLMedium,
		VideoWidth:           256,
		VideoHeight:          256,
		Verbose:              false,
		MaxCacheSize:         50,
		EncoderBinary:        "ffmpeg",
		ProbeBinary:          "ffprobe",
		ModuleMargin:         1,
		MaxEncodeConcurrency: 0, // 0 means "number of cores", resolved by the caller
		EmbedTimeoutSeconds:  30,
	}
}

// Validate enforces the invariants spec.md §4.1 and §4.2 require at
// construction time. It never mutates cfg.
func (cfg Config) Validate() error {
	if cfg.ChunkSize <= 0 {
		return corerr.Config("config", "chunk_size must be positive")
	}
	if cfg.ChunkOverlap < 0 {
		return corerr.Config("config", "chunk_overlap must not be negative")
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		return corerr.Config("config", fmt.Sprintf(
			"chunk_overlap (%d) must be strictly less than chunk_size (%d)",
			cfg.ChunkOverlap, cfg.ChunkSize,
		))
	}
	if cfg.VideoFPS <= 0 {
		return corerr.Config("config", "video_fps must be positive")
	}
	if !cfg.ECL.Valid() {
		return corerr.Config("config", fmt.Sprintf("unknown qr_error_correction_level %q", cfg.ECL))
	}
	if cfg.VideoWidth <= 0 || cfg.VideoHeight <= 0 {
		return corerr.Config("config", "video_width and video_height must be positive")
	}
	if cfg.MaxCacheSize <= 0 {
		return corerr.Config("config", "max_cache_size must be positive")
	}
	if strings.TrimSpace(cfg.EncoderBinary) == "" {
		return corerr.Config("config", "encoder_binary must not be empty")
	}
	if strings.TrimSpace(cfg.ProbeBinary) == "" {
		return corerr.Config("config", "probe_binary must not be empty")
	}
	return nil
}

// ResolveFromEnv overlays environment variables onto the defaults, then
// validates the result.
func ResolveFromEnv() (Config, error) {
	cfg := Default()
	cfg.ChunkSize = envutil.Int("CORPUS_CHUNK_SIZE", cfg.ChunkSize)
	cfg.ChunkOverlap = envutil.Int("CORPUS_CHUNK_OVERLAP", cfg.ChunkOverlap)
	cfg.VideoFPS = envutil.Float("CORPUS_VIDEO_FPS", cfg.VideoFPS)
	cfg.ECL = ECL(strings.ToUpper(envutil.String("CORPUS_QR_ECL", string(cfg.ECL))))
	cfg.VideoWidth = envutil.Int("CORPUS_VIDEO_WIDTH", cfg.VideoWidth)
	cfg.VideoHeight = envutil.Int("CORPUS_VIDEO_HEIGHT", cfg.VideoHeight)
	cfg.Verbose = envutil.Bool("CORPUS_VERBOSE", cfg.Verbose)
	cfg.MaxCacheSize = envutil.Int("CORPUS_MAX_CACHE_SIZE", cfg.MaxCacheSize)
	cfg.EncoderBinary = envutil.String("CORPUS_ENCODER_BINARY", cfg.EncoderBinary)
	cfg.ProbeBinary = envutil.String("CORPUS_PROBE_BINARY", cfg.ProbeBinary)
	cfg.ModuleMargin = envutil.Int("CORPUS_QR_MODULE_MARGIN", cfg.ModuleMargin)
	cfg.MaxEncodeConcurrency = envutil.Int("CORPUS_MAX_ENCODE_CONCURRENCY", cfg.MaxEncodeConcurrency)
	cfg.EmbedTimeoutSeconds = envutil.Int("CORPUS_EMBED_TIMEOUT_SECONDS", cfg.EmbedTimeoutSeconds)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadYAMLOverlay reads path (if it exists) and overlays its fields onto
// cfg, returning the merged, validated config. Fields absent from the
// YAML document are left untouched.
func LoadYAMLOverlay(cfg Config, path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, corerr.IO("config", "read yaml overlay", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, corerr.Config("config", "invalid yaml overlay: "+err.Error())
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
