// Package config provides configuration loading and validation for pagecast
// using Viper. It supports configuration from files, environment variables,
// and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort         = 8096
	defaultServerTimeout      = 30 * time.Second
	defaultShutdownTimeout    = 10 * time.Second
	defaultNumBrowserMin      = 1
	defaultNumBrowserMax      = 5
	defaultNumPageMin         = 1
	defaultNumPageMax         = 5
	defaultAcquireTimeout     = 5 * time.Minute
	defaultLaunchTimeout      = 30 * time.Second
	defaultFrameTimeout       = 5 * time.Second
	defaultFrameQuality       = 80
	defaultMaxDownloads       = 10
	defaultMaxProcesses       = 10
	defaultRetryFetches       = 2
	defaultRetryDelay         = time.Second
	defaultDemuxTimeout       = 60 * time.Second
	defaultMaxDownloadSize    = 512 * 1024 * 1024 // 512MB
	defaultParallelFrames     = 10
	defaultEncodeQuality      = 100
	defaultAudioBitrate       = "320k"
	defaultDownloadTimeout    = 5 * time.Minute
	defaultFrameAcquireCeil   = 30 * time.Second
	defaultSaturationInterval = 5 * time.Second
)

// Config holds all configuration for the application.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Browser    BrowserConfig    `mapstructure:"browser"`
	Pool       PoolConfig       `mapstructure:"pool"`
	Capture    CaptureConfig    `mapstructure:"capture"`
	Preprocess PreprocessConfig `mapstructure:"preprocess"`
	Encoder    EncoderConfig    `mapstructure:"encoder"`
	FFmpeg     FFmpegConfig     `mapstructure:"ffmpeg"`
}

// ServerConfig holds HTTP status server configuration for `pagecast serve`.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// StorageConfig holds the temporary working tree layout.
// Each subdirectory has a dedicated clean operation.
type StorageConfig struct {
	BaseDir         string `mapstructure:"base_dir"`
	BrowserDir      string `mapstructure:"browser_dir"`
	PreprocessorDir string `mapstructure:"preprocessor_dir"`
	SynthesizerDir  string `mapstructure:"synthesizer_dir"`
	FontDir         string `mapstructure:"font_dir"`
}

// BrowserConfig holds browser launch configuration.
type BrowserConfig struct {
	ExecutablePath string `mapstructure:"executable_path"`
	Headless       bool   `mapstructure:"headless"`
	UseGPU         bool   `mapstructure:"use_gpu"`
	UseAngle       bool   `mapstructure:"use_angle"`
	// CompatibleRenderingMode disables deterministic beginFrame control and
	// falls back to plain screenshots on platforms where beginFrame is
	// unreliable.
	CompatibleRenderingMode bool          `mapstructure:"compatible_rendering_mode"`
	DebugFrontend           bool          `mapstructure:"debug_frontend"`
	LaunchTimeout           time.Duration `mapstructure:"launch_timeout"`
	ExtraArgs               []string      `mapstructure:"extra_args"`
}

// PoolConfig holds the two-tier resource pool bounds.
type PoolConfig struct {
	NumBrowserMin      int           `mapstructure:"num_browser_min"`
	NumBrowserMax      int           `mapstructure:"num_browser_max"`
	NumPageMin         int           `mapstructure:"num_page_min"`
	NumPageMax         int           `mapstructure:"num_page_max"`
	AcquireTimeout     time.Duration `mapstructure:"acquire_timeout"`
	SaturationInterval time.Duration `mapstructure:"saturation_interval"`
}

// CaptureConfig holds page capture behaviour.
type CaptureConfig struct {
	UserAgent string `mapstructure:"user_agent"`
	// FrameFormat is the screenshot encoding (jpeg or png). Pages with a
	// background opacity below 1 always capture png.
	FrameFormat  string        `mapstructure:"frame_format"`
	FrameQuality int           `mapstructure:"frame_quality"`
	FrameTimeout time.Duration `mapstructure:"frame_timeout"`
	// FrameAcquireTimeout bounds how long an in-page video decoder waits for
	// a single decoded frame.
	FrameAcquireTimeout time.Duration `mapstructure:"frame_acquire_timeout"`
	// AllowUnsafeContext permits navigation to plain-HTTP, non-loopback URLs.
	AllowUnsafeContext bool `mapstructure:"allow_unsafe_context"`
	// TimeActionsDrain fires every elapsed time action per tick instead of
	// only the earliest one.
	TimeActionsDrain bool `mapstructure:"time_actions_drain"`
	// DateNowEpsilon adds a +0.01ms monotonic increment to each Date.now()
	// call within one virtual tick. Compatibility shim for libraries that
	// require strictly increasing timestamps.
	DateNowEpsilon bool `mapstructure:"date_now_epsilon"`
	// VideoDecoderHardwareAcceleration is the WebCodecs hint passed to the
	// in-page decoder (no-preference, prefer-hardware, prefer-software).
	VideoDecoderHardwareAcceleration string `mapstructure:"video_decoder_hardware_acceleration"`
	// LottieURL is where the Lottie renderer distribution is fetched from
	// when it is not already present in the asset cache.
	LottieURL string `mapstructure:"lottie_url"`
}

// PreprocessConfig holds media preprocessor limits.
type PreprocessConfig struct {
	MaxDownloads    int           `mapstructure:"max_downloads"`
	MaxProcesses    int           `mapstructure:"max_processes"`
	RetryFetches    int           `mapstructure:"retry_fetches"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
	DemuxTimeout    time.Duration `mapstructure:"demux_timeout"`
	DownloadTimeout time.Duration `mapstructure:"download_timeout"`
	// MaxDownloadSize is the largest media asset the preprocessor will fetch.
	// Supports human-readable values like "512MB".
	MaxDownloadSize ByteSize `mapstructure:"max_download_size"`
}

// EncoderConfig holds frame encoder defaults.
type EncoderConfig struct {
	// ParallelWriteFrames is how many captured frames are batched into one
	// pipe write.
	ParallelWriteFrames int `mapstructure:"parallel_write_frames"`
	// Quality scales the computed default bitrate (1-100).
	Quality      int    `mapstructure:"quality"`
	AudioBitrate string `mapstructure:"audio_bitrate"`
}

// FFmpegConfig holds encoder binary configuration.
type FFmpegConfig struct {
	FFmpegPath  string `mapstructure:"ffmpeg_path"`
	FFprobePath string `mapstructure:"ffprobe_path"`
	LogLevel    string `mapstructure:"log_level"`
}

// Load reads configuration from the given file (or the default search path
// when file is empty), applies environment overrides and returns the
// validated config.
func Load(file string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/pagecast")
		v.SetConfigType("yaml")
		v.SetConfigName("pagecast")
	}

	v.SetEnvPrefix("PAGECAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks configuration invariants that would otherwise surface as
// undiagnosable failures mid-render.
func (c *Config) Validate() error {
	if c.Pool.NumBrowserMin < 0 || c.Pool.NumPageMin < 0 {
		return errors.New("pool minimums must not be negative")
	}
	if c.Pool.NumBrowserMax < 1 {
		return errors.New("pool.num_browser_max must be at least 1")
	}
	if c.Pool.NumPageMax < 1 {
		return errors.New("pool.num_page_max must be at least 1")
	}
	if c.Pool.NumBrowserMin > c.Pool.NumBrowserMax {
		return fmt.Errorf("pool.num_browser_min %d exceeds num_browser_max %d",
			c.Pool.NumBrowserMin, c.Pool.NumBrowserMax)
	}
	if c.Pool.NumPageMin > c.Pool.NumPageMax {
		return fmt.Errorf("pool.num_page_min %d exceeds num_page_max %d",
			c.Pool.NumPageMin, c.Pool.NumPageMax)
	}

	switch c.Capture.FrameFormat {
	case "jpeg", "png":
	default:
		return fmt.Errorf("unknown capture.frame_format %q", c.Capture.FrameFormat)
	}
	if c.Capture.FrameQuality < 1 || c.Capture.FrameQuality > 100 {
		return fmt.Errorf("capture.frame_quality %d out of range 1-100", c.Capture.FrameQuality)
	}

	switch c.Capture.VideoDecoderHardwareAcceleration {
	case "no-preference", "prefer-hardware", "prefer-software":
	default:
		return fmt.Errorf("unknown capture.video_decoder_hardware_acceleration %q",
			c.Capture.VideoDecoderHardwareAcceleration)
	}

	if c.Encoder.Quality < 1 || c.Encoder.Quality > 100 {
		return fmt.Errorf("encoder.quality %d out of range 1-100", c.Encoder.Quality)
	}
	if c.Encoder.ParallelWriteFrames < 1 {
		return errors.New("encoder.parallel_write_frames must be at least 1")
	}

	if c.Preprocess.MaxDownloads < 1 || c.Preprocess.MaxProcesses < 1 {
		return errors.New("preprocess concurrency bounds must be at least 1")
	}

	return nil
}

// SetDefaults configures default values for all configuration options.
func SetDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)

	// Logging
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Storage
	v.SetDefault("storage.base_dir", "tmp")
	v.SetDefault("storage.browser_dir", "browser")
	v.SetDefault("storage.preprocessor_dir", "preprocessor")
	v.SetDefault("storage.synthesizer_dir", "synthesizer")
	v.SetDefault("storage.font_dir", "local_font")

	// Browser
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.use_gpu", true)
	v.SetDefault("browser.use_angle", true)
	v.SetDefault("browser.compatible_rendering_mode", false)
	v.SetDefault("browser.debug_frontend", false)
	v.SetDefault("browser.launch_timeout", defaultLaunchTimeout)

	// Pool
	v.SetDefault("pool.num_browser_min", defaultNumBrowserMin)
	v.SetDefault("pool.num_browser_max", defaultNumBrowserMax)
	v.SetDefault("pool.num_page_min", defaultNumPageMin)
	v.SetDefault("pool.num_page_max", defaultNumPageMax)
	v.SetDefault("pool.acquire_timeout", defaultAcquireTimeout)
	v.SetDefault("pool.saturation_interval", defaultSaturationInterval)

	// Capture
	v.SetDefault("capture.frame_format", "jpeg")
	v.SetDefault("capture.frame_quality", defaultFrameQuality)
	v.SetDefault("capture.frame_timeout", defaultFrameTimeout)
	v.SetDefault("capture.frame_acquire_timeout", defaultFrameAcquireCeil)
	v.SetDefault("capture.allow_unsafe_context", false)
	v.SetDefault("capture.time_actions_drain", false)
	v.SetDefault("capture.date_now_epsilon", true)
	v.SetDefault("capture.video_decoder_hardware_acceleration", "no-preference")
	v.SetDefault("capture.lottie_url", "https://cdnjs.cloudflare.com/ajax/libs/bodymovin/5.12.2/lottie.min.js")

	// Preprocess
	v.SetDefault("preprocess.max_downloads", defaultMaxDownloads)
	v.SetDefault("preprocess.max_processes", defaultMaxProcesses)
	v.SetDefault("preprocess.retry_fetches", defaultRetryFetches)
	v.SetDefault("preprocess.retry_delay", defaultRetryDelay)
	v.SetDefault("preprocess.demux_timeout", defaultDemuxTimeout)
	v.SetDefault("preprocess.download_timeout", defaultDownloadTimeout)
	v.SetDefault("preprocess.max_download_size", defaultMaxDownloadSize)

	// Encoder
	v.SetDefault("encoder.parallel_write_frames", defaultParallelFrames)
	v.SetDefault("encoder.quality", defaultEncodeQuality)
	v.SetDefault("encoder.audio_bitrate", defaultAudioBitrate)

	// FFmpeg
	v.SetDefault("ffmpeg.ffmpeg_path", "")
	v.SetDefault("ffmpeg.ffprobe_path", "")
	v.SetDefault("ffmpeg.log_level", "error")
}
