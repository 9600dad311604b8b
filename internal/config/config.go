package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	// AppName is used for the config directory and env prefix
	AppName = "kartoza-screenmux"
	// DefaultConfigDir is the default configuration directory
	DefaultConfigDir = ".config/" + AppName
	// DefaultMoviesDir holds screen recordings and merged output
	DefaultMoviesDir = "Movies"
	// DefaultMusicDir holds the raw audio sinks
	DefaultMusicDir = "Music"
	// ConfigFileName is the name of the configuration file, without extension
	ConfigFileName = "config"
	// EnvPrefix is prepended to environment overrides, e.g. SCREENMUX_MOVIES_DIR
	EnvPrefix = "SCREENMUX"
	// LockFileName is the registry lock file inside the state directory
	LockFileName = "session.lock"
	// LogFileName receives logs while the TUI owns the terminal
	LogFileName = "screenmux.log"
)

// Mirror backends for the virtual display
const (
	MirrorAuto    = "auto"
	MirrorX11     = "x11"
	MirrorWayland = "wayland"
)

// Config holds the application configuration
type Config struct {
	MoviesDir     string `mapstructure:"movies_dir"`
	MusicDir      string `mapstructure:"music_dir"`
	StateDir      string `mapstructure:"state_dir"`
	LogLevel      string `mapstructure:"log_level"`
	LogFormat     string `mapstructure:"log_format"`
	Notifications bool   `mapstructure:"notifications"`
	AudioDevice   string `mapstructure:"audio_device"`
	FFmpegPath    string `mapstructure:"ffmpeg_path"`
	FFprobePath   string `mapstructure:"ffprobe_path"`
	MirrorBackend string `mapstructure:"mirror_backend"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		MoviesDir:     GetDefaultMoviesDir(),
		MusicDir:      GetDefaultMusicDir(),
		StateDir:      GetStateDir(),
		LogLevel:      "info",
		LogFormat:     "console",
		Notifications: true,
		AudioDevice:   "@DEFAULT_MONITOR@",
		FFmpegPath:    "ffmpeg",
		FFprobePath:   "ffprobe",
		MirrorBackend: MirrorAuto,
	}
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultConfigDir
	}
	return filepath.Join(home, DefaultConfigDir)
}

// GetStateDir returns the directory holding the session lock and log file
func GetStateDir() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, AppName)
	}
	return filepath.Join(os.TempDir(), AppName)
}

// GetDefaultMoviesDir returns the default "movies" location
func GetDefaultMoviesDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultMoviesDir
	}
	return filepath.Join(home, DefaultMoviesDir)
}

// GetDefaultMusicDir returns the default "music" location
func GetDefaultMusicDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultMusicDir
	}
	return filepath.Join(home, DefaultMusicDir)
}

// LockFile returns the path of the registry lock file
func (c *Config) LockFile() string {
	return filepath.Join(c.StateDir, LockFileName)
}

// LogFile returns the path of the log file used while the TUI is active
func (c *Config) LogFile() string {
	return filepath.Join(c.StateDir, LogFileName)
}

// EnsureDirectories creates the output and state directories
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.MoviesDir, c.MusicDir, c.StateDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// newViper returns a viper instance with defaults, file locations and env binding
func newViper(configDir string) *viper.Viper {
	v := viper.New()

	def := DefaultConfig()
	v.SetDefault("movies_dir", def.MoviesDir)
	v.SetDefault("music_dir", def.MusicDir)
	v.SetDefault("state_dir", def.StateDir)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("log_format", def.LogFormat)
	v.SetDefault("notifications", def.Notifications)
	v.SetDefault("audio_device", def.AudioDevice)
	v.SetDefault("ffmpeg_path", def.FFmpegPath)
	v.SetDefault("ffprobe_path", def.FFprobePath)
	v.SetDefault("mirror_backend", def.MirrorBackend)

	v.SetConfigName(ConfigFileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	return v
}

// Load loads the configuration from disk, falling back to defaults
func Load() (*Config, error) {
	return LoadFrom(GetConfigDir())
}

// LoadFrom loads the configuration from the given directory
func LoadFrom(configDir string) (*Config, error) {
	v := newViper(configDir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks values that cannot be defaulted
func (c *Config) Validate() error {
	switch c.MirrorBackend {
	case MirrorAuto, MirrorX11, MirrorWayland:
	default:
		return fmt.Errorf("invalid mirror_backend %q (want auto, x11 or wayland)", c.MirrorBackend)
	}
	if c.MoviesDir == "" || c.MusicDir == "" {
		return fmt.Errorf("movies_dir and music_dir must be set")
	}
	return nil
}

// Save writes the configuration to the default directory
func Save(cfg *Config) error {
	return SaveTo(GetConfigDir(), cfg)
}

// SaveTo writes the configuration as YAML into configDir
func SaveTo(configDir string, cfg *Config) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	v := viper.New()
	v.Set("movies_dir", cfg.MoviesDir)
	v.Set("music_dir", cfg.MusicDir)
	v.Set("state_dir", cfg.StateDir)
	v.Set("log_level", cfg.LogLevel)
	v.Set("log_format", cfg.LogFormat)
	v.Set("notifications", cfg.Notifications)
	v.Set("audio_device", cfg.AudioDevice)
	v.Set("ffmpeg_path", cfg.FFmpegPath)
	v.Set("ffprobe_path", cfg.FFprobePath)
	v.Set("mirror_backend", cfg.MirrorBackend)

	return v.WriteConfigAs(filepath.Join(configDir, ConfigFileName+".yaml"))
}
