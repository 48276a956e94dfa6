// Package config loads scanner settings from defaults, a YAML file,
// ZXSCAN_* environment variables and command line flags, in increasing order
// of precedence.
package config

import (
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. ZXSCAN_CAMERA_FPS.
const EnvPrefix = "ZXSCAN"

// DefaultFile is the config file looked up under the XDG config directories.
const DefaultFile = "zxscan/config.yaml"

type Config struct {
	Decode   DecodeConfig   `mapstructure:"decode"`
	Camera   CameraConfig   `mapstructure:"camera"`
	Feedback FeedbackConfig `mapstructure:"feedback"`
	Log      LogConfig      `mapstructure:"log"`
}

type DecodeConfig struct {
	TryHarder       bool          `mapstructure:"try_harder"`
	PureBarcode     bool          `mapstructure:"pure_barcode"`
	AlsoInverted    bool          `mapstructure:"also_inverted"`
	Formats         []string      `mapstructure:"formats" validate:"min=1,dive,required"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl" validate:"min=0"`
	CacheMaxEntries int           `mapstructure:"cache_max_entries" validate:"min=0"`
}

type CameraConfig struct {
	FramesDir string  `mapstructure:"frames_dir"`
	FPS       float64 `mapstructure:"fps" validate:"gt=0,lte=240"`
	Loop      bool    `mapstructure:"loop"`
}

type FeedbackConfig struct {
	Bell bool `mapstructure:"bell"`
}

type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=trace debug info warn error disabled"`
}

// New returns a viper instance with defaults and environment lookup set up.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("decode.try_harder", false)
	v.SetDefault("decode.pure_barcode", false)
	v.SetDefault("decode.also_inverted", false)
	v.SetDefault("decode.formats", []string{"QR_CODE", "EAN_13", "EAN_8", "CODE_128"})
	v.SetDefault("decode.cache_ttl", 5*time.Minute)
	v.SetDefault("decode.cache_max_entries", 256)
	v.SetDefault("camera.frames_dir", "")
	v.SetDefault("camera.fps", 10.0)
	v.SetDefault("camera.loop", true)
	v.SetDefault("feedback.bell", true)
	v.SetDefault("log.level", "warn")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// RegisterFlags adds the command line flags that override config keys.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "config file (default $XDG_CONFIG_HOME/"+DefaultFile+")")
	fs.String("frames", "", "directory of image frames played as the live camera")
	fs.Float64("fps", 10, "frames per second delivered by the live camera")
	fs.Bool("loop", true, "replay frames from the start after the last one")
	fs.Bool("try-harder", false, "spend more time looking for barcodes")
	fs.Bool("pure", false, "hint that images are clean barcode renders with minimal border")
	fs.Bool("also-inverted", false, "also look for light-on-dark barcodes")
	fs.Int("cache-max-entries", 256, "maximum number of decode results kept in memory (0 for no limit)")
	fs.StringSlice("formats", nil, "barcode formats to look for (e.g. QR_CODE,EAN_13)")
	fs.Bool("bell", true, "ring the terminal bell on live detection")
	fs.String("log-level", "warn", "log level (trace, debug, info, warn, error, disabled)")
}

var flagKeys = map[string]string{
	"frames":            "camera.frames_dir",
	"fps":               "camera.fps",
	"loop":              "camera.loop",
	"try-harder":        "decode.try_harder",
	"pure":              "decode.pure_barcode",
	"also-inverted":     "decode.also_inverted",
	"cache-max-entries": "decode.cache_max_entries",
	"formats":           "decode.formats",
	"bell":              "feedback.bell",
	"log-level":         "log.level",
}

// BindFlags binds the flags registered by RegisterFlags to their keys. Only
// flags set on the command line take precedence over other sources.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for flag, key := range flagKeys {
		f := fs.Lookup(flag)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return errors.Wrapf(err, "bind flag --%s", flag)
		}
	}
	return nil
}

// Load reads the config file at path, or the default XDG file when path is
// empty and one exists, then unmarshals and validates the result.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path == "" {
		if found, err := xdg.SearchConfigFile(DefaultFile); err == nil {
			path = found
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return &cfg, nil
}
