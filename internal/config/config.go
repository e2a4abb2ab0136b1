package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	ErrNoSource    = errors.New("no input method selected, please specify a file or a serial port")
	ErrBothSources = errors.New("specify either an input file or a serial port, not both")
)

func init() {
	viper.SetConfigName("gnsstester")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/gnsstester")
	viper.SetEnvPrefix("GNSSTESTER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	SetDefaults(viper.GetViper())
}

// SetDefaults registers the defaults of every core setting on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("name", "gnsstester")
	v.SetDefault("map.file", "map.html")
	v.SetDefault("map.title", "GNSS Track")
	v.SetDefault("map.zoom", 19)
	v.SetDefault("serial.baud", 9600)
	v.SetDefault("serial.driver", "jacobsa")
	v.SetDefault("serial.timeout", 5*time.Second)
	v.SetDefault("serial.cooldown", 5*time.Second)
	v.SetDefault("device.max_discard", 100)
	v.SetDefault("device.wait_budget", 30*time.Second)
	v.SetDefault("capture.duration", 0)
	v.SetDefault("compat.legacy_exit_codes", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Config is the settings of one run.
type Config struct {
	Name string

	InputFile string
	MapFile   string
	MapTitle  string
	MapZoom   int

	SerialPort  string
	Baud        uint
	Driver      string
	ReadTimeout time.Duration
	Cooldown    time.Duration

	Query     bool
	SetConfig bool
	Coldstart bool
	Report    string

	MaxDiscard int
	WaitBudget time.Duration

	// Duration of a serial capture. Zero means no deadline.
	Duration time.Duration

	LegacyExitCodes bool

	LogLevel  string
	LogFormat string
}

// Flags returns the command line of the tool.
func Flags(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.StringP("infile", "i", "", "logfile to be processed")
	fs.StringP("mapfile", "m", "map.html", "name of the output file (.html or .gpx, strftime patterns allowed)")
	fs.StringP("serial", "s", "", "serial port to be used as input")
	fs.Uint("baud", 9600, "serial port speed")
	fs.BoolP("query", "q", false, "dump module configuration (serial required!)")
	fs.Bool("config", false, "run module configuration sequence (serial required!)")
	fs.Bool("coldstart", false, "force a module coldstart (serial required!)")
	fs.IntP("duration", "d", 0, "run the capture for DURATION seconds (serial required!)")
	fs.String("report", "", "write the configuration dump to this YAML file")
	fs.String("config-file", "", "read settings from this file instead of gnsstester.yaml")
	fs.String("log-level", "info", "log level: info, debug or trace")
	fs.Bool("version", false, "print the version and exit")
	return fs
}

var flagKeys = map[string]string{
	"infile":    "input.file",
	"mapfile":   "map.file",
	"serial":    "serial.port",
	"baud":      "serial.baud",
	"query":     "query.enable",
	"config":    "config.enable",
	"coldstart": "coldstart.enable",
	"duration":  "capture.duration",
	"report":    "query.report",
	"log-level": "log.level",
}

// BindFlags maps the command line onto configuration keys of v.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for flag, key := range flagKeys {
		f := fs.Lookup(flag)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}
	return nil
}

// ReadFile loads path, or the default config file when path is empty. A
// missing default file is not an error.
func ReadFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
		return v.ReadInConfig()
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return err
	}
	return nil
}

// Load builds and validates a Config from v.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Name:            v.GetString("name"),
		InputFile:       v.GetString("input.file"),
		MapFile:         v.GetString("map.file"),
		MapTitle:        v.GetString("map.title"),
		MapZoom:         v.GetInt("map.zoom"),
		SerialPort:      v.GetString("serial.port"),
		Baud:            v.GetUint("serial.baud"),
		Driver:          v.GetString("serial.driver"),
		ReadTimeout:     v.GetDuration("serial.timeout"),
		Cooldown:        v.GetDuration("serial.cooldown"),
		Query:           v.GetBool("query.enable"),
		SetConfig:       v.GetBool("config.enable"),
		Coldstart:       v.GetBool("coldstart.enable"),
		Report:          v.GetString("query.report"),
		MaxDiscard:      v.GetInt("device.max_discard"),
		WaitBudget:      v.GetDuration("device.wait_budget"),
		Duration:        time.Duration(v.GetInt("capture.duration")) * time.Second,
		LegacyExitCodes: v.GetBool("compat.legacy_exit_codes"),
		LogLevel:        v.GetString("log.level"),
		LogFormat:       v.GetString("log.format"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.InputFile == "" && c.SerialPort == "":
		return ErrNoSource
	case c.InputFile != "" && c.SerialPort != "":
		return ErrBothSources
	case c.Duration < 0:
		return fmt.Errorf("duration must not be negative, got %s", c.Duration)
	case c.MaxDiscard < 0:
		return fmt.Errorf("device.max_discard must not be negative, got %d", c.MaxDiscard)
	}
	return nil
}

// Ignored lists the serial only options that are set for a file run.
func (c *Config) Ignored() []string {
	if c.InputFile == "" {
		return nil
	}
	var out []string
	if c.Query {
		out = append(out, "query")
	}
	if c.SetConfig {
		out = append(out, "config")
	}
	if c.Coldstart {
		out = append(out, "coldstart")
	}
	if c.Duration > 0 {
		out = append(out, "duration")
	}
	return out
}
