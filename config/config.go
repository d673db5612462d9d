// Package config binds the command-line flags, environment variables and the
// optional config file into a validated Config.
package config

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	helloadd "github.com/xizhibei/go-hello-add"
	"github.com/xizhibei/go-hello-add/httpjson"
)

// EnvPrefix prefixes every environment variable read by the service.
const EnvPrefix = "HELLO_ADD"

// Config is the runtime configuration of the service.
type Config struct {
	ListenAddress        string        `mapstructure:"listen-address" validate:"required,hostname_port"`
	MetricsListenAddress string        `mapstructure:"metrics-listen-address" validate:"omitempty,hostname_port,nefield=ListenAddress"`
	ConfigFile           string        `mapstructure:"config"`
	Debug                bool          `mapstructure:"debug"`
	LogLevel             string        `mapstructure:"log-level" validate:"oneof=debug info warn error"`
	LogFormat            string        `mapstructure:"log-format" validate:"oneof=console json"`
	LogResponse          bool          `mapstructure:"log-response"`
	ShutdownTimeout      time.Duration `mapstructure:"shutdown-timeout" validate:"gt=0"`
	HandlerTimeout       time.Duration `mapstructure:"handler-timeout" validate:"gt=0"`
	WorkerNum            int           `mapstructure:"worker-num" validate:"gte=0"`
	CompressMinBytes     int           `mapstructure:"compress-min-bytes"`
	MaxBodyBytes         int           `mapstructure:"max-body-bytes" validate:"gt=0"`
	ServiceName          string        `mapstructure:"service-name" validate:"required"`
}

type flagDef struct {
	name  string
	usage string
	def   interface{}
}

var flags = []flagDef{
	{"listen-address", "Address the API listens on.", helloadd.DefaultListenAddress},
	{"metrics-listen-address", "Address serving /metrics and /healthz. Disabled when empty.", ""},
	{"config", "Optional config file (yaml, json or toml).", ""},
	{"debug", "Enable debug logging.", false},
	{"log-level", "Log level (debug, info, warn, error).", "info"},
	{"log-format", "Log format (console, json).", "console"},
	{"log-response", "Log every response.", false},
	{"shutdown-timeout", "Graceful shutdown timeout.", 5 * time.Second},
	{"handler-timeout", "Timeout of a single request handler.", helloadd.DefaultHandlerTimeout},
	{"worker-num", "Number of handler workers. 0 uses 4 per CPU.", 0},
	{"compress-min-bytes", "Smallest response body compressed. Negative disables compression.", httpjson.DefaultCompressMinBytes},
	{"max-body-bytes", "Largest request body accepted.", httpjson.DefaultMaxBodyBytes},
	{"service-name", "Name reported in metrics and traces.", "hello-add"},
}

// BindFlags declares the persistent flags on cmd and binds them, together with
// the HELLO_ADD_* environment variables, to v.
func BindFlags(cmd *cobra.Command, v *viper.Viper) error {
	v.AutomaticEnv()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	fs := cmd.PersistentFlags()
	for _, f := range flags {
		usage := f.usage + " Env: " + EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(f.name, "-", "_"))

		switch def := f.def.(type) {
		case string:
			fs.String(f.name, def, usage)
		case bool:
			fs.Bool(f.name, def, usage)
		case int:
			fs.Int(f.name, def, usage)
		case time.Duration:
			fs.Duration(f.name, def, usage)
		}

		if err := v.BindPFlag(f.name, fs.Lookup(f.name)); err != nil {
			return errors.Wrapf(err, "bind flag %s", f.name)
		}
	}
	return nil
}

// Load reads the config file named by the "config" key, if any, from fsys and
// decodes the merged settings. Flags win over env, env wins over the file.
func Load(v *viper.Viper, fsys afero.Fs) (*Config, error) {
	if file := v.GetString("config"); file != "" {
		v.SetFs(fsys)
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config file %s", file)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the field constraints of c.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	return nil
}

// EffectiveLogLevel is the log level after applying Debug.
func (c *Config) EffectiveLogLevel() string {
	if c.Debug {
		return "debug"
	}
	return c.LogLevel
}
