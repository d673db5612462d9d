package config_test

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/suite"
	"github.com/xizhibei/go-hello-add/config"
)

type ConfigTestSuite struct {
	suite.Suite
	cmd *cobra.Command
	v   *viper.Viper
	fs  afero.Fs
}

func TestConfigTestSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (suite *ConfigTestSuite) SetupTest() {
	suite.cmd = &cobra.Command{Use: "hello-add"}
	suite.v = viper.New()
	suite.fs = afero.NewMemMapFs()
	suite.Require().NoError(config.BindFlags(suite.cmd, suite.v))
}

func (suite *ConfigTestSuite) load(args ...string) (*config.Config, error) {
	suite.Require().NoError(suite.cmd.PersistentFlags().Parse(args))
	return config.Load(suite.v, suite.fs)
}

func (suite *ConfigTestSuite) TestDefaults() {
	cfg, err := suite.load()
	suite.Require().NoError(err)

	suite.Equal("0.0.0.0:5000", cfg.ListenAddress)
	suite.Empty(cfg.MetricsListenAddress)
	suite.Equal("info", cfg.LogLevel)
	suite.Equal("console", cfg.LogFormat)
	suite.Equal(5*time.Second, cfg.ShutdownTimeout)
	suite.Equal(5*time.Second, cfg.HandlerTimeout)
	suite.Equal(0, cfg.WorkerNum)
	suite.Equal(1024, cfg.CompressMinBytes)
	suite.Equal(1<<20, cfg.MaxBodyBytes)
	suite.Equal("hello-add", cfg.ServiceName)
	suite.False(cfg.Debug)
	suite.Equal("info", cfg.EffectiveLogLevel())
}

func (suite *ConfigTestSuite) TestFlags() {
	cfg, err := suite.load(
		"--listen-address", "127.0.0.1:8080",
		"--metrics-listen-address", "127.0.0.1:9090",
		"--handler-timeout", "250ms",
		"--worker-num", "8",
		"--compress-min-bytes", "-1",
		"--debug",
	)
	suite.Require().NoError(err)

	suite.Equal("127.0.0.1:8080", cfg.ListenAddress)
	suite.Equal("127.0.0.1:9090", cfg.MetricsListenAddress)
	suite.Equal(250*time.Millisecond, cfg.HandlerTimeout)
	suite.Equal(8, cfg.WorkerNum)
	suite.Equal(-1, cfg.CompressMinBytes)
	suite.Equal("debug", cfg.EffectiveLogLevel())
}

func (suite *ConfigTestSuite) TestEnv() {
	suite.T().Setenv("HELLO_ADD_LISTEN_ADDRESS", "127.0.0.1:7000")
	suite.T().Setenv("HELLO_ADD_LOG_FORMAT", "json")

	cfg, err := suite.load()
	suite.Require().NoError(err)

	suite.Equal("127.0.0.1:7000", cfg.ListenAddress)
	suite.Equal("json", cfg.LogFormat)
}

func (suite *ConfigTestSuite) TestFlagOverridesEnv() {
	suite.T().Setenv("HELLO_ADD_LOG_LEVEL", "warn")

	cfg, err := suite.load("--log-level", "error")
	suite.Require().NoError(err)
	suite.Equal("error", cfg.LogLevel)
}

func (suite *ConfigTestSuite) TestConfigFile() {
	suite.Require().NoError(afero.WriteFile(suite.fs, "/etc/hello-add.yaml", []byte(`
listen-address: 127.0.0.1:6000
log-response: true
service-name: from-file
`), 0o644))

	cfg, err := suite.load("--config", "/etc/hello-add.yaml", "--service-name", "from-flag")
	suite.Require().NoError(err)

	suite.Equal("127.0.0.1:6000", cfg.ListenAddress)
	suite.True(cfg.LogResponse)
	suite.Equal("from-flag", cfg.ServiceName)
}

func (suite *ConfigTestSuite) TestConfigFileMissing() {
	_, err := suite.load("--config", "/missing.yaml")
	suite.Error(err)
}

func (suite *ConfigTestSuite) TestInvalid() {
	cases := [][]string{
		{"--listen-address", "not-an-address"},
		{"--log-level", "verbose"},
		{"--log-format", "xml"},
		{"--handler-timeout", "0s"},
		{"--shutdown-timeout", "-1s"},
		{"--worker-num", "-2"},
		{"--max-body-bytes", "0"},
		{"--service-name", ""},
		{"--metrics-listen-address", "0.0.0.0:5000"},
	}

	for _, args := range cases {
		suite.Run(args[0], func() {
			suite.SetupTest()
			_, err := suite.load(args...)
			suite.Error(err)
		})
	}
}
