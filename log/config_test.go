/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/acronis/go-throttlegate/config"
)

func loadConfig(t *testing.T, envPrefix string, dataType config.DataType, data string, opts ...ConfigOption) (*Config, error) {
	t.Helper()
	cfg := NewConfig(opts...)
	err := config.NewDefaultLoader(config.WithEnvVarsPrefix(envPrefix)).LoadFromReader(bytes.NewBufferString(data), dataType, cfg)
	return cfg, err
}

func TestConfig_YAML(t *testing.T) {
	cfgData := `
log:
  level: warn
  format: text
  output: file
  nocolor: true
  addCaller: true
  file:
    path: throttlegate.log
    rotation:
      compress: true
      maxSize: 100M
      maxBackups: 42
      maxAgeDays: 7
`
	expectedCfg := NewDefaultConfig()
	expectedCfg.Level = LevelWarn
	expectedCfg.Format = FormatText
	expectedCfg.Output = OutputFile
	expectedCfg.NoColor = true
	expectedCfg.AddCaller = true
	expectedCfg.File = FileOutputConfig{
		Path:     "throttlegate.log",
		Rotation: FileRotationConfig{Compress: true, MaxSize: 100 * 1024 * 1024, MaxBackups: 42, MaxAgeDays: 7},
	}

	cfg, err := loadConfig(t, "", config.DataTypeYAML, cfgData)
	require.NoError(t, err)
	require.Equal(t, expectedCfg, cfg)

	// Struct tags allow decoding the same document directly.
	var appCfg struct {
		Log *Config `yaml:"log"`
	}
	appCfg.Log = NewDefaultConfig()
	require.NoError(t, yaml.Unmarshal([]byte(cfgData), &appCfg))
	require.Equal(t, expectedCfg, appCfg.Log)
}

func TestConfig_JSONCaseInsensitive(t *testing.T) {
	cfg, err := loadConfig(t, "", config.DataTypeJSON, `{"log": {"level": "DEBUG", "output": "Stderr"}}`)
	require.NoError(t, err)
	require.Equal(t, LevelDebug, cfg.Level)
	require.Equal(t, OutputStderr, cfg.Output)
	require.Equal(t, FormatJSON, cfg.Format)
}

func TestConfig_Env(t *testing.T) {
	t.Setenv("THROTTLEGATE_LOG_LEVEL", "error")
	t.Setenv("THROTTLEGATE_LOG_FILE_ROTATION_MAXSIZE", "5MB")

	cfg, err := loadConfig(t, "throttlegate", config.DataTypeYAML, "")
	require.NoError(t, err)
	require.Equal(t, LevelError, cfg.Level)
	require.Equal(t, config.BytesCount(5*1024*1024), cfg.File.Rotation.MaxSize)
}

func TestNewDefaultConfig(t *testing.T) {
	cfg, err := loadConfig(t, "", config.DataTypeYAML, "")
	require.NoError(t, err)
	require.Equal(t, NewDefaultConfig(), cfg)

	cfg = NewDefaultConfig()
	require.NoError(t, viper.New().Unmarshal(&cfg))
	require.Equal(t, NewDefaultConfig(), cfg)

	cfg = NewDefaultConfig()
	require.NoError(t, json.Unmarshal([]byte("{}"), &cfg))
	require.Equal(t, NewDefaultConfig(), cfg)
}

func TestConfig_KeyPrefix(t *testing.T) {
	cfg, err := loadConfig(t, "", config.DataTypeYAML, "accessLog:\n  level: debug\n", WithKeyPrefix("accessLog"))
	require.NoError(t, err)
	expectedCfg := NewDefaultConfig(WithKeyPrefix("accessLog"))
	expectedCfg.Level = LevelDebug
	require.Equal(t, expectedCfg, cfg)
	require.Equal(t, "accessLog", cfg.KeyPrefix())

	require.Equal(t, "log", (&Config{}).KeyPrefix())
}

func TestConfig_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		cfgData string
		wantErr string
	}{
		{
			name:    "unknown level",
			cfgData: "log:\n  level: trace\n",
			wantErr: `log.level: unknown value "trace", should be one of [debug info warn error]`,
		},
		{
			name:    "unknown format",
			cfgData: "log:\n  format: xml\n",
			wantErr: `log.format: unknown value "xml", should be one of [json text]`,
		},
		{
			name:    "unknown output",
			cfgData: "log:\n  output: syslog\n",
			wantErr: `log.output: unknown value "syslog", should be one of [stdout stderr file]`,
		},
		{
			name:    "file output without path",
			cfgData: "log:\n  output: file\n",
			wantErr: `log.file.path: cannot be empty when "file" output is used`,
		},
		{
			name:    "too small rotation size",
			cfgData: "log:\n  file:\n    rotation:\n      maxSize: 512K\n",
			wantErr: `log.file.rotation.maxSize: should be >= 1M`,
		},
		{
			name:    "no rotation backups",
			cfgData: "log:\n  file:\n    rotation:\n      maxBackups: 0\n",
			wantErr: `log.file.rotation.maxBackups: should be >= 1`,
		},
		{
			name:    "negative max age",
			cfgData: "log:\n  file:\n    rotation:\n      maxAgeDays: -1\n",
			wantErr: `log.file.rotation.maxAgeDays: should be >= 0`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadConfig(t, "", config.DataTypeYAML, tt.cfgData)
			require.EqualError(t, err, tt.wantErr)
		})
	}

	t.Run("unparsable rotation size", func(t *testing.T) {
		_, err := loadConfig(t, "", config.DataTypeYAML, "log:\n  file:\n    rotation:\n      maxSize: lots\n")
		require.ErrorContains(t, err, "log.file.rotation.maxSize: invalid byte size format (lots)")
	})
}
