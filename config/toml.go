package config

import (
	"bytes"
	"fmt"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/creachadair/atomicfile"
	"github.com/spf13/viper"

	tmos "github.com/tendermint/intentd/libs/os"
)

// defaultDirPerm is the default permissions used when creating directories.
const defaultDirPerm = 0700

const configHeader = `# This is a TOML config file.
# For more information, see https://github.com/toml-lang/toml

# NOTE: Any path below can be absolute (e.g. "/var/intentd/data") or
# relative to the home directory (e.g. "data"). The home directory is
# "$HOME/.intentd" by default, but could be changed via $INTENTD_HOME env
# variable or --home cmd flag.

`

// EnsureRoot creates the root, config, and data directories if they don't
// exist, writes a default config file when none is present, and panics if
// it fails.
func EnsureRoot(rootDir string) {
	if err := tmos.EnsureDir(rootDir, defaultDirPerm); err != nil {
		panic(err.Error())
	}
	if err := tmos.EnsureDir(filepath.Join(rootDir, defaultConfigDir), defaultDirPerm); err != nil {
		panic(err.Error())
	}
	if err := tmos.EnsureDir(filepath.Join(rootDir, defaultDataDir), defaultDirPerm); err != nil {
		panic(err.Error())
	}
	if err := writeDefaultConfigFileIfNone(rootDir); err != nil {
		panic(err.Error())
	}
}

// ConfigFile returns the path of the config file under rootDir.
func ConfigFile(rootDir string) string {
	return filepath.Join(rootDir, defaultConfigFilePath)
}

// WriteConfigFile encodes config as TOML and atomically replaces
// config/config.toml under rootDir.
func WriteConfigFile(rootDir string, config *Config) error {
	return config.WriteTo(ConfigFile(rootDir))
}

// WriteTo writes the config to the exact file specified by path.
func (cfg *Config) WriteTo(path string) error {
	var buffer bytes.Buffer
	buffer.WriteString(configHeader)
	if err := toml.NewEncoder(&buffer).Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	_, err := atomicfile.WriteAll(path, &buffer, 0644)
	return err
}

func writeDefaultConfigFileIfNone(rootDir string) error {
	if !tmos.FileExists(ConfigFile(rootDir)) {
		return WriteConfigFile(rootDir, DefaultConfig())
	}
	return nil
}

// LoadConfig reads config/config.toml under rootDir on top of the defaults,
// sets the root and validates the result.
func LoadConfig(rootDir string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(ConfigFile(rootDir))
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return ParseConfig(v, DefaultConfig().SetRoot(rootDir))
}

// ParseConfig unmarshals the settings held by v into conf and validates
// the result.
func ParseConfig(v *viper.Viper, conf *Config) (*Config, error) {
	root := conf.RootDir
	if err := v.Unmarshal(conf); err != nil {
		return nil, err
	}
	if conf.RootDir == "" {
		conf.RootDir = root
	}
	conf.SetRoot(conf.RootDir)

	if err := conf.ValidateBasic(); err != nil {
		return nil, fmt.Errorf("error in config file: %w", err)
	}
	return conf, nil
}
