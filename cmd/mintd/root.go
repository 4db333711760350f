package main

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"github.com/urfave/cli/v2"
)

// EnvReplacer replaces `-` to `_`.
// This is used to map flag like `--my-param` to environment variables like `MY_PARAM`.
var envReplacer = strings.NewReplacer("-", "_")

func init() {
	viper.SetEnvPrefix("MINTD")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(envReplacer)
}

// loadConfigFile fills every flag not given on the command line or through
// env with the value found in the --config file, if any.
func loadConfigFile(c *cli.Context) error {
	path := c.String(configFlagName)
	if path == "" {
		return nil
	}

	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %s", path, err)
	}

	for _, flag := range c.App.Flags {
		name := flag.Names()[0]
		if name == configFlagName || c.IsSet(name) || !viper.InConfig(name) {
			continue
		}
		if err := c.Set(name, viper.GetString(name)); err != nil {
			return fmt.Errorf("invalid value for %s in config file: %s", name, err)
		}
	}
	return nil
}
