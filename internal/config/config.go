// Package config loads optional ".wramprc" defaults shared by the
// as and ld CLIs. CLI flags always override a config value, which in
// turn overrides the hardcoded default; config.Load never fails when
// no file is present, only when a present file cannot be parsed.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Defaults holds the subset of CLI flags a .wramprc file may set.
// Pointer fields are nil when the config file doesn't mention them,
// so callers can distinguish "unset" from "set to zero".
type Defaults struct {
	Output  string
	Verbose bool

	TextBase *uint32
	DataBase *uint32
	BssBase  *uint32
	BssEnd   *uint32
}

// Load searches the current directory and the user's home directory
// for ".wramprc" (YAML) and returns whatever defaults it sets. A
// missing file is not an error; a present-but-malformed file is.
func Load() (Defaults, error) {
	v := viper.New()
	v.SetConfigName(".wramprc")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home)
	}
	v.AutomaticEnv()

	var d Defaults
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); notFound {
			return d, nil
		}
		return d, fmt.Errorf("config: reading .wramprc: %w", err)
	}

	d.Output = v.GetString("output")
	d.Verbose = v.GetBool("verbose")
	d.TextBase = optionalHex(v, "text-base")
	d.DataBase = optionalHex(v, "data-base")
	d.BssBase = optionalHex(v, "bss-base")
	d.BssEnd = optionalHex(v, "bss-end")
	return d, nil
}

func optionalHex(v *viper.Viper, key string) *uint32 {
	if !v.IsSet(key) {
		return nil
	}
	val := uint32(v.GetInt64(key))
	return &val
}
