// Package config assembles the runtime state shared by the CLI commands:
// settings, logging, metrics and the models and stores they open.
package config

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/birdnet-batch/internal/conf"
	"github.com/tphakala/birdnet-batch/internal/errors"
	"github.com/tphakala/birdnet-batch/internal/logger"
	"github.com/tphakala/birdnet-batch/internal/observability"
)

// Context holds the overall application state of one command invocation.
type Context struct {
	Viper    *viper.Viper
	Settings *conf.Settings
	Metrics  *observability.Metrics // nil unless metrics are enabled

	// ConfigFile overrides the default config search paths.
	ConfigFile string

	log *logger.CentralLogger
}

// NewContext returns a context whose viper instance carries all defaults,
// ready for flag binding.
func NewContext() *Context {
	return &Context{Viper: conf.NewViper()}
}

// Init loads the settings and sets up logging and metrics. It is called
// after flags are parsed so command line values take precedence.
func (c *Context) Init() error {
	var paths []string
	if c.ConfigFile != "" {
		c.Viper.SetConfigFile(c.ConfigFile)
	} else {
		var err error
		if paths, err = getDefaultConfigPaths(); err != nil {
			return errors.ConfigurationError("config", err)
		}
	}

	settings, err := conf.Load(c.Viper, paths...)
	if err != nil {
		return err
	}
	c.Settings = settings

	cl, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return errors.ConfigurationError("config", fmt.Errorf("error setting up logging: %w", err))
	}
	logger.SetGlobal(cl)
	c.log = cl

	if used := c.Viper.ConfigFileUsed(); used != "" {
		GetLogger().Info("configuration loaded", logger.String("path", used))
	}

	if settings.Metrics.Enabled {
		if c.Metrics, err = observability.NewMetrics(); err != nil {
			return fmt.Errorf("error creating metrics: %w", err)
		}
	}
	return nil
}

// Close exports metrics when a textfile is configured and closes the log
// file.
func (c *Context) Close() error {
	var errs []error
	if c.Metrics != nil && c.Settings.Metrics.TextFile != "" {
		if err := c.Metrics.WriteTextfile(c.Settings.Metrics.TextFile); err != nil {
			errs = append(errs, fmt.Errorf("error writing metrics: %w", err))
		} else {
			GetLogger().Debug("metrics written", logger.String("path", c.Settings.Metrics.TextFile))
		}
	}
	if c.log != nil {
		errs = append(errs, c.log.Close())
	}
	return errors.Join(errs...)
}

// GetLogger returns the config module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("config")
}

// BindFlags binds command flags to settings keys, so a flag given on the
// command line overrides the config file. keys maps flag names to keys.
func (c *Context) BindFlags(cmd *cobra.Command, keys map[string]string) error {
	for name, key := range keys {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			flag = cmd.PersistentFlags().Lookup(name)
		}
		if flag == nil {
			return fmt.Errorf("unknown flag %q", name)
		}
		if err := c.Viper.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("error binding flag %q: %w", name, err)
		}
	}
	return nil
}
