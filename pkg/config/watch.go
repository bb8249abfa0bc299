package config

import (
	"fmt"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/marmos91/dittoaccel/internal/logger"
)

// Watch calls onChange with the reloaded configuration each time the file
// at path is written. A change that fails to load or validate is logged
// and skipped. Only settings that can change at runtime should be taken
// from the new value; see the runtime package.
func Watch(path string, onChange func(*Config)) error {
	if path == "" {
		return fmt.Errorf("watch needs an explicit config path")
	}

	v := viper.New()
	setupViper(v, path)
	if _, err := readConfigFile(v); err != nil {
		return err
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := decode(v)
		if err != nil {
			logger.Warn("config reload rejected", "path", e.Name, logger.KeyError, err)
			return
		}
		logger.Info("config reloaded", "path", e.Name)
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}
