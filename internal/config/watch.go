package config

import (
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watch reloads the configuration each time the file at path changes and
// passes the new Config to onChange. A reload that fails to parse is logged
// and the previous settings stay in effect. An empty path falls back to
// RELAYCHAT_CONFIG; with no file at all Watch does nothing.
func Watch(path string, onChange func(*Config)) error {
	v, err := newViper(path)
	if err != nil {
		return err
	}
	file := v.ConfigFileUsed()
	if file == "" {
		return nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := decode(v)
		if err != nil {
			log.Error().Err(err).Str("module", "config").Str("path", e.Name).Msg("reload failed, keeping previous config")
			return
		}
		log.Info().Str("module", "config").Str("path", e.Name).Msg("config reloaded")
		onChange(cfg)
	})
	v.WatchConfig()

	log.Info().Str("module", "config").Str("path", file).Msg("watching for changes")
	return nil
}
