package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pisugar/pisugar-server/internal/model"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Overrides carries CLI flag values that take precedence over the file.
// Zero values mean "not set on the command line".
type Overrides struct {
	Model         string
	I2CBus        int
	I2CAddr       int
	ButtonGPIOPin int
}

// Load reads the configuration file at path, merges CLI overrides, and
// returns the resulting Configuration. A missing file is not an error: the
// model default (possibly further overridden by flags) is used instead,
// matching the CLI's ability to run from flags alone.
//
// The file is parsed with viper rather than a bare json.Unmarshal: it's
// the same library the rest of this codebase's lineage already reaches
// for to read a config file, and viper.AllSettings gives unknownKeys a
// normalised map to diff against recognisedKeys without a second parse
// pass. Persist (below) still writes by hand, because viper has no
// write-temp-rename primitive and the atomic-rewrite guarantee in §6 has
// to come from somewhere.
func Load(path string, ov Overrides, log *zap.Logger) (model.Configuration, error) {
	cfg := model.Default(model.PiSugar3)

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	switch err := v.ReadInConfig(); {
	case errors.Is(err, os.ErrNotExist):
		log.Warn("config file not found, using defaults", zap.String("path", path))
	case err != nil:
		return cfg, fmt.Errorf("read config: %w", err)
	default:
		for _, k := range unknownKeys(v.AllSettings()) {
			log.Warn("ignoring unrecognised config key", zap.String("key", k))
		}
		raw, err := json.Marshal(v.AllSettings())
		if err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
		var fs fileSchema
		if err := json.Unmarshal(raw, &fs); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
		cfg, err = fromFileSchema(fs)
		if err != nil {
			return cfg, fmt.Errorf("invalid config: %w", err)
		}
	}

	if ov.Model != "" {
		m, err := model.ParseModel(ov.Model)
		if err != nil {
			return cfg, fmt.Errorf("invalid --model: %w", err)
		}
		cfg.Model = m
	}
	if ov.I2CBus != 0 {
		cfg.I2CBus = ov.I2CBus
	}
	if ov.I2CAddr != 0 {
		cfg.I2CAddr = uint16(ov.I2CAddr)
	}
	if cfg.I2CAddr == 0 {
		cfg.I2CAddr = model.Caps(cfg.Model).DefaultI2CAddr
	}
	if ov.ButtonGPIOPin != 0 {
		cfg.ButtonGPIOPin = ov.ButtonGPIOPin
	}
	if cfg.ButtonGPIOPin == 0 {
		cfg.ButtonGPIOPin = model.DefaultButtonGPIOPin
	}
	return cfg, nil
}

// Persist atomically rewrites the configuration file: it writes to a temp
// file in the same directory and renames over the target, so a concurrent
// reader never observes a partially-written file.
func Persist(path string, cfg model.Configuration) error {
	dir := filepath.Dir(path)
	fs := toFileSchema(cfg)
	data, err := json.MarshalIndent(fs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*.json.tmp")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}
