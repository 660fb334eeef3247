// Package config loads and persists the JSON configuration file described
// in spec §6, merges CLI flag overrides, and performs atomic rewrites when
// the store marks configuration fields dirty.
package config

import (
	"fmt"
	"time"

	"github.com/pisugar/pisugar-server/internal/model"
)

// fileSchema mirrors the on-disk JSON shape. Unknown keys are tolerated by
// viper (they're simply ignored); we additionally detect and warn about
// them in Load via AllSettings comparison against recognisedKeys.
type fileSchema struct {
	Model         string `json:"model"`
	I2CBus        int    `json:"i2c_bus"`
	I2CAddr       int    `json:"i2c_addr"`
	ButtonGPIOPin int    `json:"button_gpio_pin,omitempty"`

	AutoWakeTime   string `json:"auto_wake_time,omitempty"`
	AutoWakeRepeat uint8  `json:"auto_wake_repeat"`

	SingleTapEnable bool   `json:"single_tap_enable"`
	DoubleTapEnable bool   `json:"double_tap_enable"`
	LongTapEnable   bool   `json:"long_tap_enable"`
	SingleTapShell  string `json:"single_tap_shell"`
	DoubleTapShell  string `json:"double_tap_shell"`
	LongTapShell    string `json:"long_tap_shell"`

	AutoShutdownLevel int `json:"auto_shutdown_level"`
	AutoShutdownDelay int `json:"auto_shutdown_delay"`

	AutoChargingRange  []int `json:"auto_charging_range,omitempty"`
	FullChargeDuration int   `json:"full_charge_duration"`

	AutoPowerOn bool `json:"auto_power_on"`

	SoftPoweroff      bool   `json:"soft_poweroff"`
	SoftPoweroffShell string `json:"soft_poweroff_shell"`

	AntiMistouch        bool `json:"anti_mistouch"`
	AutoRTCSync         bool `json:"auto_rtc_sync"`
	BatteryInputProtect bool `json:"battery_input_protect"`
	BatteryKeepInput    bool `json:"battery_keep_input"`

	AuthUser     string `json:"auth_user,omitempty"`
	AuthPassword string `json:"auth_password,omitempty"`

	DigestAuthUser     string `json:"digest_auth_user,omitempty"`
	DigestAuthPassword string `json:"digest_auth_password,omitempty"`
}

var recognisedKeys = func() map[string]bool {
	keys := []string{
		"model", "i2c_bus", "i2c_addr", "button_gpio_pin",
		"auto_wake_time", "auto_wake_repeat",
		"single_tap_enable", "double_tap_enable", "long_tap_enable",
		"single_tap_shell", "double_tap_shell", "long_tap_shell",
		"auto_shutdown_level", "auto_shutdown_delay",
		"auto_charging_range", "full_charge_duration",
		"auto_power_on", "soft_poweroff", "soft_poweroff_shell",
		"anti_mistouch", "auto_rtc_sync", "battery_input_protect", "battery_keep_input",
		"auth_user", "auth_password", "digest_auth_user", "digest_auth_password",
	}
	m := make(map[string]bool, len(keys))
	for _, k := range keys {
		m[k] = true
	}
	return m
}()

func toFileSchema(cfg model.Configuration) fileSchema {
	fs := fileSchema{
		Model:               cfg.Model.String(),
		I2CBus:              cfg.I2CBus,
		I2CAddr:             int(cfg.I2CAddr),
		ButtonGPIOPin:       cfg.ButtonGPIOPin,
		AutoWakeRepeat:      cfg.AutoWakeRepeat,
		SingleTapEnable:     cfg.TapEnable.Single,
		DoubleTapEnable:     cfg.TapEnable.Double,
		LongTapEnable:       cfg.TapEnable.Long,
		SingleTapShell:      cfg.TapShell.Single,
		DoubleTapShell:      cfg.TapShell.Double,
		LongTapShell:        cfg.TapShell.Long,
		AutoShutdownLevel:   cfg.AutoShutdownLevel,
		AutoShutdownDelay:   cfg.AutoShutdownDelay,
		FullChargeDuration:  cfg.FullChargeDuration,
		AutoPowerOn:         cfg.AutoPowerOn,
		SoftPoweroff:        cfg.SoftPoweroff,
		SoftPoweroffShell:   cfg.SoftPoweroffShell,
		AntiMistouch:        cfg.AntiMistouch,
		AutoRTCSync:         cfg.AutoRTCSync,
		BatteryInputProtect: cfg.BatteryInputProtect,
		BatteryKeepInput:    cfg.BatteryKeepInput,
		AuthUser:            cfg.AuthUser,
		AuthPassword:        cfg.AuthPassword,
		DigestAuthUser:      cfg.DigestAuthUser,
		DigestAuthPassword:  cfg.DigestAuthPassword,
	}
	if !cfg.AutoWakeTime.IsZero() {
		fs.AutoWakeTime = cfg.AutoWakeTime.Format("15:04:05")
	}
	if cfg.AutoChargingRange != nil {
		fs.AutoChargingRange = []int{cfg.AutoChargingRange.RestartPercent, cfg.AutoChargingRange.StopPercent}
	}
	return fs
}

func fromFileSchema(fs fileSchema) (model.Configuration, error) {
	var cfg model.Configuration
	m, err := model.ParseModel(fs.Model)
	if err != nil {
		return cfg, err
	}
	cfg.Model = m
	cfg.I2CBus = fs.I2CBus
	cfg.I2CAddr = uint16(fs.I2CAddr)
	cfg.ButtonGPIOPin = fs.ButtonGPIOPin
	cfg.AutoWakeRepeat = fs.AutoWakeRepeat
	cfg.TapEnable = model.TapEnables{Single: fs.SingleTapEnable, Double: fs.DoubleTapEnable, Long: fs.LongTapEnable}
	cfg.TapShell = model.TapShells{Single: fs.SingleTapShell, Double: fs.DoubleTapShell, Long: fs.LongTapShell}
	cfg.AutoShutdownLevel = fs.AutoShutdownLevel
	cfg.AutoShutdownDelay = fs.AutoShutdownDelay
	cfg.FullChargeDuration = fs.FullChargeDuration
	cfg.AutoPowerOn = fs.AutoPowerOn
	cfg.SoftPoweroff = fs.SoftPoweroff
	cfg.SoftPoweroffShell = fs.SoftPoweroffShell
	cfg.AntiMistouch = fs.AntiMistouch
	cfg.AutoRTCSync = fs.AutoRTCSync
	cfg.BatteryInputProtect = fs.BatteryInputProtect
	cfg.BatteryKeepInput = fs.BatteryKeepInput
	cfg.AuthUser = fs.AuthUser
	cfg.AuthPassword = fs.AuthPassword
	cfg.DigestAuthUser = fs.DigestAuthUser
	cfg.DigestAuthPassword = fs.DigestAuthPassword

	if fs.AutoWakeTime != "" {
		t, err := time.Parse("15:04:05", fs.AutoWakeTime)
		if err != nil {
			return cfg, fmt.Errorf("auto_wake_time: %w", err)
		}
		cfg.AutoWakeTime = t
	}
	if len(fs.AutoChargingRange) == 2 {
		cfg.AutoChargingRange = &model.ChargingRange{
			RestartPercent: fs.AutoChargingRange[0],
			StopPercent:    fs.AutoChargingRange[1],
		}
	}
	return cfg, nil
}

func unknownKeys(raw map[string]interface{}) []string {
	var unknown []string
	for k := range raw {
		if !recognisedKeys[k] {
			unknown = append(unknown, k)
		}
	}
	return unknown
}
