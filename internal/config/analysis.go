package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/swing.report/internal/swing"
	"github.com/banshee-data/swing.report/internal/units"
)

// DefaultConfigPath is the path to the canonical analysis defaults file.
const DefaultConfigPath = "config/analysis.defaults.json"

// AnalysisConfig holds the tunable analysis and ingest parameters. Every
// field is optional; the Get* methods supply defaults for unset fields so
// partial files are safe.
type AnalysisConfig struct {
	// Smoothing
	SavgolWindow *int `json:"savgol_window,omitempty"`
	SavgolOrder  *int `json:"savgol_order,omitempty"`

	// Timing
	SampleRateHz      *float64 `json:"sample_rate_hz,omitempty"`
	RolloverThreshold *string  `json:"rollover_threshold,omitempty"` // duration string like "6h"
	Timezone          *string  `json:"timezone,omitempty"`

	// Energy model
	WaistInertia *float64 `json:"waist_inertia,omitempty"`
	RacketMass   *float64 `json:"racket_mass,omitempty"`
	Gravity      *float64 `json:"gravity,omitempty"`

	// Fallbacks
	DefaultWaistToShoulder *float64 `json:"default_waist_to_shoulder,omitempty"`
	DefaultShoulderToWrist *float64 `json:"default_shoulder_to_wrist,omitempty"`
	DefaultEnergyRatio     *float64 `json:"default_energy_ratio,omitempty"`

	// Ideals
	IdealWaistToShoulder *float64 `json:"ideal_waist_to_shoulder,omitempty"`
	IdealShoulderToWrist *float64 `json:"ideal_shoulder_to_wrist,omitempty"`
	IdealWristToRacket   *float64 `json:"ideal_wrist_to_racket,omitempty"`
	IdealEnergyRatio     *float64 `json:"ideal_energy_ratio,omitempty"`
	IdealROMWaist        *float64 `json:"ideal_rom_waist,omitempty"`
	IdealROMShoulder     *float64 `json:"ideal_rom_shoulder,omitempty"`
	IdealROMWrist        *float64 `json:"ideal_rom_wrist,omitempty"`

	Locale *string `json:"locale,omitempty"`

	// Ingest units of the connected devices
	AccUnit  *string `json:"acc_unit,omitempty"`
	GyroUnit *string `json:"gyro_unit,omitempty"`

	// AnalysisInterval is how often the worker polls for sessions awaiting analysis.
	AnalysisInterval *string `json:"analysis_interval,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyAnalysisConfig returns an AnalysisConfig with all fields set to nil.
func EmptyAnalysisConfig() *AnalysisConfig {
	return &AnalysisConfig{}
}

// DefaultAnalysisConfig returns a config with every field populated with
// its default value.
func DefaultAnalysisConfig() *AnalysisConfig {
	c := EmptyAnalysisConfig()
	return &AnalysisConfig{
		SavgolWindow:           ptrInt(c.GetSavgolWindow()),
		SavgolOrder:            ptrInt(c.GetSavgolOrder()),
		SampleRateHz:           ptrFloat64(c.GetSampleRateHz()),
		RolloverThreshold:      ptrString(c.GetRolloverThreshold().String()),
		Timezone:               ptrString(c.GetTimezone()),
		WaistInertia:           ptrFloat64(c.GetWaistInertia()),
		RacketMass:             ptrFloat64(c.GetRacketMass()),
		Gravity:                ptrFloat64(c.GetGravity()),
		DefaultWaistToShoulder: ptrFloat64(c.GetDefaultWaistToShoulder()),
		DefaultShoulderToWrist: ptrFloat64(c.GetDefaultShoulderToWrist()),
		DefaultEnergyRatio:     ptrFloat64(c.GetDefaultEnergyRatio()),
		IdealWaistToShoulder:   ptrFloat64(c.GetIdeals().WaistToShoulder),
		IdealShoulderToWrist:   ptrFloat64(c.GetIdeals().ShoulderToWrist),
		IdealWristToRacket:     ptrFloat64(c.GetIdeals().WristToRacket),
		IdealEnergyRatio:       ptrFloat64(c.GetIdeals().EnergyRatio),
		IdealROMWaist:          ptrFloat64(c.GetIdeals().ROMWaist),
		IdealROMShoulder:       ptrFloat64(c.GetIdeals().ROMShoulder),
		IdealROMWrist:          ptrFloat64(c.GetIdeals().ROMWrist),
		Locale:                 ptrString(string(c.GetLocale())),
		AccUnit:                ptrString(c.GetAccUnit()),
		GyroUnit:               ptrString(c.GetGyroUnit()),
		AnalysisInterval:       ptrString(c.GetAnalysisInterval().String()),
	}
}

// LoadAnalysisConfig loads an AnalysisConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
func LoadAnalysisConfig(path string) (*AnalysisConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyAnalysisConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *AnalysisConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadAnalysisConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *AnalysisConfig) Validate() error {
	if c.SavgolWindow != nil && *c.SavgolWindow < 3 {
		return fmt.Errorf("savgol_window must be at least 3, got %d", *c.SavgolWindow)
	}
	if c.SavgolOrder != nil && *c.SavgolOrder < 0 {
		return fmt.Errorf("savgol_order must be non-negative, got %d", *c.SavgolOrder)
	}
	if c.SavgolWindow != nil && c.SavgolOrder != nil && *c.SavgolOrder >= *c.SavgolWindow {
		return fmt.Errorf("savgol_order (%d) must be less than savgol_window (%d)", *c.SavgolOrder, *c.SavgolWindow)
	}
	if c.SampleRateHz != nil && *c.SampleRateHz <= 0 {
		return fmt.Errorf("sample_rate_hz must be positive, got %f", *c.SampleRateHz)
	}

	for name, v := range map[string]*float64{
		"waist_inertia":             c.WaistInertia,
		"racket_mass":               c.RacketMass,
		"gravity":                   c.Gravity,
		"default_waist_to_shoulder": c.DefaultWaistToShoulder,
		"default_shoulder_to_wrist": c.DefaultShoulderToWrist,
		"ideal_waist_to_shoulder":   c.IdealWaistToShoulder,
		"ideal_shoulder_to_wrist":   c.IdealShoulderToWrist,
		"ideal_wrist_to_racket":     c.IdealWristToRacket,
		"ideal_energy_ratio":        c.IdealEnergyRatio,
		"ideal_rom_waist":           c.IdealROMWaist,
		"ideal_rom_shoulder":        c.IdealROMShoulder,
		"ideal_rom_wrist":           c.IdealROMWrist,
	} {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%s must be positive, got %f", name, *v)
		}
	}
	if c.DefaultEnergyRatio != nil && (*c.DefaultEnergyRatio < 0 || *c.DefaultEnergyRatio > 1) {
		return fmt.Errorf("default_energy_ratio must be within [0, 1], got %f", *c.DefaultEnergyRatio)
	}

	for name, v := range map[string]*string{
		"rollover_threshold": c.RolloverThreshold,
		"analysis_interval":  c.AnalysisInterval,
	} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, *v)
		}
	}

	if c.Timezone != nil && *c.Timezone != "" && !units.IsTimezoneValid(*c.Timezone) {
		return fmt.Errorf("invalid timezone '%s'", *c.Timezone)
	}
	if c.Locale != nil && *c.Locale != string(swing.LocaleZH) && *c.Locale != string(swing.LocaleEN) {
		return fmt.Errorf("locale must be %q or %q, got %q", swing.LocaleZH, swing.LocaleEN, *c.Locale)
	}
	if c.AccUnit != nil && !units.IsValidAcc(*c.AccUnit) {
		return fmt.Errorf("invalid acc_unit '%s' (valid: %s)", *c.AccUnit, units.GetValidUnitsString())
	}
	if c.GyroUnit != nil && !units.IsValidGyro(*c.GyroUnit) {
		return fmt.Errorf("invalid gyro_unit '%s' (valid: %s)", *c.GyroUnit, units.GetValidUnitsString())
	}
	return nil
}

func getFloat(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

func getDuration(p *string, def time.Duration) time.Duration {
	if p == nil || *p == "" {
		return def
	}
	d, err := time.ParseDuration(*p)
	if err != nil {
		return def
	}
	return d
}

// GetSavgolWindow returns the savgol_window value or the default.
func (c *AnalysisConfig) GetSavgolWindow() int {
	if c.SavgolWindow == nil {
		return swing.DefaultSavgolWindow
	}
	return *c.SavgolWindow
}

// GetSavgolOrder returns the savgol_order value or the default.
func (c *AnalysisConfig) GetSavgolOrder() int {
	if c.SavgolOrder == nil {
		return swing.DefaultSavgolOrder
	}
	return *c.SavgolOrder
}

// GetSampleRateHz returns the sample_rate_hz value or the default.
func (c *AnalysisConfig) GetSampleRateHz() float64 {
	return getFloat(c.SampleRateHz, swing.DefaultSampleRate)
}

// GetRolloverThreshold parses and returns the midnight rollover threshold.
func (c *AnalysisConfig) GetRolloverThreshold() time.Duration {
	return getDuration(c.RolloverThreshold, swing.DefaultRolloverThreshold)
}

// GetTimezone returns the timezone value or UTC.
func (c *AnalysisConfig) GetTimezone() string {
	if c.Timezone == nil || *c.Timezone == "" {
		return "UTC"
	}
	return *c.Timezone
}

// GetLocation loads the configured timezone, falling back to UTC.
func (c *AnalysisConfig) GetLocation() *time.Location {
	loc, err := units.LoadLocation(c.GetTimezone())
	if err != nil {
		return time.UTC
	}
	return loc
}

// GetWaistInertia returns the waist_inertia value or the default.
func (c *AnalysisConfig) GetWaistInertia() float64 {
	return getFloat(c.WaistInertia, swing.DefaultWaistInertia)
}

// GetRacketMass returns the racket_mass value or the default.
func (c *AnalysisConfig) GetRacketMass() float64 {
	return getFloat(c.RacketMass, swing.DefaultRacketMass)
}

// GetGravity returns the gravity value or the default.
func (c *AnalysisConfig) GetGravity() float64 {
	return getFloat(c.Gravity, swing.DefaultGravity)
}

// GetDefaultWaistToShoulder returns the fallback waist→shoulder delay in seconds.
func (c *AnalysisConfig) GetDefaultWaistToShoulder() float64 {
	return getFloat(c.DefaultWaistToShoulder, swing.DefaultWaistToShoulder)
}

// GetDefaultShoulderToWrist returns the fallback shoulder→wrist delay in seconds.
func (c *AnalysisConfig) GetDefaultShoulderToWrist() float64 {
	return getFloat(c.DefaultShoulderToWrist, swing.DefaultShoulderToWrist)
}

// GetDefaultEnergyRatio returns the fallback energy ratio.
func (c *AnalysisConfig) GetDefaultEnergyRatio() float64 {
	return getFloat(c.DefaultEnergyRatio, swing.DefaultEnergyRatio)
}

// GetIdeals returns the scoring reference values.
func (c *AnalysisConfig) GetIdeals() swing.Ideals {
	d := swing.DefaultIdeals()
	return swing.Ideals{
		WaistToShoulder: getFloat(c.IdealWaistToShoulder, d.WaistToShoulder),
		ShoulderToWrist: getFloat(c.IdealShoulderToWrist, d.ShoulderToWrist),
		WristToRacket:   getFloat(c.IdealWristToRacket, d.WristToRacket),
		EnergyRatio:     getFloat(c.IdealEnergyRatio, d.EnergyRatio),
		ROMWaist:        getFloat(c.IdealROMWaist, d.ROMWaist),
		ROMShoulder:     getFloat(c.IdealROMShoulder, d.ROMShoulder),
		ROMWrist:        getFloat(c.IdealROMWrist, d.ROMWrist),
	}
}

// GetLocale returns the report locale or zh.
func (c *AnalysisConfig) GetLocale() swing.Locale {
	if c.Locale == nil || *c.Locale == "" {
		return swing.LocaleZH
	}
	return swing.Locale(*c.Locale)
}

// GetAccUnit returns the device acceleration unit or g.
func (c *AnalysisConfig) GetAccUnit() string {
	if c.AccUnit == nil {
		return units.G
	}
	return *c.AccUnit
}

// GetGyroUnit returns the device angular rate unit or deg/s.
func (c *AnalysisConfig) GetGyroUnit() string {
	if c.GyroUnit == nil {
		return units.DPS
	}
	return *c.GyroUnit
}

// GetAnalysisInterval returns how often pending sessions are analysed.
func (c *AnalysisConfig) GetAnalysisInterval() time.Duration {
	return getDuration(c.AnalysisInterval, 5*time.Second)
}

// AnalyzerOptions builds the swing.Options described by the config.
func (c *AnalysisConfig) AnalyzerOptions() swing.Options {
	return swing.Options{
		Filter: swing.FilterOptions{
			Window: c.GetSavgolWindow(),
			Order:  c.GetSavgolOrder(),
		},
		Delay: swing.DelayOptions{
			SampleRate:             c.GetSampleRateHz(),
			DefaultWaistToShoulder: c.GetDefaultWaistToShoulder(),
			DefaultShoulderToWrist: c.GetDefaultShoulderToWrist(),
		},
		Energy: swing.EnergyOptions{
			WaistInertia:  c.GetWaistInertia(),
			RacketMass:    c.GetRacketMass(),
			Gravity:       c.GetGravity(),
			FallbackRatio: c.GetDefaultEnergyRatio(),
		},
		Ideals:            c.GetIdeals(),
		Locale:            c.GetLocale(),
		Location:          c.GetLocation(),
		RolloverThreshold: c.GetRolloverThreshold(),
	}
}
