package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Settings holds the operator-tunable domain parameters that live in a
// YAML file next to the database, separate from deployment env vars.
// Monetary amounts are in minor units.
type Settings struct {
	// TaxRatePercent is withheld from gross interest before crediting.
	TaxRatePercent float64 `yaml:"tax_rate_percent"`

	// UseMinimumBalanceMethod switches the interest basis from the
	// prior-month closing balance to the lowest running balance
	// observed during that month.
	UseMinimumBalanceMethod bool `yaml:"use_minimum_balance_method"`

	LateFee LateFeeSettings `yaml:"late_fee"`

	// LegacyFeeKeywords classifies pre-migration rows whose kind was
	// never recorded: a category containing one of these is a fee.
	LegacyFeeKeywords []string `yaml:"legacy_fee_keywords"`
}

type LateFeeSettings struct {
	Conventional ConventionalLateFee `yaml:"conventional"`
	Shariah      ShariahLateFee      `yaml:"shariah"`
}

// ConventionalLateFee charges a percentage of the outstanding balance,
// capped.
type ConventionalLateFee struct {
	Percent float64 `yaml:"percent"`
	Cap     int64   `yaml:"cap"`
}

// ShariahLateFee charges a flat administrative amount, capped.
type ShariahLateFee struct {
	Flat int64 `yaml:"flat"`
	Cap  int64 `yaml:"cap"`
}

// DefaultSettings returns the values used when no settings file exists.
func DefaultSettings() *Settings {
	return &Settings{
		TaxRatePercent:          20,
		UseMinimumBalanceMethod: false,
		LateFee: LateFeeSettings{
			Conventional: ConventionalLateFee{Percent: 3, Cap: 15000000},
			Shariah:      ShariahLateFee{Flat: 5750000, Cap: 5750000},
		},
		LegacyFeeKeywords: []string{"fee", "biaya", "admin"},
	}
}

// LoadSettings reads the YAML settings file at path. A missing file is
// not an error; defaults apply.
func LoadSettings(path string) (*Settings, error) {
	s := DefaultSettings()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read settings file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parse settings file %s: %w", path, err)
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("settings file %s: %w", path, err)
	}
	return s, nil
}

func (s *Settings) Validate() error {
	if s.TaxRatePercent < 0 || s.TaxRatePercent > 100 {
		return fmt.Errorf("invalid tax rate %.2f: must be between 0 and 100", s.TaxRatePercent)
	}
	if s.LateFee.Conventional.Percent < 0 {
		return fmt.Errorf("invalid conventional late fee percent %.2f: must not be negative", s.LateFee.Conventional.Percent)
	}
	if s.LateFee.Conventional.Cap < 0 {
		return fmt.Errorf("invalid conventional late fee cap %d: must not be negative", s.LateFee.Conventional.Cap)
	}
	if s.LateFee.Shariah.Flat < 0 {
		return fmt.Errorf("invalid shariah late fee %d: must not be negative", s.LateFee.Shariah.Flat)
	}
	if s.LateFee.Shariah.Cap < 0 {
		return fmt.Errorf("invalid shariah late fee cap %d: must not be negative", s.LateFee.Shariah.Cap)
	}
	return nil
}
