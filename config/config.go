// SPDX-License-Identifier: Unlicense OR MIT

// Package config loads the core's RendererConfig (§6) from a TOML file,
// grounded on the teacher's own config.go (DecodeFile/NewEncoder pairing,
// defaults applied before any file is read).
package config

import (
	"bytes"
	"math"
	"os"

	"github.com/BurntSushi/toml"
)

// RendererConfig holds every tunable named in §6's defaults table. Field
// names mirror the spec's snake_case parameters in Go's exported
// CamelCase, with matching `toml` tags so on-disk files can use the
// spec's own names.
type RendererConfig struct {
	MaxStdDev         float64 `toml:"max_std_dev"`
	MinPixelRadius    float64 `toml:"min_pixel_radius"`
	MaxPixelRadius    float64 `toml:"max_pixel_radius"`
	MinAlpha          float64 `toml:"min_alpha"`
	MinSortIntervalMs int64   `toml:"min_sort_interval_ms"`
	MinLODIntervalMs  int64   `toml:"min_lod_interval_ms"`
	LODPrimitiveCap   int     `toml:"lod_primitive_cap"`
	LODScale          float64 `toml:"lod_scale"`
	OutsideFoveate    float64 `toml:"outside_foveate"`
	BehindFoveate     float64 `toml:"behind_foveate"`
	ConeFov0          float64 `toml:"cone_fov0"`
	ConeFov           float64 `toml:"cone_fov"`
	ConeFoveate       float64 `toml:"cone_foveate"`
	NumLODFetchers    int     `toml:"num_lod_fetchers"`
	SortRadial        bool    `toml:"sort_radial"`
}

// Profile selects which lod_primitive_cap default applies (§6).
type Profile int

const (
	ProfileMobile Profile = iota
	ProfileDesktop
)

// Default returns §6's defaults table for the given hardware profile.
func Default(profile Profile) RendererConfig {
	cap := 500000
	if profile == ProfileDesktop {
		cap = 1500000
	}
	return RendererConfig{
		MaxStdDev:         math.Sqrt(8),
		MinPixelRadius:    0,
		MaxPixelRadius:    512,
		MinAlpha:          0.5 / 255,
		MinSortIntervalMs: 1,
		MinLODIntervalMs:  1,
		LODPrimitiveCap:   cap,
		LODScale:          1.0,
		OutsideFoveate:    1.0,
		BehindFoveate:     1.0,
		ConeFov0:          0,
		ConeFov:           0,
		ConeFoveate:       1.0,
		NumLODFetchers:    3,
		SortRadial:        true,
	}
}

// ConfigError reports an invalid RendererConfig, whether built by hand or
// loaded from a file.
type ConfigError struct{ Reason string }

func (e *ConfigError) Error() string { return "config: invalid renderer config: " + e.Reason }

// Validate rejects configurations that would make downstream components
// misbehave: negative radii/caps, zero fetcher concurrency, and so on.
func (c RendererConfig) Validate() error {
	switch {
	case c.MaxStdDev <= 0:
		return &ConfigError{Reason: "max_std_dev must be positive"}
	case c.MinPixelRadius < 0:
		return &ConfigError{Reason: "min_pixel_radius must be non-negative"}
	case c.MaxPixelRadius < c.MinPixelRadius:
		return &ConfigError{Reason: "max_pixel_radius must be >= min_pixel_radius"}
	case c.MinAlpha < 0 || c.MinAlpha > 1:
		return &ConfigError{Reason: "min_alpha must be in [0,1]"}
	case c.MinSortIntervalMs < 0:
		return &ConfigError{Reason: "min_sort_interval_ms must be non-negative"}
	case c.MinLODIntervalMs < 0:
		return &ConfigError{Reason: "min_lod_interval_ms must be non-negative"}
	case c.LODPrimitiveCap < 0:
		return &ConfigError{Reason: "lod_primitive_cap must be non-negative"}
	case c.NumLODFetchers <= 0:
		return &ConfigError{Reason: "num_lod_fetchers must be positive"}
	}
	return nil
}

// Load reads a RendererConfig from a TOML file at path, starting from
// profile's defaults so an on-disk file only needs to override what it
// cares about.
func Load(path string, profile Profile) (RendererConfig, error) {
	conf := Default(profile)
	if _, err := toml.DecodeFile(path, &conf); err != nil {
		return RendererConfig{}, err
	}
	if err := conf.Validate(); err != nil {
		return RendererConfig{}, err
	}
	return conf, nil
}

// Save writes conf to path as TOML, overwriting any existing file.
func Save(path string, conf RendererConfig) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(&conf); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}
