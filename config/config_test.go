// SPDX-License-Identifier: Unlicense OR MIT

package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultMobileVsDesktopCap(t *testing.T) {
	mobile := Default(ProfileMobile)
	if mobile.LODPrimitiveCap != 500000 {
		t.Fatalf("mobile default cap: got %d, want 500000", mobile.LODPrimitiveCap)
	}
	desktop := Default(ProfileDesktop)
	if desktop.LODPrimitiveCap != 1500000 {
		t.Fatalf("desktop default cap: got %d, want 1500000", desktop.LODPrimitiveCap)
	}
	if math.Abs(mobile.MaxStdDev-math.Sqrt(8)) > 1e-9 {
		t.Fatalf("max_std_dev default: got %v, want sqrt(8)", mobile.MaxStdDev)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "renderer.toml")
	want := Default(ProfileDesktop)
	want.LODScale = 2.5
	want.SortRadial = false

	if err := Save(path, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path, ProfileMobile) // defaults profile is irrelevant: the file overrides everything present
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.LODScale != 2.5 || got.SortRadial != false {
		t.Fatalf("round trip mismatch: got %+v", got)
	}
	if got.LODPrimitiveCap != want.LODPrimitiveCap {
		t.Fatalf("lod_primitive_cap round trip: got %d, want %d", got.LODPrimitiveCap, want.LODPrimitiveCap)
	}
}

// TestLoadAppliesProfileDefaultsForMissingKeys covers a file that only
// names one key: every other field must come from the profile's defaults,
// not from RendererConfig's Go zero values.
func TestLoadAppliesProfileDefaultsForMissingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.toml")
	if err := os.WriteFile(path, []byte("lod_scale = 3\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := Load(path, ProfileDesktop)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.LODScale != 3 {
		t.Fatalf("expected file override lod_scale=3, got %v", got.LODScale)
	}
	if got.LODPrimitiveCap != 1500000 {
		t.Fatalf("expected desktop default lod_primitive_cap to survive, got %d", got.LODPrimitiveCap)
	}
	if got.NumLODFetchers != 3 {
		t.Fatalf("expected default num_lod_fetchers=3 to survive, got %d", got.NumLODFetchers)
	}
}

func TestValidateRejectsInvertedRadii(t *testing.T) {
	c := Default(ProfileMobile)
	c.MaxPixelRadius = 1
	c.MinPixelRadius = 10
	if err := c.Validate(); err == nil {
		t.Fatalf("expected Validate to reject max < min pixel radius")
	}
}

func TestValidateRejectsZeroFetchers(t *testing.T) {
	c := Default(ProfileMobile)
	c.NumLODFetchers = 0
	if err := c.Validate(); err == nil {
		t.Fatalf("expected Validate to reject zero num_lod_fetchers")
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	bad := Default(ProfileMobile)
	bad.NumLODFetchers = 0
	if err := Save(path, bad); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := Load(path, ProfileMobile); err == nil {
		t.Fatalf("expected Load to surface the validation error")
	}
}
