// Package config loads and saves the engine's JSON configuration file, per
// spec §6: a primary file, a `.bak` fallback, and a persisted first-run
// default. Environment variables layered on top of the loaded file use
// viper purely as an overlay, not as the primary loader — grounded on the
// teacher's internal/config/config.go env-binding conventions
// (SetEnvPrefix + AutomaticEnv + explicit SetDefault calls), adapted from
// a YAML-primary loader to a JSON-primary one because spec §6 is explicit
// about the file format and the backup-rotation contract.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// ProviderDomain categorises a metadata provider by the kind of media it
// serves.
type ProviderDomain string

const (
	DomainEbook      ProviderDomain = "Ebook"
	DomainAudiobook  ProviderDomain = "Audiobook"
	DomainVideo      ProviderDomain = "Video"
	DomainUniversal  ProviderDomain = "Universal"
)

// Provider is one entry in the providers[] array.
type Provider struct {
	Name           string             `json:"name"`
	Version        string             `json:"version"`
	Enabled        bool               `json:"enabled"`
	Weight         float64            `json:"weight"`
	Domain         ProviderDomain     `json:"domain"`
	CapabilityTags []string           `json:"capability_tags"`
	FieldWeights   map[string]float64 `json:"field_weights"`
}

// Maintenance holds housekeeping tunables.
type Maintenance struct {
	MaxTransactionLogEntries int  `json:"max_transaction_log_entries"`
	VacuumOnStartup          bool `json:"vacuum_on_startup"`
}

// Scoring mirrors scoring.Config's fields for on-disk persistence.
type Scoring struct {
	AutoLinkThreshold     float64 `json:"auto_link_threshold"`
	ConflictThreshold     float64 `json:"conflict_threshold"`
	ConflictEpsilon       float64 `json:"conflict_epsilon"`
	StaleClaimDecayDays   int     `json:"stale_claim_decay_days"`
	StaleClaimDecayFactor float64 `json:"stale_claim_decay_factor"`
}

// Config is the full on-disk configuration document (spec §6).
type Config struct {
	SchemaVersion     int               `json:"schema_version"`
	DatabasePath      string            `json:"database_path"`
	DataRoot          string            `json:"data_root"`
	Providers         []Provider        `json:"providers"`
	ProviderEndpoints map[string]string `json:"provider_endpoints"`
	Maintenance       Maintenance       `json:"maintenance"`
	Scoring           Scoring           `json:"scoring"`
}

// Default returns the first-run configuration persisted when neither the
// primary nor backup file can be read.
func Default() Config {
	return Config{
		SchemaVersion:     1,
		DatabasePath:      "mediaengine.db",
		DataRoot:          "library",
		Providers:         []Provider{{Name: "filesystem", Version: "1", Enabled: true, Weight: 1.0, Domain: DomainUniversal}},
		ProviderEndpoints: map[string]string{},
		Maintenance:       Maintenance{MaxTransactionLogEntries: 100_000, VacuumOnStartup: false},
		Scoring: Scoring{
			AutoLinkThreshold:     0.85,
			ConflictThreshold:     0.60,
			ConflictEpsilon:       0.05,
			StaleClaimDecayDays:   90,
			StaleClaimDecayFactor: 0.8,
		},
	}
}

// Load implements spec §6's load order: primary → `.bak` (restoring the
// primary on success) → first-run default (created and persisted).
func Load(path string) (Config, error) {
	cfg, err := readJSON(path)
	if err == nil {
		applyEnvOverlay(&cfg)
		return cfg, nil
	}

	backupPath := path + ".bak"
	cfg, backupErr := readJSON(backupPath)
	if backupErr == nil {
		if writeErr := writeJSON(path, cfg); writeErr != nil {
			return Config{}, fmt.Errorf("restore primary config from backup: %w", writeErr)
		}
		applyEnvOverlay(&cfg)
		return cfg, nil
	}

	cfg = Default()
	if saveErr := Save(path, cfg); saveErr != nil {
		return Config{}, fmt.Errorf("persist first-run default config: %w", saveErr)
	}
	applyEnvOverlay(&cfg)
	return cfg, nil
}

// Save rotates the existing primary file to `.bak` before overwriting it,
// per spec §6.
func Save(path string, cfg Config) error {
	if _, err := os.Stat(path); err == nil {
		data, readErr := os.ReadFile(path)
		if readErr == nil {
			if writeErr := os.WriteFile(path+".bak", data, 0o644); writeErr != nil {
				return fmt.Errorf("rotate primary to backup: %w", writeErr)
			}
		}
	}
	return writeJSON(path, cfg)
}

func readJSON(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func writeJSON(path string, cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// applyEnvOverlay layers ENGINE_-prefixed environment variables over the
// loaded file, the same AutomaticEnv + explicit-binding shape the
// teacher's config.Initialize uses for its BD_ variables. Config changes
// via env are intentionally limited to the handful of operationally
// useful overrides (paths, scoring thresholds) rather than the full
// provider list, which belongs in the file.
func applyEnvOverlay(cfg *Config) {
	v := viper.New()
	v.SetEnvPrefix("ENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if v.IsSet("database_path") {
		cfg.DatabasePath = v.GetString("database_path")
	}
	if v.IsSet("data_root") {
		cfg.DataRoot = v.GetString("data_root")
	}
	if v.IsSet("scoring_auto_link_threshold") {
		if f, err := strconv.ParseFloat(v.GetString("scoring_auto_link_threshold"), 64); err == nil {
			cfg.Scoring.AutoLinkThreshold = f
		}
	}
	if v.IsSet("scoring_conflict_threshold") {
		if f, err := strconv.ParseFloat(v.GetString("scoring_conflict_threshold"), 64); err == nil {
			cfg.Scoring.ConflictThreshold = f
		}
	}
	if v.IsSet("maintenance_vacuum_on_startup") {
		cfg.Maintenance.VacuumOnStartup = v.GetBool("maintenance_vacuum_on_startup")
	}
}
