package main

import (
	"testing"

	"github.com/localfirst/mediaengine/internal/config"
	"github.com/localfirst/mediaengine/internal/ingest"
)

func TestBuildIngestConfigCarriesScoringThresholds(t *testing.T) {
	cfg := config.Default()
	cfg.Scoring.AutoLinkThreshold = 0.9
	cfg.Scoring.ConflictThreshold = 0.5

	ic := buildIngestConfig(cfg, "/tmp/quarantine")

	if ic.Scoring.AutoLinkThreshold != 0.9 {
		t.Errorf("Scoring.AutoLinkThreshold = %v, want 0.9", ic.Scoring.AutoLinkThreshold)
	}
	if ic.Identity.AutoLinkThreshold != 0.9 {
		t.Errorf("Identity.AutoLinkThreshold = %v, want 0.9", ic.Identity.AutoLinkThreshold)
	}
	if ic.QuarantineDir != "/tmp/quarantine" {
		t.Errorf("QuarantineDir = %q, want /tmp/quarantine", ic.QuarantineDir)
	}
}

func TestBuildIngestConfigSkipsDisabledProviders(t *testing.T) {
	cfg := config.Default()
	cfg.Providers = []config.Provider{
		{Name: "filesystem", Enabled: true, Weight: 1.0},
		{Name: "external-isbn", Enabled: false, Weight: 0.9},
		{Name: "external-tmdb", Enabled: true, Weight: 0.7, FieldWeights: map[string]float64{"title": 0.4}},
	}

	ic := buildIngestConfig(cfg, "")

	if _, ok := ic.ProviderWeights["external-isbn"]; ok {
		t.Errorf("disabled provider external-isbn should not appear in ProviderWeights")
	}
	if w := ic.ProviderWeights["external-tmdb"]; w != 0.7 {
		t.Errorf("ProviderWeights[external-tmdb] = %v, want 0.7", w)
	}
	if w := ic.ProviderFieldWeights["external-tmdb"]["title"]; w != 0.4 {
		t.Errorf("ProviderFieldWeights[external-tmdb][title] = %v, want 0.4", w)
	}
	if w := ic.ProviderWeights[ingest.LocalProviderID]; w != 1.0 {
		t.Errorf("ProviderWeights[%s] = %v, want 1.0", ingest.LocalProviderID, w)
	}
}
