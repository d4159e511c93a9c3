package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/localfirst/mediaengine/internal/config"
	"github.com/localfirst/mediaengine/internal/hasher"
	"github.com/localfirst/mediaengine/internal/processor"
	"github.com/localfirst/mediaengine/internal/store"
)

var scanWatchDir string

// scanOperation is one row of the dry-run report spec §6's
// `POST /ingestion/scan` returns: what ProcessCandidate would do, without
// doing any of it.
type scanOperation struct {
	Path         string `json:"path"`
	ContentHash  string `json:"content_hash,omitempty"`
	Action       string `json:"action"`
	DetectedType string `json:"detected_type,omitempty"`
	ClaimCount   int    `json:"claim_count,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Dry-run the ingestion pipeline over the watch directory without mutating the catalogue",
	Long: `scan mirrors spec §6's POST /ingestion/scan: it hashes and
processes every file directly in the watch directory (subdirectories
are skipped), reports what the
orchestrator would do (skip as duplicate, quarantine as corrupt, or
ingest), and writes nothing to the catalogue or the filesystem.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return doScan(cmd.Context())
	},
}

func init() {
	scanCmd.Flags().StringVar(&scanWatchDir, "watch-dir", "inbox", "inbox directory to scan")
}

func doScan(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	st, err := store.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	registry := processor.NewRegistry(processor.FallbackProcessor{}, 0)

	entries, err := os.ReadDir(scanWatchDir)
	if err != nil {
		return fmt.Errorf("read watch dir %s: %w", scanWatchDir, err)
	}

	var ops []scanOperation
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(scanWatchDir, entry.Name())
		ops = append(ops, scanOne(ctx, st, registry, path))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(ops)
}

func scanOne(ctx context.Context, st *store.Store, registry *processor.Registry, path string) scanOperation {
	hashResult, err := hasher.Hash(ctx, path)
	if err != nil {
		return scanOperation{Path: path, Action: "failed", Reason: fmt.Sprintf("hash failed: %v", err)}
	}

	existing, err := st.FindAssetByHash(ctx, hashResult.HexDigest)
	if err != nil && err != store.ErrNotFound {
		return scanOperation{Path: path, ContentHash: hashResult.HexDigest, Action: "failed", Reason: fmt.Sprintf("duplicate lookup failed: %v", err)}
	}
	if existing != nil {
		return scanOperation{Path: path, ContentHash: hashResult.HexDigest, Action: "duplicate_skip"}
	}

	result, err := registry.Process(ctx, path)
	if err != nil {
		return scanOperation{Path: path, ContentHash: hashResult.HexDigest, Action: "failed", Reason: fmt.Sprintf("processing failed: %v", err)}
	}
	if result.IsCorrupt {
		return scanOperation{Path: path, ContentHash: hashResult.HexDigest, Action: "quarantine", Reason: result.CorruptReason}
	}

	return scanOperation{
		Path:         path,
		ContentHash:  hashResult.HexDigest,
		Action:       "ingest",
		DetectedType: result.DetectedType,
		ClaimCount:   len(result.Claims),
	}
}
