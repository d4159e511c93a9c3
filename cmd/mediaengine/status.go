package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/localfirst/mediaengine/internal/config"
	"github.com/localfirst/mediaengine/internal/store"
)

// statusReport mirrors spec §6's `GET /system/status` shape, extended with
// a catalogue summary a CLI caller can't get from a bare health check.
type statusReport struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	DatabasePath string `json:"database_path"`
	DataRoot     string `json:"data_root"`
	HubCount     int    `json:"hub_count"`
	WorkCount    int    `json:"work_count"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report catalogue health and summary counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return doStatus(cmd.Context())
	},
}

func doStatus(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	st, openErr := store.Open(ctx, cfg.DatabasePath)
	if openErr != nil {
		// A failed integrity check is still reportable: surface it as
		// status=unavailable rather than letting the CLI crash silently.
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(statusReport{Status: "unavailable", Version: "1", DatabasePath: cfg.DatabasePath, DataRoot: cfg.DataRoot}); err != nil {
			return err
		}
		return openErr
	}
	defer st.Close()

	hubs, err := st.ListHubs(ctx)
	if err != nil {
		return err
	}
	workCount := 0
	for _, h := range hubs {
		workCount += len(h.Works)
	}

	report := statusReport{
		Status:       "ok",
		Version:      "1",
		DatabasePath: cfg.DatabasePath,
		DataRoot:     cfg.DataRoot,
		HubCount:     len(hubs),
		WorkCount:    workCount,
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
