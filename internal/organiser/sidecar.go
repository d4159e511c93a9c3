package organiser

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SidecarSuffix is appended to an organised media file's own name to
// derive its sidecar descriptor's filename, e.g. "Dune.epub" gets
// "Dune.epub.mediaengine.xml".
const SidecarSuffix = ".mediaengine.xml"

// SidecarClaim is one claim recorded in the sidecar, enough to replay
// through Store.AppendClaim during a Great Inhale.
type SidecarClaim struct {
	EntityType   string  `xml:"entityType,attr"`
	ProviderID   string  `xml:"providerId,attr"`
	Key          string  `xml:"key,attr"`
	Value        string  `xml:"value,attr"`
	Confidence   float64 `xml:"confidence,attr"`
	ClaimedAt    string  `xml:"claimedAt,attr"`
	IsUserLocked bool    `xml:"isUserLocked,attr"`
}

// SidecarCanonical is one scored canonical value recorded in the sidecar.
type SidecarCanonical struct {
	Key   string `xml:"key,attr"`
	Value string `xml:"value,attr"`
}

// Sidecar is the full disaster-recovery descriptor spec §6 requires:
// "enough detail to reconstruct Hub identity and canonical values". One
// document is written per asset, adjacent to the organised file.
type Sidecar struct {
	XMLName       xml.Name           `xml:"mediaEngineAsset"`
	SchemaVersion int                `xml:"schemaVersion,attr"`
	ContentHash   string             `xml:"contentHash"`
	HubName       string             `xml:"hubName"`
	MediaType     string             `xml:"mediaType"`
	FormatLabel   string             `xml:"formatLabel,omitempty"`
	EntityID      string             `xml:"entityId"`
	WrittenAt     string             `xml:"writtenAt"`
	Claims        []SidecarClaim     `xml:"claims>claim"`
	Canonical     []SidecarCanonical `xml:"canonical>value"`
}

// PathFor derives a sidecar's path from the organised media file's path.
func PathFor(mediaPath string) string {
	return mediaPath + SidecarSuffix
}

// WriteSidecar marshals sc as an indented XML document at PathFor(mediaPath).
func WriteSidecar(mediaPath string, sc Sidecar) error {
	data, err := xml.MarshalIndent(sc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode sidecar for %s: %w", mediaPath, err)
	}
	data = append([]byte(xml.Header), data...)
	if err := os.WriteFile(PathFor(mediaPath), data, 0o644); err != nil {
		return fmt.Errorf("write sidecar for %s: %w", mediaPath, err)
	}
	return nil
}

// ReadSidecar parses one sidecar document from disk, used by the Great
// Inhale reconciliation pass.
func ReadSidecar(path string) (Sidecar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Sidecar{}, fmt.Errorf("read sidecar %s: %w", path, err)
	}
	var sc Sidecar
	if err := xml.Unmarshal(data, &sc); err != nil {
		return Sidecar{}, fmt.Errorf("parse sidecar %s: %w", path, err)
	}
	return sc, nil
}

// WalkSidecars finds every sidecar document under root, invoking fn for
// each. Used by the Great Inhale to rebuild the catalogue from disk.
func WalkSidecars(root string, fn func(path string, sc Sidecar) error) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, SidecarSuffix) {
			return nil
		}
		sc, readErr := ReadSidecar(path)
		if readErr != nil {
			return readErr
		}
		return fn(path, sc)
	})
}
