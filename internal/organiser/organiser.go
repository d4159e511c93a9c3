// Package organiser resolves the on-disk destination for a newly ingested
// asset from a templated path, moves the file there without ever
// overwriting an existing one, and writes the sidecar descriptor and cover
// image beside it (spec §4.9 step 10, §6 "Persisted state layout").
//
// Grounded on the teacher's os.Rename-to-a-computed-path idiom (see e.g.
// internal/daemon/registry.go, internal/storage/sqlite/multirepo_export.go):
// compute the destination, create its parent directories, then rename —
// generalised here with a collision-safe suffix loop and bounded retry
// since, unlike the teacher's single-writer export paths, two ingestions
// can plausibly race for the same templated destination.
package organiser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DefaultTemplate matches spec §4.9 step 10's stated default.
const DefaultTemplate = "{Category}/{HubName} ({Year})/{Format}/{HubName} ({Edition}){Ext}"

// DefaultTemplateNoYear is used when no year claim is available, per spec
// §8 scenario 1's "else Epub/Dune/Epub/Dune.epub" fallback shape.
const DefaultTemplateNoYear = "{Category}/{HubName}/{Format}/{HubName}{Ext}"

// maxRenameAttempts bounds the organiser's retry loop on a transient I/O
// error (spec §7 TransientIO: "organiser rename retry-exhausted").
const maxRenameAttempts = 3

// Placement is everything the organiser needs to compute and execute one
// file's destination.
type Placement struct {
	SourcePath  string
	Category    string // media type, title-cased for display
	HubName     string
	Year        string // empty if unknown
	Format      string // format label, empty if unknown
	EditionTag  string // distinguishes same-title editions, e.g. a short id or format label
	Ext         string // including leading dot
}

// Organiser resolves templated destinations under DataRoot and performs
// the collision-safe move.
type Organiser struct {
	DataRoot string
	Template string
}

// New builds an Organiser rooted at dataRoot. An empty template defaults
// to DefaultTemplate.
func New(dataRoot, template string) *Organiser {
	if template == "" {
		template = DefaultTemplate
	}
	return &Organiser{DataRoot: dataRoot, Template: template}
}

// resolveTemplate picks DefaultTemplate or DefaultTemplateNoYear when the
// caller didn't override Template, matching spec §8 scenario 1's two
// stated shapes; a caller-supplied Template is used verbatim regardless of
// Year so an explicit choice is never second-guessed.
func (o *Organiser) resolveTemplate(p Placement) string {
	if o.Template != DefaultTemplate {
		return o.Template
	}
	if p.Year == "" {
		return DefaultTemplateNoYear
	}
	return o.Template
}

// renderPath substitutes p's fields into the template and joins it onto
// DataRoot. Path-hostile characters in substituted values are stripped so
// a title like "Foo/Bar: A Tale" can't escape the destination directory.
func (o *Organiser) renderPath(p Placement) string {
	tmpl := o.resolveTemplate(p)
	replacer := strings.NewReplacer(
		"{Category}", sanitizeSegment(p.Category),
		"{HubName}", sanitizeSegment(p.HubName),
		"{Year}", sanitizeSegment(p.Year),
		"{Format}", sanitizeSegment(p.Format),
		"{Edition}", sanitizeSegment(p.EditionTag),
		"{Ext}", p.Ext,
	)
	rendered := replacer.Replace(tmpl)
	parts := strings.Split(filepath.ToSlash(rendered), "/")
	return filepath.Join(append([]string{o.DataRoot}, parts...)...)
}

// sanitizeSegment strips path separators and trims whitespace from a value
// headed into a single path segment.
func sanitizeSegment(s string) string {
	s = strings.ReplaceAll(s, "/", "-")
	s = strings.ReplaceAll(s, "\\", "-")
	s = strings.TrimSpace(s)
	return s
}

// Result is what Organise returns on success.
type Result struct {
	DestPath string
}

// Organise computes p's destination, creates intermediate directories,
// and moves the source file there without ever overwriting an existing
// file: a destination collision appends " (2)", " (3)", … before the
// extension (spec §4.9 step 10). Transient rename failures are retried a
// bounded number of times before surfacing spec §7's TransientIO.
func (o *Organiser) Organise(ctx context.Context, p Placement) (Result, error) {
	base := o.renderPath(p)
	dir := filepath.Dir(base)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create destination directory %s: %w", dir, err)
	}

	dest, err := nextAvailablePath(base)
	if err != nil {
		return Result{}, err
	}

	var lastErr error
	for attempt := 1; attempt <= maxRenameAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if err := os.Rename(p.SourcePath, dest); err != nil {
			lastErr = err
			time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
			continue
		}
		return Result{DestPath: dest}, nil
	}
	return Result{}, fmt.Errorf("organise %s to %s after %d attempts: %w", p.SourcePath, dest, maxRenameAttempts, lastErr)
}

// nextAvailablePath returns base if nothing occupies it, else the first
// " (2)", " (3)", … suffixed variant that doesn't exist yet.
func nextAvailablePath(base string) (string, error) {
	if _, err := os.Stat(base); errors.Is(err, os.ErrNotExist) {
		return base, nil
	} else if err != nil {
		return "", fmt.Errorf("stat destination %s: %w", base, err)
	}

	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	for n := 2; ; n++ {
		candidate := stem + " (" + strconv.Itoa(n) + ")" + ext
		if _, err := os.Stat(candidate); errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		} else if err != nil {
			return "", fmt.Errorf("stat destination candidate %s: %w", candidate, err)
		}
	}
}

// Quarantine moves a corrupt or otherwise unprocessable file into
// quarantineDir without ever overwriting an existing file there (spec
// §4.9 step 4: "quarantine ... never delete"). Returns the final path.
func Quarantine(quarantineDir, sourcePath string) (string, error) {
	if err := os.MkdirAll(quarantineDir, 0o755); err != nil {
		return "", fmt.Errorf("create quarantine directory %s: %w", quarantineDir, err)
	}
	base := filepath.Join(quarantineDir, filepath.Base(sourcePath))
	dest, err := nextAvailablePath(base)
	if err != nil {
		return "", err
	}
	if err := os.Rename(sourcePath, dest); err != nil {
		return "", fmt.Errorf("quarantine %s to %s: %w", sourcePath, dest, err)
	}
	return dest, nil
}

// CoverFileName returns the cover image's filename for the given MIME
// type, defaulting to .jpg for anything unrecognised, per spec §6's
// "cover.jpg (or .png)".
func CoverFileName(mime string) string {
	if mime == "image/png" {
		return "cover.png"
	}
	return "cover.jpg"
}

// WriteCover writes coverBytes beside destPath under the conventional
// cover filename. A nil/empty cover is a no-op, since spec §4.6 marks
// CoverBytes optional.
func WriteCover(destPath string, coverBytes []byte, mime string) error {
	if len(coverBytes) == 0 {
		return nil
	}
	dir := filepath.Dir(destPath)
	coverPath := filepath.Join(dir, CoverFileName(mime))
	if err := os.WriteFile(coverPath, coverBytes, 0o644); err != nil {
		return fmt.Errorf("write cover image %s: %w", coverPath, err)
	}
	return nil
}
