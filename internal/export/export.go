// Package export writes prepared export payloads to disk as an audit trail.
package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/linnemanlabs/cityfix/internal/triage"
)

var errBadID = errors.New("export: complaint id is not a safe file name")

// Writer implements triage.Exporter by writing one JSON file per complaint.
type Writer struct {
	dir string
}

// NewWriter returns a writer rooted at dir. The directory is created on first write.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

var _ triage.Exporter = (*Writer)(nil)

// FileName returns the file name used for a complaint's payload.
func FileName(id string) string {
	return "export_payload_" + id + ".json"
}

// Export writes p as indented JSON and returns the file path.
// The file is written to a temp name first and renamed so readers never see a partial payload.
func (w *Writer) Export(_ context.Context, p *triage.ExportPayload) (string, error) {
	if p.ComplaintID == "" || strings.ContainsAny(p.ComplaintID, `/\`) || p.ComplaintID == "." || p.ComplaintID == ".." {
		return "", fmt.Errorf("%w: %q", errBadID, p.ComplaintID)
	}

	if err := os.MkdirAll(w.dir, 0o750); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(w.dir, ".export-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write payload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close payload: %w", err)
	}

	path := filepath.Join(w.dir, FileName(p.ComplaintID))
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("rename payload: %w", err)
	}
	return path, nil
}
