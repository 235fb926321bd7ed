package report

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/zytedata/onefile/internal/model"
)

// WriteJSON writes the summary as indented JSON to path.
func WriteJSON(fs afero.Fs, path string, summary *model.Summary) error {
	if summary == nil {
		return fmt.Errorf("summary is required")
	}

	data, err := MarshalJSON(summary)
	if err != nil {
		return err
	}

	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory for %s: %w", path, err)
	}

	if err := afero.WriteFile(fs, path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write summary to %s: %w", path, err)
	}

	return nil
}

// MarshalJSON returns the summary as a JSON byte slice.
func MarshalJSON(summary *model.Summary) ([]byte, error) {
	if summary == nil {
		return nil, fmt.Errorf("summary is required")
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal summary: %w", err)
	}
	return data, nil
}
