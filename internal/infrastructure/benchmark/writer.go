package benchmark

import (
	"context"
	"path/filepath"
	"strings"

	"detectmesh/pkg/archive"
)

// WriteReport persists the report as JSON at exactly the given path.
func WriteReport(ctx context.Context, path string, report *Report) error {
	dir := filepath.Dir(path)
	storage, err := archive.NewFileStorage(dir)
	if err != nil {
		return err
	}
	return archive.New(storage).SaveJSON(ctx, filepath.Base(path), report)
}

// PartialPath derives the aborted-run variant of an output path by
// suffixing the base name before its extension: results.json becomes
// results_partial.json.
func PartialPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_partial" + ext
}
