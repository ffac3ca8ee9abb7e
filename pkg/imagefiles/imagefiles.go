package imagefiles

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/samber/lo"
)

// AllowedExtensions is the fixed set of extensions picked up from the images
// folder. Matching is case-sensitive, so "photo.JPG" is skipped.
var AllowedExtensions = []string{".jpg", ".jpeg", ".png"}

// ListImageFiles returns the image files directly inside dir (no recursion),
// joined with dir and sorted by path. A missing directory is not an error:
// the run simply has nothing to analyze.
func ListImageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			slog.Info("Images directory not found, nothing to analyze", "dir", dir)
			return nil, nil
		}
		return nil, fmt.Errorf("error reading directory %s: %v", dir, err)
	}

	var files []string
	for _, f := range entries {
		if f.IsDir() {
			continue
		}
		name := f.Name()
		allowed := lo.SomeBy(AllowedExtensions, func(ext string) bool {
			matched, err := filepath.Match("*"+ext, name)
			return err == nil && matched
		})
		if allowed {
			files = append(files, filepath.Join(dir, name))
		}
	}

	sort.Strings(files)

	slog.Debug("Images directory listed", "dir", dir, "count", len(files))
	return files, nil
}
