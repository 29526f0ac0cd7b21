package files

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"ledgerlens/internal/tabular"
)

// FileInfo represents one ingestible file
type FileInfo struct {
	Path    string
	Name    string
	Size    int64
	ModTime time.Time
	Format  tabular.Format
}

// Discovery locates ingestible files on disk
type Discovery struct {
	logger *slog.Logger
}

// NewDiscovery creates a new file discovery instance
func NewDiscovery(logger *slog.Logger) *Discovery {
	if logger == nil {
		logger = slog.Default()
	}
	return &Discovery{logger: logger.With(slog.String("component", "files"))}
}

// skipped reports names no reader should see: office lock files and
// hidden files
func skipped(name string) bool {
	return strings.HasPrefix(name, "~$") || strings.HasPrefix(name, ".")
}

// FindSources lists the files in dir that a tabular reader accepts,
// sorted by name. Subdirectories are not descended into.
func (d *Discovery) FindSources(dir string) ([]FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var files []FileInfo
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || skipped(name) {
			continue
		}
		format, err := tabular.FormatForPath(name)
		if err != nil {
			d.logger.Debug("skipping unsupported file", slog.String("file", name))
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, FileInfo{
			Path:    filepath.Join(dir, name),
			Name:    name,
			Size:    info.Size(),
			ModTime: info.ModTime(),
			Format:  format,
		})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })

	d.logger.Info("sources discovered",
		slog.String("directory", dir),
		slog.Int("files_found", len(files)))
	return files, nil
}

// ValidateSource checks that path is a readable, non-empty file of a
// supported format
func (d *Discovery) ValidateSource(path string) (FileInfo, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return FileInfo{}, fmt.Errorf("file %s does not exist", path)
	}
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to stat file %s: %w", path, err)
	}
	if info.IsDir() {
		return FileInfo{}, fmt.Errorf("%s is a directory, not a file", path)
	}
	if skipped(info.Name()) {
		return FileInfo{}, fmt.Errorf("file %s is a temporary or hidden file", path)
	}
	if info.Size() == 0 {
		return FileInfo{}, fmt.Errorf("file %s is empty", path)
	}
	format, err := tabular.FormatForPath(path)
	if err != nil {
		return FileInfo{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return FileInfo{}, fmt.Errorf("file %s is not readable: %w", path, err)
	}
	f.Close()

	d.logger.Debug("file validated",
		slog.String("file", path),
		slog.Int64("size", info.Size()))
	return FileInfo{
		Path:    path,
		Name:    info.Name(),
		Size:    info.Size(),
		ModTime: info.ModTime(),
		Format:  format,
	}, nil
}
