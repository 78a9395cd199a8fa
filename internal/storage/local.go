package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LocalProvider stores files under a root directory on the local disk.
// It is the reference implementation used by tests and single-box
// deployments; the semantics match the cloud providers exactly.
type LocalProvider struct {
	root string
}

// NewLocalProvider creates a provider rooted at dir, creating it if
// needed.
func NewLocalProvider(dir string) (*LocalProvider, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: empty local storage root", ErrMisconfigured)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create root %s: %v", ErrMisconfigured, dir, err)
	}
	return &LocalProvider{root: dir}, nil
}

func (p *LocalProvider) Name() string { return "local" }

func (p *LocalProvider) IsConnected(_ context.Context) bool {
	_, err := os.Stat(p.root)
	return err == nil
}

// resolve maps a provider path under the root, refusing traversal out.
func (p *LocalProvider) resolve(path string) (string, error) {
	clean := filepath.Clean("/" + strings.TrimPrefix(path, "/"))
	full := filepath.Join(p.root, clean)
	if !strings.HasPrefix(full, filepath.Clean(p.root)+string(os.PathSeparator)) && full != filepath.Clean(p.root) {
		return "", fmt.Errorf("%w: path escapes storage root: %s", ErrNotFound, path)
	}
	return full, nil
}

func (p *LocalProvider) UploadFile(_ context.Context, content []byte, destPath, filename, mime string) (File, error) {
	dir, err := p.resolve(destPath)
	if err != nil {
		return File{}, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return File{}, fmt.Errorf("%w: mkdir: %v", ErrUnavailable, err)
	}
	full := filepath.Join(dir, filepath.Base(filename))
	if err := os.WriteFile(full, content, 0o644); err != nil {
		return File{}, fmt.Errorf("%w: write: %v", ErrUnavailable, err)
	}
	rel := strings.TrimPrefix(strings.TrimPrefix(full, filepath.Clean(p.root)), string(os.PathSeparator))
	return File{
		ID:         rel,
		Name:       filepath.Base(filename),
		Path:       rel,
		Size:       int64(len(content)),
		Mime:       mime,
		ModifiedAt: time.Now().UTC(),
	}, nil
}

func (p *LocalProvider) DownloadFile(_ context.Context, path string) ([]byte, error) {
	full, err := p.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("%w: read: %v", ErrUnavailable, err)
	}
	return data, nil
}

func (p *LocalProvider) DeleteFile(_ context.Context, path string) (bool, error) {
	full, err := p.resolve(path)
	if err != nil {
		return false, err
	}
	if err := os.Remove(full); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return false, fmt.Errorf("%w: remove: %v", ErrUnavailable, err)
	}
	return true, nil
}

func (p *LocalProvider) ListFiles(_ context.Context, folder string, recursive bool) ([]File, error) {
	full, err := p.resolve(folder)
	if err != nil {
		return nil, err
	}
	var files []File
	if recursive {
		err = filepath.WalkDir(full, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if path == full {
				return nil
			}
			files = append(files, p.describe(path, d))
			return nil
		})
	} else {
		var entries []fs.DirEntry
		entries, err = os.ReadDir(full)
		for _, d := range entries {
			files = append(files, p.describe(filepath.Join(full, d.Name()), d))
		}
	}
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, folder)
		}
		return nil, fmt.Errorf("%w: list: %v", ErrUnavailable, err)
	}
	return files, nil
}

func (p *LocalProvider) describe(path string, d fs.DirEntry) File {
	rel := strings.TrimPrefix(strings.TrimPrefix(path, filepath.Clean(p.root)), string(os.PathSeparator))
	f := File{ID: rel, Name: d.Name(), Path: rel, IsFolder: d.IsDir()}
	if info, err := d.Info(); err == nil {
		f.Size = info.Size()
		f.ModifiedAt = info.ModTime().UTC()
	}
	return f
}

func (p *LocalProvider) FileExists(_ context.Context, path string) (bool, error) {
	full, err := p.resolve(path)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(full); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("%w: stat: %v", ErrUnavailable, err)
	}
	return true, nil
}

// CreateFolder is idempotent: an existing folder is success.
func (p *LocalProvider) CreateFolder(_ context.Context, path string) (bool, error) {
	full, err := p.resolve(path)
	if err != nil {
		return false, err
	}
	if err := os.MkdirAll(full, 0o755); err != nil {
		return false, fmt.Errorf("%w: mkdir: %v", ErrUnavailable, err)
	}
	return true, nil
}
