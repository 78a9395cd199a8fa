package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	storage_go "github.com/supabase-community/storage-go"
)

// SupabaseProvider stores documents in a Supabase Storage bucket. Paths
// map 1:1 onto object keys within the bucket.
type SupabaseProvider struct {
	client *storage_go.Client
	bucket string
}

// NewSupabaseProvider connects to a Supabase project's storage API.
// url and serviceKey come from the environment; bucket must exist or be
// creatable with the given key.
func NewSupabaseProvider(url, serviceKey, bucket string) (*SupabaseProvider, error) {
	if url == "" || serviceKey == "" {
		return nil, fmt.Errorf("%w: supabase url and service key required", ErrMisconfigured)
	}
	if bucket == "" {
		bucket = "semptify-vault"
	}
	client := storage_go.NewClient(url, serviceKey, nil)
	return &SupabaseProvider{client: client, bucket: bucket}, nil
}

func (p *SupabaseProvider) Name() string { return "supabase" }

func (p *SupabaseProvider) IsConnected(_ context.Context) bool {
	_, err := p.client.GetBucket(p.bucket)
	return err == nil
}

func (p *SupabaseProvider) UploadFile(_ context.Context, content []byte, destPath, filename, mime string) (File, error) {
	key := joinKey(destPath, filename)
	opts := storage_go.FileOptions{}
	if mime != "" {
		opts.ContentType = &mime
	}
	upsert := true
	opts.Upsert = &upsert

	resp, err := p.client.UploadFile(p.bucket, key, bytes.NewReader(content), opts)
	if err != nil {
		return File{}, wrapSupabaseErr("upload", err)
	}
	return File{
		ID:         resp.Key,
		Name:       filename,
		Path:       key,
		Size:       int64(len(content)),
		Mime:       mime,
		ModifiedAt: time.Now().UTC(),
	}, nil
}

func (p *SupabaseProvider) DownloadFile(_ context.Context, filePath string) ([]byte, error) {
	data, err := p.client.DownloadFile(p.bucket, strings.TrimPrefix(filePath, "/"))
	if err != nil {
		return nil, wrapSupabaseErr("download", err)
	}
	return data, nil
}

func (p *SupabaseProvider) DeleteFile(_ context.Context, filePath string) (bool, error) {
	_, err := p.client.RemoveFile(p.bucket, []string{strings.TrimPrefix(filePath, "/")})
	if err != nil {
		return false, wrapSupabaseErr("delete", err)
	}
	return true, nil
}

func (p *SupabaseProvider) ListFiles(_ context.Context, folder string, recursive bool) ([]File, error) {
	prefix := strings.TrimPrefix(folder, "/")
	objects, err := p.client.ListFiles(p.bucket, prefix, storage_go.FileSearchOptions{})
	if err != nil {
		return nil, wrapSupabaseErr("list", err)
	}

	var files []File
	for _, obj := range objects {
		f := File{
			ID:       obj.Id,
			Name:     obj.Name,
			Path:     joinKey(prefix, obj.Name),
			IsFolder: obj.Id == "", // storage API lists folders as id-less placeholders
		}
		if t, err := time.Parse(time.RFC3339, obj.UpdatedAt); err == nil {
			f.ModifiedAt = t.UTC()
		}
		files = append(files, f)

		if recursive && f.IsFolder {
			sub, err := p.ListFiles(context.Background(), f.Path, true)
			if err != nil {
				return nil, err
			}
			files = append(files, sub...)
		}
	}
	return files, nil
}

func (p *SupabaseProvider) FileExists(ctx context.Context, filePath string) (bool, error) {
	dir, name := path.Split(strings.TrimPrefix(filePath, "/"))
	files, err := p.ListFiles(ctx, strings.TrimSuffix(dir, "/"), false)
	if err != nil {
		return false, err
	}
	for _, f := range files {
		if f.Name == name && !f.IsFolder {
			return true, nil
		}
	}
	return false, nil
}

// CreateFolder uploads a placeholder object; Supabase folders are
// implicit, so re-creating one is naturally idempotent.
func (p *SupabaseProvider) CreateFolder(ctx context.Context, folderPath string) (bool, error) {
	key := joinKey(folderPath, ".keep")
	if exists, err := p.FileExists(ctx, key); err == nil && exists {
		return true, nil
	}
	contentType := "application/octet-stream"
	upsert := true
	_, err := p.client.UploadFile(p.bucket, key, bytes.NewReader([]byte{}), storage_go.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err != nil {
		return false, wrapSupabaseErr("create_folder", err)
	}
	return true, nil
}

func joinKey(parts ...string) string {
	var clean []string
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p != "" {
			clean = append(clean, p)
		}
	}
	return strings.Join(clean, "/")
}

// wrapSupabaseErr folds the storage API's errors into the sentinel
// classes. Not-found errors mention "not found" or 404, auth failures the
// JWT/key or 401/403; everything else is treated as a transient outage so
// the retry layer can take a swing at it.
func wrapSupabaseErr(op string, err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "not found") || strings.Contains(msg, "404"):
		return fmt.Errorf("%w: %s: %v", ErrNotFound, op, err)
	case strings.Contains(msg, "unauthorized") || strings.Contains(msg, "invalid jwt") ||
		strings.Contains(msg, "403") || strings.Contains(msg, "401"):
		return fmt.Errorf("%w: %s: %v", ErrAuth, op, err)
	default:
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
	}
}
