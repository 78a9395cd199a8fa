package storage

import (
	"context"
	"fmt"
)

// Folder layout inside a user's provider. Documents live in the vault
// subtree; the sealed auth token sits next to it.
const (
	AppFolder     = ".semptify"
	VaultFolder   = AppFolder + "/vault"
	AuthTokenFile = AppFolder + "/auth_token.enc"
)

// EnsureAppFolder creates the .semptify folder if it is missing.
func EnsureAppFolder(ctx context.Context, p Provider) error {
	exists, err := p.FileExists(ctx, AppFolder)
	if err != nil {
		return err
	}
	if !exists {
		if _, err := p.CreateFolder(ctx, AppFolder); err != nil {
			return err
		}
	}
	return nil
}

// UploadDocument places a document in the vault subtree, sharded by
// document type when one is known.
func UploadDocument(ctx context.Context, p Provider, content []byte, filename, docType, mime string) (File, error) {
	folder := VaultFolder
	if docType != "" {
		folder = fmt.Sprintf("%s/%s", VaultFolder, docType)
	}
	if _, err := p.CreateFolder(ctx, folder); err != nil {
		return File{}, err
	}
	return p.UploadFile(ctx, content, folder, filename, mime)
}

// ListDocuments lists the vault subtree, optionally narrowed to one
// document type.
func ListDocuments(ctx context.Context, p Provider, docType string) ([]File, error) {
	folder := VaultFolder
	if docType != "" {
		folder = fmt.Sprintf("%s/%s", VaultFolder, docType)
	}
	return p.ListFiles(ctx, folder, true)
}
