// Package gdrive implements the file-storage client over the Google Drive API.
//
// Photographs captured during a survey end up in one Drive folder per water
// source, all under a configured parent folder. Authentication uses a service
// account; the account's e-mail must be granted access to the parent folder.
package gdrive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	// FolderMimeType is the Drive MIME type marking a file as a folder.
	FolderMimeType = "application/vnd.google-apps.folder"
	// DefaultDownloadTimeout bounds the fetch of a photo from the transport's file URL.
	DefaultDownloadTimeout = 60 * time.Second
)

// Opts holds configuration options for the Drive client.
type Opts struct {
	CredentialsFile string
	ClientOptions   []option.ClientOption
}

// Option defines a configuration option for the Drive client.
type Option func(*Opts)

// WithCredentialsFile sets the path of the service account JSON key file.
func WithCredentialsFile(path string) Option {
	return func(o *Opts) {
		o.CredentialsFile = path
	}
}

// WithClientOptions appends raw google-api client options, mainly for tests
// (custom endpoint and HTTP client).
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(o *Opts) {
		o.ClientOptions = append(o.ClientOptions, opts...)
	}
}

// Client wraps the Drive service for folder reconciliation and uploads.
type Client struct {
	svc      *drive.Service
	download *http.Client
}

// NewClient creates a Drive client, applying any provided options.
func NewClient(ctx context.Context, opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}

	clientOpts := []option.ClientOption{option.WithScopes(drive.DriveScope)}
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	clientOpts = append(clientOpts, cfg.ClientOptions...)

	svc, err := drive.NewService(ctx, clientOpts...)
	if err != nil {
		slog.Error("Failed to create Drive service", "error", err)
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}
	slog.Debug("Drive client created", "credentials_file_set", cfg.CredentialsFile != "")
	return &Client{svc: svc, download: &http.Client{Timeout: DefaultDownloadTimeout}}, nil
}

// EnsureFolder reconciles the destination folder for a water source and returns
// the folder id to use going forward.
//
// When existingID refers to a live folder its name is refreshed and the same id
// is returned. When the id is empty, unknown, or points at a trashed folder, a
// new folder is created under parentID and its id is returned; the caller is
// responsible for writing the new id back to the feature store.
func (c *Client) EnsureFolder(ctx context.Context, existingID, name, parentID string) (string, error) {
	if existingID != "" {
		existing, err := c.svc.Files.Get(existingID).Fields("id", "name", "trashed").Context(ctx).Do()
		switch {
		case isNotFound(err):
			slog.Debug("Drive folder id no longer resolves, creating a new folder", "folder_id", existingID)
		case err != nil:
			slog.Error("Drive folder lookup failed", "error", err, "folder_id", existingID)
			return "", fmt.Errorf("folder lookup failed: %w", err)
		case existing.Trashed:
			slog.Debug("Drive folder is trashed, creating a new folder", "folder_id", existingID)
		default:
			if existing.Name != name {
				if _, err := c.svc.Files.Update(existingID, &drive.File{Name: name}).Context(ctx).Do(); err != nil {
					slog.Error("Drive folder rename failed", "error", err, "folder_id", existingID)
					return "", fmt.Errorf("folder rename failed: %w", err)
				}
			}
			slog.Debug("Drive folder reused", "folder_id", existingID)
			return existingID, nil
		}
	}

	created, err := c.svc.Files.Create(&drive.File{
		Name:     name,
		MimeType: FolderMimeType,
		Parents:  []string{parentID},
	}).Fields("id").Context(ctx).Do()
	if err != nil {
		slog.Error("Drive folder create failed", "error", err, "name", name)
		return "", fmt.Errorf("folder create failed: %w", err)
	}
	slog.Info("Drive folder created", "folder_id", created.Id, "name", name)
	return created.Id, nil
}

// UploadFromURL downloads a file from sourceURL and stores it under the given
// name in the destination folder.
func (c *Client) UploadFromURL(ctx context.Context, sourceURL, name, folderID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build download request: %w", err)
	}
	resp, err := c.download.Do(req)
	if err != nil {
		slog.Error("Drive upload source download failed", "error", err, "name", name)
		return fmt.Errorf("source download failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("source download returned status %d", resp.StatusCode)
	}

	_, err = c.svc.Files.Create(&drive.File{
		Name:    name,
		Parents: []string{folderID},
	}).Media(resp.Body).Context(ctx).Do()
	if err != nil {
		slog.Error("Drive upload failed", "error", err, "name", name, "folder_id", folderID)
		return fmt.Errorf("upload failed: %w", err)
	}
	slog.Debug("Drive upload succeeded", "name", name, "folder_id", folderID)
	return nil
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
