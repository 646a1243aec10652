package survey

import (
	"context"

	"github.com/Agafia/bot-fire-water-sources/internal/models"
)

// FeatureStore is the slice of the geospatial feature store the dialogue needs.
// Implemented by the nextgis client in production and by fakes in tests.
type FeatureStore interface {
	// GetFeature retrieves one feature of a resource by its id.
	// Returns models.ErrFeatureNotFound when the id does not resolve.
	GetFeature(ctx context.Context, resourceID, featureID int) (*models.Feature, error)

	// PutFeature overwrites the given fields of an existing feature.
	PutFeature(ctx context.Context, resourceID, featureID int, fields map[string]any) error

	// CreateFeature creates a new feature and returns its store-assigned id.
	CreateFeature(ctx context.Context, resourceID int, fields map[string]any, geom string) (int, error)
}

// FileStorage is the slice of the cloud file storage the commit needs.
// Implemented by the gdrive client in production and by fakes in tests.
type FileStorage interface {
	// EnsureFolder reconciles the destination folder and returns the folder id
	// to use going forward, which may differ from existingID.
	EnsureFolder(ctx context.Context, existingID, name, parentID string) (string, error)

	// UploadFromURL downloads sourceURL and stores it under name in folderID.
	UploadFromURL(ctx context.Context, sourceURL, name, folderID string) error
}
