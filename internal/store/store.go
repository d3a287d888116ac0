package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/m365dash/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// DefaultSnapshotLimit caps ListSnapshots when the caller passes no limit.
const DefaultSnapshotLimit = 50

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error

	CreateSnapshot(ctx context.Context, s *models.Snapshot) error
	ListSnapshots(ctx context.Context, limit int) ([]*models.Snapshot, error)
	GetSnapshot(ctx context.Context, id uuid.UUID) (*models.Snapshot, error)
}
