package repo

import (
	"context"
	"errors"

	"github.com/hamed0406/homewatch/internal/domain"
)

// ErrUnknownTarget is returned when a write names a target outside the
// registry the store was built from.
var ErrUnknownTarget = errors.New("unknown target")

// StatusStore holds the latest observation per configured target.
// Implementations must be safe for concurrent use by all monitor loops and
// any number of readers.
type StatusStore interface {
	PutDevice(ctx context.Context, s domain.DeviceStatus) error
	PutDomain(ctx context.Context, s domain.DomainStatus) error
	// Snapshot returns copies of every entry, taken atomically with respect
	// to writers. Order is unspecified.
	Snapshot(ctx context.Context) ([]domain.DeviceStatus, []domain.DomainStatus)
}
