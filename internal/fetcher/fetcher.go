package fetcher

import (
	"context"

	"github.com/COS301-SE-2025/devx360-metrics/internal/domain"
)

// Result bundles everything one refresh needs from the hosting API
type Result struct {
	Snapshot *domain.RepositorySnapshot
	Window   *domain.RawActivityWindow
	Tree     []domain.TreeEntry
}

// Fetcher retrieves raw repository activity for an analysis window. It is
// purely data acquisition; nothing is persisted here.
type Fetcher interface {
	// Fetch retrieves activity for "owner/name" over the trailing windowDays.
	// It fails with a RateLimited, NotFound, Unauthorized or Transient
	// application error.
	Fetch(ctx context.Context, fullName string, windowDays int) (*Result, error)
}
