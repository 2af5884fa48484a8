package port

import "storefront/internal/domain"

// ProgressStore persists re-embedding checkpoints, one per model.
type ProgressStore interface {
	// Load returns an empty Progress when nothing was saved yet.
	Load(model string) (domain.Progress, error)

	Save(model string, p domain.Progress) error

	Reset(model string) error
}
