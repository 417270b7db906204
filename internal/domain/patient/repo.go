package patient

import (
	"context"

	"github.com/google/uuid"
)

// PatientRepository is the record store. Implementations must back email
// uniqueness with a storage-level constraint and translate its violation
// into an *EmailConflictError.
type PatientRepository interface {
	// List returns every record in the store's natural order.
	List(ctx context.Context) ([]*Patient, error)
	// GetByID returns a *NotFoundError when no record has id.
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	// ExistsByEmailExcludingID ignores the record with id.
	ExistsByEmailExcludingID(ctx context.Context, email string, id uuid.UUID) (bool, error)
	// Create assigns p.ID and timestamps before inserting.
	Create(ctx context.Context, p *Patient) error
	Update(ctx context.Context, p *Patient) error
	// Delete is a no-op for unknown ids.
	Delete(ctx context.Context, id uuid.UUID) error
}
