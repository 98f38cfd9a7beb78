package triage

import (
	"context"

	"github.com/linnemanlabs/cityfix/internal/geo"
)

// UpdateFunc mutates a complaint in place. Returning an error discards the change.
type UpdateFunc func(c *Complaint) error

// IntakeFunc runs one complaint intake against a locked view of the store.
type IntakeFunc func(ctx context.Context, tx IntakeTx) error

// IntakeTx is the store view available during an intake. Changes made through it
// are committed together when the IntakeFunc returns nil.
type IntakeTx interface {
	// Recent returns up to limit geolocated complaints, newest first.
	Recent(ctx context.Context, limit int) ([]*Complaint, error)
	Get(ctx context.Context, id string) (*Complaint, bool, error)
	Insert(ctx context.Context, c *Complaint) error
	Save(ctx context.Context, c *Complaint) error
}

// Store is the persistence interface for complaints.
type Store interface {
	Get(ctx context.Context, id string) (*Complaint, bool, error)
	// List returns every complaint, newest first.
	List(ctx context.Context) ([]*Complaint, error)
	// Update applies fn to the stored complaint atomically and returns the result.
	// It returns ErrNotFound when id does not exist.
	Update(ctx context.Context, id string, fn UpdateFunc) (*Complaint, error)
	// Intake runs fn so that no other intake within radiusMeters of near runs at the same time.
	// A nil near still runs fn, without any spatial exclusion.
	Intake(ctx context.Context, near *geo.Point, radiusMeters float64, fn IntakeFunc) error
}
