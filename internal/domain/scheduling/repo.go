package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RuleRepository stores configuration rules of the shop selected by ctx.
// List returns every rule, active or not, in store order.
type RuleRepository interface {
	Create(ctx context.Context, r *Rule) error
	GetByID(ctx context.Context, id uuid.UUID) (*Rule, error)
	Update(ctx context.Context, r *Rule) error
	List(ctx context.Context) ([]Rule, error)
}

// AppointmentFilter narrows an appointment listing. Zero fields are ignored.
type AppointmentFilter struct {
	From     time.Time
	To       time.Time
	Status   Status
	ClientID uuid.UUID
	SeriesID uuid.UUID
}

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	// CreateSeries persists all occurrences of a recurring booking atomically.
	CreateSeries(ctx context.Context, appts []*Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error
	// ListBetween returns appointments of any status starting in [from, to).
	ListBetween(ctx context.Context, from, to time.Time) ([]Appointment, error)
	Search(ctx context.Context, filter AppointmentFilter, limit, offset int) ([]*Appointment, int, error)
}
