package scheduling

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusScheduled         Status = "scheduled"
	StatusInProgress        Status = "in_progress"
	StatusCompleted         Status = "completed"
	StatusCancelled         Status = "cancelled"
	StatusPending           Status = "pending"
	StatusConfirmedByClient Status = "confirmed_by_client"
)

var statusTransitions = map[Status][]Status{
	StatusScheduled:         {StatusInProgress, StatusCompleted, StatusCancelled, StatusPending, StatusConfirmedByClient},
	StatusPending:           {StatusScheduled, StatusConfirmedByClient, StatusCancelled},
	StatusConfirmedByClient: {StatusInProgress, StatusScheduled, StatusCancelled},
	StatusInProgress:        {StatusCompleted, StatusCancelled},
	StatusCompleted:         nil,
	StatusCancelled:         nil,
}

func (s Status) Valid() bool {
	_, ok := statusTransitions[s]
	return ok
}

// CanTransitionTo reports whether an appointment may move from s to next.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type AppointmentType string

const (
	TypeInPerson AppointmentType = "in_person"
	TypeOnline   AppointmentType = "online"
)

// ServiceLine is one catalog service booked on an appointment, with the
// price and duration captured at booking time.
type ServiceLine struct {
	ServiceID       uuid.UUID `db:"service_id" json:"service_id"`
	Price           float64   `db:"price" json:"price"`
	DurationMinutes int       `db:"duration_minutes" json:"duration_minutes"`
}

// Appointment maps to the appointment table.
type Appointment struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	ClientID        uuid.UUID       `db:"client_id" json:"client_id"`
	VehicleID       *uuid.UUID      `db:"vehicle_id" json:"vehicle_id,omitempty"`
	AssignedUserID  *uuid.UUID      `db:"assigned_user_id" json:"assigned_user_id,omitempty"`
	SeriesID        *uuid.UUID      `db:"series_id" json:"series_id,omitempty"`
	StartTime       time.Time       `db:"start_time" json:"start_time"`
	DurationMinutes int             `db:"duration_minutes" json:"duration_minutes"`
	TotalPrice      float64         `db:"total_price" json:"total_price"`
	Status          Status          `db:"status" json:"status"`
	Services        []ServiceLine   `json:"services"`
	PaymentMethod   *string         `db:"payment_method" json:"payment_method,omitempty"`
	Notes           *string         `db:"notes" json:"notes,omitempty"`
	AppointmentType AppointmentType `db:"appointment_type" json:"appointment_type"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// MaxDurationMinutes bounds a booking to one day. Working hours never span
// midnight, so nothing longer can fit.
const MaxDurationMinutes = 24 * 60

func (a *Appointment) EndTime() time.Time {
	return a.StartTime.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

func (a *Appointment) IsCancelled() bool {
	return a.Status == StatusCancelled
}

// Recompute derives duration and total price from the service lines.
func (a *Appointment) Recompute() {
	duration, total := 0, 0.0
	for _, s := range a.Services {
		duration += s.DurationMinutes
		total += s.Price
	}
	a.DurationMinutes = duration
	a.TotalPrice = total
}

// ValidateInput checks the booking request before any rule is consulted.
// It fills defaults for status and type.
func (a *Appointment) ValidateInput() error {
	if a.ClientID == uuid.Nil {
		return invalidf("client_id is required")
	}
	if a.StartTime.IsZero() {
		return invalidf("start_time is required")
	}
	if len(a.Services) == 0 {
		return invalidf("at least one service is required")
	}
	for i, s := range a.Services {
		if s.ServiceID == uuid.Nil {
			return invalidf("services[%d].service_id is required", i)
		}
		if s.Price <= 0 {
			return invalidf("services[%d].price must be positive", i)
		}
		if s.DurationMinutes <= 0 || s.DurationMinutes > MaxDurationMinutes {
			return invalidf("services[%d].duration_minutes must be between 1 and %d", i, MaxDurationMinutes)
		}
	}
	if a.Status == "" {
		a.Status = StatusScheduled
	}
	if !a.Status.Valid() {
		return invalidf("invalid status %q", a.Status)
	}
	if a.AppointmentType == "" {
		a.AppointmentType = TypeInPerson
	}
	if a.AppointmentType != TypeInPerson && a.AppointmentType != TypeOnline {
		return invalidf("invalid appointment_type %q", a.AppointmentType)
	}
	a.Recompute()
	if a.DurationMinutes > MaxDurationMinutes {
		return invalidf("total duration %d exceeds %d minutes", a.DurationMinutes, MaxDurationMinutes)
	}
	return nil
}

// ValidateNew is ValidateInput for a booking being created. A new booking
// starts out scheduled or pending.
func (a *Appointment) ValidateNew() error {
	if err := a.ValidateInput(); err != nil {
		return err
	}
	if a.Status != StatusScheduled && a.Status != StatusPending {
		return invalidf("a new appointment must be %s or %s, got %q", StatusScheduled, StatusPending, a.Status)
	}
	return nil
}

// Candidate returns the slot a booking would occupy.
func (a *Appointment) Candidate() Candidate {
	return Candidate{Start: a.StartTime, DurationMinutes: a.DurationMinutes}
}

// Candidate is a proposed slot.
type Candidate struct {
	Start           time.Time `json:"start"`
	DurationMinutes int       `json:"duration_minutes"`
}

func (c Candidate) End() time.Time {
	return c.Start.Add(time.Duration(c.DurationMinutes) * time.Minute)
}

type Reason string

const (
	ReasonOK                  Reason = "ok"
	ReasonOutsideWorkingHours Reason = "outside_working_hours"
	ReasonOnHoliday           Reason = "on_holiday"
	ReasonDuringBreak         Reason = "during_break"
	ReasonOverCapacity        Reason = "over_capacity"
	ReasonOverDailyLimit      Reason = "over_daily_limit"
)

var reasonText = map[Reason]string{
	ReasonOK:                  "ok",
	ReasonOutsideWorkingHours: "outside working hours",
	ReasonOnHoliday:           "on holiday",
	ReasonDuringBreak:         "during break",
	ReasonOverCapacity:        "over capacity",
	ReasonOverDailyLimit:      "over daily limit",
}

// Describe is the human form used in messages and batch summaries.
func (r Reason) Describe() string {
	if s, ok := reasonText[r]; ok {
		return s
	}
	return string(r)
}

// Outcome is the result of evaluating one candidate. Rejections are values,
// not errors.
type Outcome struct {
	Accepted bool   `json:"accepted"`
	Reason   Reason `json:"reason"`
}

func accept() Outcome { return Outcome{Accepted: true, Reason: ReasonOK} }

func reject(r Reason) Outcome { return Outcome{Reason: r} }
