package scheduling

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const defaultMaxOccurrences = 366

type Service struct {
	rules          RuleRepository
	appointments   AppointmentRepository
	loc            *time.Location
	maxOccurrences int
	logger         zerolog.Logger
}

type Option func(*Service)

// WithLocation sets the shop time zone in which dates and weekdays are
// evaluated. Defaults to UTC.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithMaxOccurrences(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxOccurrences = n
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func NewService(rules RuleRepository, appts AppointmentRepository, opts ...Option) *Service {
	s := &Service{
		rules:          rules,
		appointments:   appts,
		loc:            time.UTC,
		maxOccurrences: defaultMaxOccurrences,
		logger:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Location() *time.Location { return s.loc }

// -- Snapshots --

func (s *Service) loadRules(ctx context.Context) (RuleSet, error) {
	rules, err := s.rules.List(ctx)
	if err != nil {
		return RuleSet{}, fmt.Errorf("%w: %w", ErrRulesUnavailable, err)
	}
	return NewRuleSet(rules), nil
}

// loadDays returns the appointments starting on the dates [from, to], with
// start times moved into the shop location.
func (s *Service) loadDays(ctx context.Context, from, to Date) ([]Appointment, error) {
	existing, err := s.appointments.ListBetween(ctx, from.Start(s.loc), to.AddDays(1).Start(s.loc))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAppointmentsUnavailable, err)
	}
	for i := range existing {
		existing[i].StartTime = existing[i].StartTime.In(s.loc)
	}
	return existing, nil
}

func without(appts []Appointment, id uuid.UUID) []Appointment {
	if id == uuid.Nil {
		return appts
	}
	out := appts[:0:0]
	for _, a := range appts {
		if a.ID != id {
			out = append(out, a)
		}
	}
	return out
}

// -- Validation --

func validateCandidate(c Candidate) error {
	if c.Start.IsZero() {
		return invalidf("start is required")
	}
	return validateDuration(c.DurationMinutes)
}

func validateDuration(minutes int) error {
	if minutes <= 0 || minutes > MaxDurationMinutes {
		return invalidf("duration_minutes must be between 1 and %d", MaxDurationMinutes)
	}
	return nil
}

// ValidateSingle checks one candidate against the current rules and the
// appointments already booked that day. It never persists.
func (s *Service) ValidateSingle(ctx context.Context, c Candidate) (Outcome, error) {
	return s.validateExcluding(ctx, c, uuid.Nil)
}

// validateExcluding ignores the appointment with id skip, so an edit is not
// counted against its own slot.
func (s *Service) validateExcluding(ctx context.Context, c Candidate, skip uuid.UUID) (Outcome, error) {
	if err := validateCandidate(c); err != nil {
		return Outcome{}, err
	}
	c.Start = c.Start.In(s.loc)

	rules, err := s.loadRules(ctx)
	if err != nil {
		return Outcome{}, err
	}
	if !rules.ValidationEnabled() {
		return accept(), nil
	}

	day := DateOf(c.Start)
	existing, err := s.loadDays(ctx, day, day)
	if err != nil {
		return Outcome{}, err
	}
	return Evaluate(c, rules, without(existing, skip)), nil
}

// SkippedDate is an occurrence of a recurring batch the rules rejected.
type SkippedDate struct {
	Date   Date      `json:"date"`
	Start  time.Time `json:"start"`
	Reason Reason    `json:"reason"`
}

// BatchResult splits the occurrences of a recurring booking into those that
// can be booked and those that were skipped.
type BatchResult struct {
	Accepted []Appointment `json:"accepted"`
	Skipped  []SkippedDate `json:"skipped"`
	Summary  string        `json:"summary"`
}

func (b *BatchResult) Total() int { return len(b.Accepted) + len(b.Skipped) }

// summarize renders e.g. "2 of 6 dates skipped: 1 on holiday, 1 over capacity".
func (b *BatchResult) summarize() string {
	if len(b.Skipped) == 0 {
		return fmt.Sprintf("all %d dates accepted", b.Total())
	}
	counts := map[Reason]int{}
	var order []Reason
	for _, sk := range b.Skipped {
		if counts[sk.Reason] == 0 {
			order = append(order, sk.Reason)
		}
		counts[sk.Reason]++
	}
	sort.SliceStable(order, func(i, j int) bool { return reasonRank(order[i]) < reasonRank(order[j]) })

	parts := make([]string, len(order))
	for i, r := range order {
		parts[i] = fmt.Sprintf("%d %s", counts[r], r.Describe())
	}
	return fmt.Sprintf("%d of %d dates skipped: %s", len(b.Skipped), b.Total(), strings.Join(parts, ", "))
}

func reasonRank(r Reason) int {
	for i, known := range []Reason{ReasonOnHoliday, ReasonOutsideWorkingHours, ReasonDuringBreak, ReasonOverCapacity, ReasonOverDailyLimit} {
		if r == known {
			return i
		}
	}
	return len(reasonText)
}

// foldBatch evaluates starts in chronological order. Buckets holds the
// existing appointments per date; every accepted occurrence is added to its
// bucket before the next start is evaluated, so later occurrences count it.
func foldBatch(starts []time.Time, template Appointment, rules RuleSet, buckets map[Date][]Appointment) *BatchResult {
	sorted := make([]time.Time, len(starts))
	copy(sorted, starts)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	result := &BatchResult{Accepted: []Appointment{}, Skipped: []SkippedDate{}}
	for _, start := range sorted {
		day := DateOf(start)
		c := Candidate{Start: start, DurationMinutes: template.DurationMinutes}
		outcome := Evaluate(c, rules, buckets[day])
		if !outcome.Accepted {
			result.Skipped = append(result.Skipped, SkippedDate{Date: day, Start: start, Reason: outcome.Reason})
			continue
		}
		occ := template
		occ.StartTime = start
		occ.Services = append([]ServiceLine(nil), template.Services...)
		buckets[day] = append(buckets[day], occ)
		result.Accepted = append(result.Accepted, occ)
	}
	result.Summary = result.summarize()
	return result
}

func bucketByDate(appts []Appointment) map[Date][]Appointment {
	buckets := make(map[Date][]Appointment)
	for _, a := range appts {
		d := DateOf(a.StartTime)
		buckets[d] = append(buckets[d], a)
	}
	return buckets
}

// ValidateRecurringBatch expands the recurrence from the template's start
// and classifies each occurrence. Nothing is persisted.
func (s *Service) ValidateRecurringBatch(ctx context.Context, template *Appointment, spec RecurrenceSpec) (*BatchResult, error) {
	if err := template.ValidateNew(); err != nil {
		return nil, err
	}
	start := template.StartTime.In(s.loc)
	if err := spec.Validate(start); err != nil {
		return nil, err
	}
	starts, ok := Expand(start, spec).All(s.maxOccurrences)
	if !ok {
		return nil, invalidf("recurrence yields more than %d occurrences", s.maxOccurrences)
	}

	rules, err := s.loadRules(ctx)
	if err != nil {
		return nil, err
	}
	existing, err := s.loadDays(ctx, DateOf(starts[0]), DateOf(starts[len(starts)-1]))
	if err != nil {
		return nil, err
	}

	result := foldBatch(starts, *template, rules, bucketByDate(existing))
	s.logger.Debug().
		Int("accepted", len(result.Accepted)).
		Int("skipped", len(result.Skipped)).
		Str("frequency", string(spec.Frequency)).
		Msg(result.Summary)
	return result, nil
}

// SlotAvailability is the outcome for one slot start of a day.
type SlotAvailability struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Accepted bool      `json:"accepted"`
	Reason   Reason    `json:"reason"`
}

// DayAvailability evaluates every slot start of a day, stepping by the
// min_interval rule from the opening time. A holiday or a closed weekday
// yields a single blocked entry at midnight.
func (s *Service) DayAvailability(ctx context.Context, day Date, durationMinutes int) ([]SlotAvailability, error) {
	if day.IsZero() {
		return nil, invalidf("date is required")
	}
	if err := validateDuration(durationMinutes); err != nil {
		return nil, err
	}

	rules, err := s.loadRules(ctx)
	if err != nil {
		return nil, err
	}

	midnight := day.Start(s.loc)
	blocked := func(r Reason) []SlotAvailability {
		return []SlotAvailability{{Start: midnight, End: midnight.AddDate(0, 0, 1), Reason: r}}
	}
	hours, open := rules.WorkingHoursFor(day.Weekday())
	if rules.ValidationEnabled() {
		if rules.HolidayOn(day) {
			return blocked(ReasonOnHoliday), nil
		}
		if !open {
			return blocked(ReasonOutsideWorkingHours), nil
		}
	} else if !open {
		return nil, nil
	}

	existing, err := s.loadDays(ctx, day, day)
	if err != nil {
		return nil, err
	}

	step := time.Duration(rules.MinInterval()) * time.Minute
	duration := time.Duration(durationMinutes) * time.Minute
	closes := hours.End.On(day, s.loc)
	var slots []SlotAvailability
	for t := hours.Start.On(day, s.loc); t.Before(closes) && !t.Add(duration).After(closes); t = t.Add(step) {
		outcome := Evaluate(Candidate{Start: t, DurationMinutes: durationMinutes}, rules, existing)
		slots = append(slots, SlotAvailability{Start: t, End: t.Add(duration), Accepted: outcome.Accepted, Reason: outcome.Reason})
	}
	return slots, nil
}

// -- Appointment --

// CreateAppointment validates a single booking and persists it when the
// rules accept it. A rejection is returned as *UnavailableError.
func (s *Service) CreateAppointment(ctx context.Context, a *Appointment) error {
	if err := a.ValidateNew(); err != nil {
		return err
	}
	outcome, err := s.ValidateSingle(ctx, a.Candidate())
	if err != nil {
		return err
	}
	if !outcome.Accepted {
		return &UnavailableError{Reason: outcome.Reason}
	}
	a.SeriesID = nil
	return s.appointments.Create(ctx, a)
}

// CreateRecurring validates a recurring batch and persists the accepted
// occurrences under one series id. Skipped dates are reported, not errors.
func (s *Service) CreateRecurring(ctx context.Context, template *Appointment, spec RecurrenceSpec) (*BatchResult, error) {
	result, err := s.ValidateRecurringBatch(ctx, template, spec)
	if err != nil {
		return nil, err
	}
	if len(result.Accepted) == 0 {
		return result, nil
	}

	seriesID := uuid.New()
	occurrences := make([]*Appointment, len(result.Accepted))
	for i := range result.Accepted {
		result.Accepted[i].SeriesID = &seriesID
		occurrences[i] = &result.Accepted[i]
	}
	if err := s.appointments.CreateSeries(ctx, occurrences); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("series_id", seriesID.String()).
		Int("occurrences", len(occurrences)).
		Msg("recurring appointments created")
	return result, nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.appointments.GetByID(ctx, id)
}

func (s *Service) SearchAppointments(ctx context.Context, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, invalidf("invalid status %q", f.Status)
	}
	return s.appointments.Search(ctx, f, limit, offset)
}

// UpdateAppointment edits an appointment. When the slot or the services
// change, the new slot is revalidated without counting the appointment
// against itself. Status changes go through TransitionStatus.
func (s *Service) UpdateAppointment(ctx context.Context, a *Appointment) error {
	current, err := s.appointments.GetByID(ctx, a.ID)
	if err != nil {
		return err
	}
	if current.Status == StatusCompleted || current.Status == StatusCancelled {
		return fmt.Errorf("%w: appointment is %s", ErrInvalidTransition, current.Status)
	}
	a.Status = current.Status
	a.SeriesID = current.SeriesID
	if err := a.ValidateInput(); err != nil {
		return err
	}

	if !a.StartTime.Equal(current.StartTime) || a.DurationMinutes != current.DurationMinutes {
		outcome, err := s.validateExcluding(ctx, a.Candidate(), a.ID)
		if err != nil {
			return err
		}
		if !outcome.Accepted {
			return &UnavailableError{Reason: outcome.Reason}
		}
	}
	return s.appointments.Update(ctx, a)
}

// TransitionStatus moves an appointment along its lifecycle.
func (s *Service) TransitionStatus(ctx context.Context, id uuid.UUID, next Status) (*Appointment, error) {
	if !next.Valid() {
		return nil, invalidf("invalid status %q", next)
	}
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.Status.CanTransitionTo(next) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, next)
	}
	if err := s.appointments.UpdateStatus(ctx, id, next); err != nil {
		return nil, err
	}
	a.Status = next
	return a, nil
}

// CancelAppointment is the logical delete.
func (s *Service) CancelAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.TransitionStatus(ctx, id, StatusCancelled)
}

// -- Rules --

func (s *Service) CreateRule(ctx context.Context, r *Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	return s.rules.Create(ctx, r)
}

func (s *Service) GetRule(ctx context.Context, id uuid.UUID) (*Rule, error) {
	return s.rules.GetByID(ctx, id)
}

func (s *Service) UpdateRule(ctx context.Context, r *Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if _, err := s.rules.GetByID(ctx, r.ID); err != nil {
		return err
	}
	return s.rules.Update(ctx, r)
}

// DeactivateRule keeps the rule for history but removes it from evaluation.
func (s *Service) DeactivateRule(ctx context.Context, id uuid.UUID) (*Rule, error) {
	r, err := s.rules.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !r.Active {
		return r, nil
	}
	r.Active = false
	if err := s.rules.Update(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) ListRules(ctx context.Context) ([]Rule, error) {
	return s.rules.List(ctx)
}

// SeedRules validates every rule before creating any of them.
func (s *Service) SeedRules(ctx context.Context, rules []Rule) error {
	for i := range rules {
		if err := rules[i].Validate(); err != nil {
			return fmt.Errorf("rule %d (%s): %w", i, rules[i].Kind(), err)
		}
	}
	for i := range rules {
		if err := s.rules.Create(ctx, &rules[i]); err != nil {
			return fmt.Errorf("create rule %d: %w", i, err)
		}
	}
	return nil
}
