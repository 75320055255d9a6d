package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/autoshine/autoshine/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return err
}

// =========== Rule Repository ===========

type ruleRepoPG struct{ pool *pgxpool.Pool }

func NewRuleRepoPG(pool *pgxpool.Pool) RuleRepository { return &ruleRepoPG{pool: pool} }

func (r *ruleRepoPG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const ruleCols = `id, kind, weekday, specific_date::text, start_time::text, end_time::text,
	simultaneous_capacity, numeric_value, active, description, created_at, updated_at`

// ruleRow mirrors a config_rule row before it is turned into a variant.
type ruleRow struct {
	ruleFields
	weekday      *int16
	specificDate *string
	startTime    *string
	endTime      *string
}

func (r *ruleRepoPG) scanRule(row pgx.Row) (*Rule, error) {
	var rr ruleRow
	var active bool
	err := row.Scan(&rr.ID, &rr.Kind, &rr.weekday, &rr.specificDate, &rr.startTime, &rr.endTime,
		&rr.SimultaneousCapacity, &rr.NumericValue, &active, &rr.Description, &rr.CreatedAt, &rr.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rr.Active = &active
	if rr.weekday != nil {
		wd := int(*rr.weekday)
		rr.Weekday = &wd
	}
	if rr.specificDate != nil {
		d, err := ParseDate(*rr.specificDate)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", rr.ID, err)
		}
		rr.SpecificDate = &d
	}
	for _, p := range []struct {
		src *string
		dst **TimeOfDay
	}{{rr.startTime, &rr.StartTime}, {rr.endTime, &rr.EndTime}} {
		if p.src == nil {
			continue
		}
		t, err := ParseTimeOfDay(*p.src)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", rr.ID, err)
		}
		*p.dst = &t
	}

	rule, err := rr.toRule()
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", rr.ID, err)
	}
	return &rule, nil
}

// ruleColumns returns the nullable kind-specific column values for a rule.
func ruleColumns(rule *Rule) (weekday *int, date, start, end *string, capacity, numeric *int) {
	f := rule.fields()
	weekday, capacity, numeric = f.Weekday, f.SimultaneousCapacity, f.NumericValue
	if f.SpecificDate != nil {
		s := f.SpecificDate.String()
		date = &s
	}
	if f.StartTime != nil {
		s := f.StartTime.String()
		start = &s
	}
	if f.EndTime != nil {
		s := f.EndTime.String()
		end = &s
	}
	return
}

func (r *ruleRepoPG) Create(ctx context.Context, rule *Rule) error {
	rule.ID = uuid.New()
	weekday, date, start, end, capacity, numeric := ruleColumns(rule)
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO config_rule (id, kind, weekday, specific_date, start_time, end_time,
			simultaneous_capacity, numeric_value, active, description)
		VALUES ($1,$2,$3,$4::date,$5::time,$6::time,$7,$8,$9,$10)
		RETURNING created_at, updated_at`,
		rule.ID, rule.Kind(), weekday, date, start, end, capacity, numeric, rule.Active, rule.Description,
	).Scan(&rule.CreatedAt, &rule.UpdatedAt)
}

func (r *ruleRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Rule, error) {
	rule, err := r.scanRule(r.conn(ctx).QueryRow(ctx, `SELECT `+ruleCols+` FROM config_rule WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "rule "+id.String())
	}
	return rule, nil
}

func (r *ruleRepoPG) Update(ctx context.Context, rule *Rule) error {
	weekday, date, start, end, capacity, numeric := ruleColumns(rule)
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE config_rule SET kind=$2, weekday=$3, specific_date=$4::date, start_time=$5::time,
			end_time=$6::time, simultaneous_capacity=$7, numeric_value=$8, active=$9,
			description=$10, updated_at=NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		rule.ID, rule.Kind(), weekday, date, start, end, capacity, numeric, rule.Active, rule.Description,
	).Scan(&rule.CreatedAt, &rule.UpdatedAt)
	return notFound(err, "rule "+rule.ID.String())
}

func (r *ruleRepoPG) List(ctx context.Context) ([]Rule, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+ruleCols+` FROM config_rule ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Rule
	for rows.Next() {
		rule, err := r.scanRule(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *rule)
	}
	return items, rows.Err()
}

// =========== Appointment Repository ===========

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const apptCols = `id, client_id, vehicle_id, assigned_user_id, series_id,
	start_time, duration_minutes, total_price::float8, status,
	payment_method, notes, appointment_type, created_at, updated_at`

func (r *appointmentRepoPG) scanAppt(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.ClientID, &a.VehicleID, &a.AssignedUserID, &a.SeriesID,
		&a.StartTime, &a.DurationMinutes, &a.TotalPrice, &a.Status,
		&a.PaymentMethod, &a.Notes, &a.AppointmentType, &a.CreatedAt, &a.UpdatedAt)
	return &a, err
}

func insertAppt(ctx context.Context, q pgx.Tx, a *Appointment) error {
	a.ID = uuid.New()
	err := q.QueryRow(ctx, `
		INSERT INTO appointment (id, client_id, vehicle_id, assigned_user_id, series_id,
			start_time, duration_minutes, total_price, status,
			payment_method, notes, appointment_type)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING created_at, updated_at`,
		a.ID, a.ClientID, a.VehicleID, a.AssignedUserID, a.SeriesID,
		a.StartTime, a.DurationMinutes, a.TotalPrice, a.Status,
		a.PaymentMethod, a.Notes, a.AppointmentType,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return err
	}
	return insertServices(ctx, q, a)
}

func insertServices(ctx context.Context, q pgx.Tx, a *Appointment) error {
	if _, err := q.Exec(ctx, `DELETE FROM appointment_service WHERE appointment_id = $1`, a.ID); err != nil {
		return err
	}
	for i, s := range a.Services {
		if _, err := q.Exec(ctx, `
			INSERT INTO appointment_service (appointment_id, position, service_id, price, duration_minutes)
			VALUES ($1,$2,$3,$4,$5)`,
			a.ID, i, s.ServiceID, s.Price, s.DurationMinutes); err != nil {
			return fmt.Errorf("insert service %d: %w", i, err)
		}
	}
	return nil
}

// inTx runs fn in a transaction on the request connection.
func (r *appointmentRepoPG) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.conn(ctx).Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		return insertAppt(ctx, tx, a)
	})
}

func (r *appointmentRepoPG) CreateSeries(ctx context.Context, appts []*Appointment) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		for _, a := range appts {
			if err := insertAppt(ctx, tx, a); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := r.scanAppt(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointment WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "appointment "+id.String())
	}
	if err := r.attachServices(ctx, []*Appointment{a}); err != nil {
		return nil, err
	}
	return a, nil
}

func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			UPDATE appointment SET client_id=$2, vehicle_id=$3, assigned_user_id=$4,
				start_time=$5, duration_minutes=$6, total_price=$7, status=$8,
				payment_method=$9, notes=$10, appointment_type=$11, updated_at=NOW()
			WHERE id = $1
			RETURNING created_at, updated_at`,
			a.ID, a.ClientID, a.VehicleID, a.AssignedUserID,
			a.StartTime, a.DurationMinutes, a.TotalPrice, a.Status,
			a.PaymentMethod, a.Notes, a.AppointmentType,
		).Scan(&a.CreatedAt, &a.UpdatedAt)
		if err != nil {
			return notFound(err, "appointment "+a.ID.String())
		}
		return insertServices(ctx, tx, a)
	})
}

func (r *appointmentRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE appointment SET status=$2, updated_at=NOW() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("appointment %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListBetween feeds the evaluator, which only needs times and status, so
// service lines are not loaded.
func (r *appointmentRepoPG) ListBetween(ctx context.Context, from, to time.Time) ([]Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+apptCols+` FROM appointment
		WHERE start_time >= $1 AND start_time < $2 ORDER BY start_time`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Appointment
	for rows.Next() {
		a, err := r.scanAppt(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *a)
	}
	return items, rows.Err()
}

func (r *appointmentRepoPG) Search(ctx context.Context, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if !f.From.IsZero() {
		where += fmt.Sprintf(` AND start_time >= $%d`, idx)
		args = append(args, f.From)
		idx++
	}
	if !f.To.IsZero() {
		where += fmt.Sprintf(` AND start_time < $%d`, idx)
		args = append(args, f.To)
		idx++
	}
	if f.Status != "" {
		where += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, f.Status)
		idx++
	}
	if f.ClientID != uuid.Nil {
		where += fmt.Sprintf(` AND client_id = $%d`, idx)
		args = append(args, f.ClientID)
		idx++
	}
	if f.SeriesID != uuid.Nil {
		where += fmt.Sprintf(` AND series_id = $%d`, idx)
		args = append(args, f.SeriesID)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointment`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + apptCols + ` FROM appointment` + where +
		fmt.Sprintf(` ORDER BY start_time LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	var items []*Appointment
	for rows.Next() {
		a, err := r.scanAppt(rows)
		if err != nil {
			rows.Close()
			return nil, 0, err
		}
		items = append(items, a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if err := r.attachServices(ctx, items); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *appointmentRepoPG) attachServices(ctx context.Context, appts []*Appointment) error {
	if len(appts) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(appts))
	byID := make(map[uuid.UUID]*Appointment, len(appts))
	for i, a := range appts {
		ids[i] = a.ID
		byID[a.ID] = a
		a.Services = nil
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT appointment_id, service_id, price::float8, duration_minutes
		FROM appointment_service WHERE appointment_id = ANY($1)
		ORDER BY appointment_id, position`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var apptID uuid.UUID
		var s ServiceLine
		if err := rows.Scan(&apptID, &s.ServiceID, &s.Price, &s.DurationMinutes); err != nil {
			return err
		}
		if a, ok := byID[apptID]; ok {
			a.Services = append(a.Services, s)
		}
	}
	return rows.Err()
}
