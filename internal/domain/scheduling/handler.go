package scheduling

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/autoshine/autoshine/internal/platform/auth"
	"github.com/autoshine/autoshine/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	all := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleManager, auth.RoleAttendant))
	managers := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleManager))

	// Rules – everyone reads, managers write
	all.GET("/rules", h.ListRules)
	all.GET("/rules/:id", h.GetRule)
	managers.POST("/rules", h.CreateRule)
	managers.PUT("/rules/:id", h.UpdateRule)
	managers.DELETE("/rules/:id", h.DeactivateRule)

	// Validation
	all.POST("/scheduling/validate", h.Validate)
	all.POST("/scheduling/validate-recurring", h.ValidateRecurring)
	all.GET("/scheduling/availability", h.Availability)

	// Appointments
	all.GET("/appointments", h.ListAppointments)
	all.GET("/appointments/:id", h.GetAppointment)
	all.POST("/appointments", h.CreateAppointment)
	all.POST("/appointments/recurring", h.CreateRecurring)
	all.PUT("/appointments/:id", h.UpdateAppointment)
	all.PATCH("/appointments/:id/status", h.TransitionStatus)
	managers.DELETE("/appointments/:id", h.CancelAppointment)
}

// httpError maps service errors onto HTTP responses.
func httpError(err error) error {
	var unavailable *UnavailableError
	switch {
	case errors.As(err, &unavailable):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, map[string]interface{}{
			"message": err.Error(),
			"reason":  unavailable.Reason,
		})
	case errors.Is(err, ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrRulesUnavailable), errors.Is(err, ErrAppointmentsUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// -- Rule Handlers --

func (h *Handler) ListRules(c echo.Context) error {
	rules, err := h.svc.ListRules(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	if rules == nil {
		rules = []Rule{}
	}
	return c.JSON(http.StatusOK, rules)
}

func (h *Handler) GetRule(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	rule, err := h.svc.GetRule(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rule)
}

func (h *Handler) CreateRule(c echo.Context) error {
	var rule Rule
	if err := c.Bind(&rule); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateRule(c.Request().Context(), &rule); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, rule)
}

func (h *Handler) UpdateRule(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var rule Rule
	if err := c.Bind(&rule); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rule.ID = id
	if err := h.svc.UpdateRule(c.Request().Context(), &rule); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rule)
}

func (h *Handler) DeactivateRule(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	rule, err := h.svc.DeactivateRule(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rule)
}

// -- Validation Handlers --

func (h *Handler) Validate(c echo.Context) error {
	var cand Candidate
	if err := c.Bind(&cand); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	outcome, err := h.svc.ValidateSingle(c.Request().Context(), cand)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, outcome)
}

type recurringRequest struct {
	Appointment Appointment    `json:"appointment"`
	Recurrence  RecurrenceSpec `json:"recurrence"`
}

func (h *Handler) ValidateRecurring(c echo.Context) error {
	var req recurringRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	result, err := h.svc.ValidateRecurringBatch(c.Request().Context(), &req.Appointment, req.Recurrence)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) Availability(c echo.Context) error {
	day, err := ParseDate(c.QueryParam("date"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "date must be YYYY-MM-DD")
	}
	duration := defaultMinInterval
	if v := c.QueryParam("duration"); v != "" {
		duration, err = strconv.Atoi(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "duration must be a number of minutes")
		}
	}
	slots, err := h.svc.DayAvailability(c.Request().Context(), day, duration)
	if err != nil {
		return httpError(err)
	}
	if slots == nil {
		slots = []SlotAvailability{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"date":  day,
		"slots": slots,
	})
}

// -- Appointment Handlers --

// parseBound accepts an RFC 3339 timestamp or a date; a date as the upper
// bound includes that whole day.
func (h *Handler) parseBound(v string, upper bool) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	d, err := ParseDate(v)
	if err != nil {
		return time.Time{}, err
	}
	if upper {
		d = d.AddDays(1)
	}
	return d.Start(h.svc.Location()), nil
}

func (h *Handler) ListAppointments(c echo.Context) error {
	pg := pagination.FromContext(c)

	var f AppointmentFilter
	var err error
	if f.From, err = h.parseBound(c.QueryParam("from"), false); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid from")
	}
	if f.To, err = h.parseBound(c.QueryParam("to"), true); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid to")
	}
	f.Status = Status(c.QueryParam("status"))
	if v := c.QueryParam("client_id"); v != "" {
		if f.ClientID, err = uuid.Parse(v); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid client_id")
		}
	}
	if v := c.QueryParam("series_id"); v != "" {
		if f.SeriesID, err = uuid.Parse(v); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid series_id")
		}
	}

	items, total, err := h.svc.SearchAppointments(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*Appointment{}
	}
	resp := pagination.NewResponse(items, total, pg.Limit, pg.Offset).
		WithLinks(c.Request().URL.Path, c.QueryParams())
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.GetAppointment(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) CreateAppointment(c echo.Context) error {
	var a Appointment
	if err := c.Bind(&a); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateAppointment(c.Request().Context(), &a); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) CreateRecurring(c echo.Context) error {
	var req recurringRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	result, err := h.svc.CreateRecurring(c.Request().Context(), &req.Appointment, req.Recurrence)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, result)
}

func (h *Handler) UpdateAppointment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var a Appointment
	if err := c.Bind(&a); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a.ID = id
	if err := h.svc.UpdateAppointment(c.Request().Context(), &a); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) TransitionStatus(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var body struct {
		Status Status `json:"status"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.TransitionStatus(c.Request().Context(), id, body.Status)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) CancelAppointment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.CancelAppointment(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}
