package availability

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/doctoc/scheduling-api/internal/model"
	"github.com/doctoc/scheduling-api/internal/service/availability"
	"github.com/doctoc/scheduling-api/pkg/httputil"
)

// SnapshotReader serves precomputed day-availability windows. A nil reader
// (or a miss) means the handler computes live.
type SnapshotReader interface {
	GetDaySummaries(ctx context.Context, orgID, doctorID uuid.UUID) ([]model.DaySummary, bool)
}

type Handler struct {
	svc       *availability.Service
	snapshots SnapshotReader
	logger    zerolog.Logger
}

func NewHandler(svc *availability.Service, snapshots SnapshotReader, logger zerolog.Logger) *Handler {
	registerValidations()
	return &Handler{
		svc:       svc,
		snapshots: snapshots,
		logger:    logger,
	}
}

func registerValidations() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("daykey", func(fl validator.FieldLevel) bool {
			_, err := model.ParseDayKey(fl.Field().String())
			return err == nil
		})
	}
}

type slotsRequest struct {
	Date string `form:"date" binding:"required,daykey"`
}

type daysRequest struct {
	From string `form:"from" binding:"required,daykey"`
	To   string `form:"to" binding:"required,daykey"`
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	doctors := r.Group("/organizations/:orgID/doctors/:doctorID")
	{
		doctors.GET("/slots", h.GetSlots)
		doctors.GET("/days", h.GetDays)
		doctors.GET("/schedule", h.GetSchedule)
	}
}

func pathIDs(c *gin.Context) (orgID, doctorID uuid.UUID, ok bool) {
	orgID, err := uuid.Parse(c.Param("orgID"))
	if err != nil {
		httputil.RespondWithBadRequest(c, "invalid organization ID")
		return uuid.Nil, uuid.Nil, false
	}
	doctorID, err = uuid.Parse(c.Param("doctorID"))
	if err != nil {
		httputil.RespondWithBadRequest(c, "invalid doctor ID")
		return uuid.Nil, uuid.Nil, false
	}
	return orgID, doctorID, true
}

// GetSlots returns every slot of the requested day with its availability.
func (h *Handler) GetSlots(c *gin.Context) {
	orgID, doctorID, ok := pathIDs(c)
	if !ok {
		return
	}
	var req slotsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httputil.RespondWithBadRequest(c, "date must be a DD-MM-YYYY calendar date")
		return
	}
	day, _ := model.ParseDayKey(req.Date)

	dayAvail, err := h.svc.SlotsForDay(c.Request.Context(), orgID, doctorID, day)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, dayAvail)
}

// GetDays returns per-day bookability for an inclusive date range. When a
// fresh snapshot covers the whole range it is served from Redis, with the
// current date always re-evaluated live.
func (h *Handler) GetDays(c *gin.Context) {
	orgID, doctorID, ok := pathIDs(c)
	if !ok {
		return
	}
	var req daysRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httputil.RespondWithBadRequest(c, "from and to must be DD-MM-YYYY calendar dates")
		return
	}
	from, _ := model.ParseDayKey(req.From)
	to, _ := model.ParseDayKey(req.To)

	days, err := model.DayKeysBetween(from, to)
	if err != nil {
		httputil.RespondWithBadRequest(c, err.Error())
		return
	}

	if summaries, ok := h.fromSnapshot(c.Request.Context(), orgID, doctorID, days); ok {
		httputil.RespondWithSuccess(c, summaries)
		return
	}

	summaries, err := h.svc.DaysAvailability(c.Request.Context(), orgID, doctorID, from, to)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, summaries)
}

// fromSnapshot assembles the response from a precomputed snapshot. It only
// succeeds when the snapshot covers every requested day; the current date is
// never trusted from the snapshot because bookings may have landed since it
// was taken.
func (h *Handler) fromSnapshot(ctx context.Context, orgID, doctorID uuid.UUID, days []model.DayKey) ([]model.DaySummary, bool) {
	if h.snapshots == nil {
		return nil, false
	}
	cached, ok := h.snapshots.GetDaySummaries(ctx, orgID, doctorID)
	if !ok {
		return nil, false
	}

	byDay := make(map[model.DayKey]model.DaySummary, len(cached))
	for _, summary := range cached {
		byDay[summary.Day] = summary
	}

	// "Today" is the doctor's current date in the schedule timezone, not
	// the server's: a UTC server must still re-evaluate a Lima doctor's
	// evening live.
	cfg, err := h.svc.Schedule(ctx, orgID, doctorID)
	if err != nil {
		return nil, false
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, false
	}
	today := model.DayKeyFor(time.Now().In(loc))

	summaries := make([]model.DaySummary, 0, len(days))
	for _, day := range days {
		summary, ok := byDay[day]
		if !ok {
			return nil, false
		}
		if day == today {
			dayAvail, err := h.svc.SlotsForDay(ctx, orgID, doctorID, day)
			if err != nil {
				return nil, false
			}
			summary = model.DaySummary{
				Day:      day,
				Bookable: dayAvail.Bookable(),
				Degraded: dayAvail.Degraded,
			}
		}
		summaries = append(summaries, summary)
	}
	return summaries, true
}

// GetSchedule returns the doctor's normalized schedule.
func (h *Handler) GetSchedule(c *gin.Context) {
	orgID, doctorID, ok := pathIDs(c)
	if !ok {
		return
	}

	cfg, err := h.svc.Schedule(c.Request.Context(), orgID, doctorID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, cfg)
}
