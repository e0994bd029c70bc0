/*
handlers.go - HTTP API handlers for the pricing engine

PURPOSE:
  Exposes the calendar, price catalog, overtime allocator and pricing runs
  via REST API. Handles HTTP request/response, JSON serialization, and
  delegates to domain logic.

ENDPOINTS:
  Calendar:
    GET    /api/holidays/{year}           Public holidays of a year
    GET    /api/calendar/{date}           Day type of a date

  Prices:
    GET    /api/prices                    Stored price list
    GET    /api/prices?service=&date=     As-of lookup
    POST   /api/prices                    Append entries

  Overtime:
    POST   /api/overtime/split            Allocator preview

  Runs:
    GET    /api/categories                Registered pipelines
    POST   /api/runs                      Load tables, price, persist
    GET    /api/runs                      Recent runs (?limit=)
    GET    /api/runs/{id}                 Run summary
    GET    /api/runs/{id}/lines?category= Priced lines
    GET    /api/runs/{id}/export/{category}  CSV download

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Unknown run, category, or no price as of the date
  - 409: Duplicate run
  - 500: Internal errors
  - 503: Runs requested with no table source configured

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/warp/port-invoice/billing"
	"github.com/warp/port-invoice/export"
	"github.com/warp/port-invoice/factory"
	"github.com/warp/port-invoice/generic"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is the persistence the API needs.
type Store interface {
	generic.PriceStore
	generic.RunStore
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    Store
	Runner   *billing.Runner // nil disables POST /api/runs
	Calendar *generic.Calendar
	Cutoffs  generic.Cutoffs // used when a run plan sets none
	Logger   *slog.Logger
}

// NewHandler creates a handler with the default calendar and cutoffs.
func NewHandler(store Store, runner *billing.Runner, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	cal := generic.NewCalendar()
	if runner != nil && runner.Calendar != nil {
		cal = runner.Calendar
	}
	return &Handler{
		Store:    store,
		Runner:   runner,
		Calendar: cal,
		Cutoffs:  generic.DefaultCutoffs(),
		Logger:   logger,
	}
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// CALENDAR HANDLERS
// =============================================================================

// ListHolidays returns the public holidays of a year.
// GET /api/holidays/{year}
func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil || year < 1583 || year > 9999 {
		writeError(w, http.StatusBadRequest, "Invalid year", err)
		return
	}

	set := h.Calendar.HolidaysForYear(year)
	dtos := make([]HolidayDTO, 0, len(set))
	for _, d := range set.Dates() {
		dtos = append(dtos, HolidayDTO{
			Date:    isoDate(d),
			Name:    set[d],
			DayName: generic.Weekday(d).String()[:3],
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"year": year, "holidays": dtos})
}

// GetDay classifies a date.
// GET /api/calendar/{date}
func (h *Handler) GetDay(w http.ResponseWriter, r *http.Request) {
	d, err := generic.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD or DD/MM/YYYY)", err)
		return
	}
	dayType, dayName := h.Calendar.Classify(d)
	writeJSON(w, http.StatusOK, DayDTO{
		Date:    isoDate(d),
		DayType: dayType.String(),
		DayName: dayName,
		Holiday: h.Calendar.HolidaysForYear(d.Year)[d],
	})
}

// =============================================================================
// PRICE HANDLERS
// =============================================================================

// GetPrices lists the stored price list, or performs an as-of lookup when
// service and date are given.
// GET /api/prices
func (h *Handler) GetPrices(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Store.LoadPrices(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load prices", err)
		return
	}

	service := r.URL.Query().Get("service")
	dateParam := r.URL.Query().Get("date")
	if service == "" && dateParam == "" {
		dtos := make([]PriceDTO, len(entries))
		for i, e := range entries {
			dtos[i] = toPriceDTO(e)
		}
		writeJSON(w, http.StatusOK, map[string]any{"entries": dtos})
		return
	}
	if service == "" || dateParam == "" {
		writeError(w, http.StatusBadRequest, "Both service and date are required for a lookup", nil)
		return
	}
	d, err := generic.ParseDate(dateParam)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}

	entry, err := generic.NewPriceCatalog(entries...).EntryAsOf(service, d)
	if err != nil {
		writeDomainError(w, "Price lookup failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toPriceDTO(entry))
}

// CreatePrices appends entries to the stored price list.
// POST /api/prices
func (h *Handler) CreatePrices(w http.ResponseWriter, r *http.Request) {
	var req CreatePricesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(req.Entries) == 0 {
		writeError(w, http.StatusBadRequest, "No entries", nil)
		return
	}

	entries := make([]generic.PriceEntry, len(req.Entries))
	for i, dto := range req.Entries {
		e, err := fromPriceDTO(dto)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid entry %d", i), err)
			return
		}
		entries[i] = e
	}

	if err := h.Store.SavePrices(r.Context(), entries); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save prices", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int{"saved": len(entries)})
}

func fromPriceDTO(dto PriceDTO) (generic.PriceEntry, error) {
	if strings.TrimSpace(dto.Service) == "" {
		return generic.PriceEntry{}, errors.New("service is required")
	}
	eff, err := generic.ParseDate(dto.Effective)
	if err != nil {
		return generic.PriceEntry{}, fmt.Errorf("effective: %w", err)
	}
	price, err := decimal.NewFromString(dto.Price)
	if err != nil {
		return generic.PriceEntry{}, fmt.Errorf("price: %w", err)
	}
	e := generic.PriceEntry{Service: strings.TrimSpace(dto.Service), Effective: eff, Price: price}
	if dto.Ending != nil && *dto.Ending != "" {
		end, err := generic.ParseDate(*dto.Ending)
		if err != nil {
			return generic.PriceEntry{}, fmt.Errorf("ending: %w", err)
		}
		e.Ending = &end
	}
	return e, nil
}

// =============================================================================
// OVERTIME HANDLERS
// =============================================================================

// SplitOvertime previews the allocator.
// POST /api/overtime/split
func (h *Handler) SplitOvertime(w http.ResponseWriter, r *http.Request) {
	var req SplitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	d, err := generic.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}
	start, err := generic.ParseClock(req.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start", err)
		return
	}
	end, err := generic.ParseClock(req.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end", err)
		return
	}

	dayType, _ := h.Calendar.Classify(d)
	iv := generic.Interval{Date: d, Start: start, End: end, DayType: dayType}
	alloc := generic.NewAllocator(h.Cutoffs)

	var split generic.OvertimeSplit
	if req.Measure != nil {
		split = alloc.Allocate(iv, *req.Measure)
	} else {
		split = alloc.Hours(iv)
	}

	dto := SplitDTO{
		Date:       isoDate(d),
		DayType:    dayType.String(),
		Normal:     split.Normal,
		OT150:      split.OT150,
		OT200:      split.OT200,
		Degenerate: split.Degenerate,
	}
	if err := h.Cutoffs.Check(iv); err != nil {
		dto.Warning = err.Error()
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// RUN HANDLERS
// =============================================================================

// ListCategories returns the registered pipelines.
// GET /api/categories
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	pipelines := generic.ListPipelines()
	dtos := make([]CategoryDTO, len(pipelines))
	for i, p := range pipelines {
		dtos[i] = CategoryDTO{Category: p.Category, Description: p.Description, Sources: p.Sources}
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": dtos})
}

// CreateRun loads the tables, prices the plan and persists the run.
// POST /api/runs
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	if h.Runner == nil {
		writeError(w, http.StatusServiceUnavailable, "No table source configured", nil)
		return
	}

	var req factory.PlanJSON
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	plan, err := req.Build()
	if err != nil {
		writeDomainError(w, "Invalid run plan", err)
		return
	}
	if req.Cutoffs == nil {
		plan.Cutoffs = h.Cutoffs
	}

	out, err := h.Runner.Run(r.Context(), plan)
	if err != nil {
		writeDomainError(w, "Run failed", err)
		return
	}

	dto := toRunDTO(generic.Summarize(out.Result))
	if len(out.Unloaded) > 0 {
		dto.Unloaded = make(map[string]string, len(out.Unloaded))
		for name, err := range out.Unloaded {
			dto.Unloaded[name] = err.Error()
		}
	}
	h.Logger.Info("run created", "run_id", out.Result.ID, "total", dto.Total)
	writeJSON(w, http.StatusCreated, dto)
}

// ListRuns returns the most recent runs.
// GET /api/runs?limit=
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}

	runs, err := h.Store.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list runs", err)
		return
	}
	dtos := make([]RunDTO, len(runs))
	for i, s := range runs {
		dtos[i] = toRunDTO(s)
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": dtos})
}

// GetRun returns a run summary.
// GET /api/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	s, err := h.Store.GetRun(r.Context(), generic.RunID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to get run", err)
		return
	}
	writeJSON(w, http.StatusOK, toRunDTO(s))
}

// GetRunLines returns the lines of one category of a run.
// GET /api/runs/{id}/lines?category=
func (h *Handler) GetRunLines(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	if category == "" {
		writeError(w, http.StatusBadRequest, "category is required", nil)
		return
	}
	lines, err := h.loadLines(r, category)
	if err != nil {
		writeDomainError(w, "Failed to load lines", err)
		return
	}
	dtos := make([]LineDTO, len(lines))
	for i, l := range lines {
		dtos[i] = toLineDTO(l)
	}
	writeJSON(w, http.StatusOK, map[string]any{"category": category, "lines": dtos})
}

// ExportRun downloads one category of a run as CSV.
// GET /api/runs/{id}/export/{category}
func (h *Handler) ExportRun(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "category")
	lines, err := h.loadLines(r, category)
	if err != nil {
		writeDomainError(w, "Failed to load lines", err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", category+".csv"))
	w.WriteHeader(http.StatusOK)
	if err := export.WriteCSV(w, generic.PricedTable{Category: category, Lines: lines}); err != nil {
		h.Logger.Error("csv export failed", "category", category, "error", err)
	}
}

func (h *Handler) loadLines(r *http.Request, category string) ([]generic.PricedLine, error) {
	if _, err := generic.LookupPipeline(category); err != nil {
		return nil, err
	}
	return h.Store.LoadLines(r.Context(), generic.RunID(chi.URLParam(r, "id")), category)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps engine errors to HTTP statuses.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	writeError(w, statusFor(err), message, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, generic.ErrDuplicateRun):
		return http.StatusConflict
	case generic.IsNotFound(err):
		return http.StatusNotFound
	case generic.IsClientError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
