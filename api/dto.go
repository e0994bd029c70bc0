/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the pricing model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

FORMATS:
  Dates are YYYY-MM-DD, times of day HH:MM:SS, money a decimal string
  with two places. Overtime buckets are plain numbers in the line's unit
  (hours, tonnes, units).

SEE ALSO:
  - handlers.go: Uses these types
  - factory/plan.go: PlanJSON, the POST /api/runs body
*/
package api

import (
	"time"

	"cloud.google.com/go/civil"

	"github.com/warp/port-invoice/generic"
)

// =============================================================================
// CALENDAR
// =============================================================================

// HolidayDTO is one public holiday.
type HolidayDTO struct {
	Date    string `json:"date"`
	Name    string `json:"name"`
	DayName string `json:"day_name"`
}

// DayDTO classifies one date.
type DayDTO struct {
	Date    string `json:"date"`
	DayType string `json:"day_type"`
	DayName string `json:"day_name"`
	Holiday string `json:"holiday,omitempty"`
}

// =============================================================================
// PRICES
// =============================================================================

// PriceDTO is one price list entry.
type PriceDTO struct {
	Service   string  `json:"service"`
	Effective string  `json:"effective"`
	Ending    *string `json:"ending,omitempty"`
	Price     string  `json:"price"`
}

// CreatePricesRequest appends entries to the stored price list.
type CreatePricesRequest struct {
	Entries []PriceDTO `json:"entries"`
}

// =============================================================================
// OVERTIME
// =============================================================================

// SplitRequest previews the allocator on one interval.
// Measure defaults to the interval's own hours.
type SplitRequest struct {
	Date    string   `json:"date"`
	Start   string   `json:"start"`
	End     string   `json:"end"`
	Measure *float64 `json:"measure,omitempty"`
}

// SplitDTO is an allocator result.
type SplitDTO struct {
	Date       string  `json:"date"`
	DayType    string  `json:"day_type"`
	Normal     float64 `json:"normal"`
	OT150      float64 `json:"overtime_150"`
	OT200      float64 `json:"overtime_200"`
	Degenerate bool    `json:"degenerate"`
	Warning    string  `json:"warning,omitempty"`
}

// =============================================================================
// CATEGORIES & RUNS
// =============================================================================

// CategoryDTO describes a registered pipeline.
type CategoryDTO struct {
	Category    string   `json:"category"`
	Description string   `json:"description,omitempty"`
	Sources     []string `json:"sources"`
}

// CategorySummaryDTO is one category of a run.
type CategorySummaryDTO struct {
	Category string `json:"category"`
	Lines    int    `json:"lines"`
	Total    string `json:"total"`
	Warnings int    `json:"warnings"`
	Error    string `json:"error,omitempty"`
}

// RunDTO summarizes a run.
type RunDTO struct {
	ID          string               `json:"id"`
	PeriodStart string               `json:"period_start,omitempty"`
	PeriodEnd   string               `json:"period_end,omitempty"`
	StartedAt   string               `json:"started_at"`
	FinishedAt  string               `json:"finished_at"`
	Total       string               `json:"total"`
	Categories  []CategorySummaryDTO `json:"categories"`
	Unloaded    map[string]string    `json:"unloaded_tables,omitempty"`
}

// LegDTO is one fee of a line.
type LegDTO struct {
	Name      string  `json:"name"`
	Service   string  `json:"service"`
	UnitPrice string  `json:"unit_price"`
	Normal    float64 `json:"normal"`
	OT150     float64 `json:"overtime_150"`
	OT200     float64 `json:"overtime_200"`
	Total     string  `json:"total"`
}

// AttrDTO is one pipeline-specific column.
type AttrDTO struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// LineDTO is one priced invoice line.
type LineDTO struct {
	Category  string    `json:"category"`
	Date      string    `json:"date"`
	DayName   string    `json:"day_name"`
	DayType   string    `json:"day_type"`
	Customer  string    `json:"customer"`
	Vessel    string    `json:"vessel,omitempty"`
	Service   string    `json:"service"`
	Normal    float64   `json:"normal"`
	OT150     float64   `json:"overtime_150"`
	OT200     float64   `json:"overtime_200"`
	UnitPrice string    `json:"unit_price"`
	Total     string    `json:"total"`
	Legs      []LegDTO  `json:"legs,omitempty"`
	Attrs     []AttrDTO `json:"attrs,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func isoDate(d civil.Date) string {
	if d.IsZero() {
		return ""
	}
	return d.String()
}

func toPriceDTO(e generic.PriceEntry) PriceDTO {
	dto := PriceDTO{Service: e.Service, Effective: isoDate(e.Effective), Price: e.Price.StringFixed(2)}
	if e.Ending != nil {
		s := isoDate(*e.Ending)
		dto.Ending = &s
	}
	return dto
}

func toRunDTO(s generic.RunSummary) RunDTO {
	dto := RunDTO{
		ID:          string(s.ID),
		PeriodStart: isoDate(s.Period.Start),
		PeriodEnd:   isoDate(s.Period.End),
		StartedAt:   s.StartedAt.Format(time.RFC3339),
		FinishedAt:  s.FinishedAt.Format(time.RFC3339),
		Total:       s.Total.StringFixed(2),
		Categories:  make([]CategorySummaryDTO, len(s.Categories)),
	}
	for i, c := range s.Categories {
		dto.Categories[i] = CategorySummaryDTO{
			Category: c.Category,
			Lines:    c.Lines,
			Total:    c.Total.StringFixed(2),
			Warnings: c.Warnings,
			Error:    c.Error,
		}
	}
	return dto
}

func toLineDTO(l generic.PricedLine) LineDTO {
	dto := LineDTO{
		Category:  l.Category,
		Date:      isoDate(l.Date),
		DayName:   l.DayName,
		DayType:   l.DayType.String(),
		Customer:  l.Customer,
		Vessel:    l.Vessel,
		Service:   l.Service,
		Normal:    l.Split.Normal,
		OT150:     l.Split.OT150,
		OT200:     l.Split.OT200,
		UnitPrice: l.UnitPrice.StringFixed(2),
		Total:     l.Total.StringFixed(2),
	}
	for _, leg := range l.Legs {
		dto.Legs = append(dto.Legs, LegDTO{
			Name:      leg.Name,
			Service:   leg.Service,
			UnitPrice: leg.UnitPrice.StringFixed(2),
			Normal:    leg.Split.Normal,
			OT150:     leg.Split.OT150,
			OT200:     leg.Split.OT200,
			Total:     leg.Total.StringFixed(2),
		})
	}
	for _, a := range l.Attrs {
		dto.Attrs = append(dto.Attrs, AttrDTO{Key: a.Key, Value: a.Value})
	}
	return dto
}
