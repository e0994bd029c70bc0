package factory

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/warp/port-invoice/generic"
)

// =============================================================================
// PLAN SCHEMA
// =============================================================================
//
//	{
//	  "name": "january-2024",
//	  "month": "2024-01",
//	  "categories": ["salt", "haulage"],
//	  "output_dir": "out/2024-01",
//	  "cutoffs": {"normal": "17:00", "special": "16:00", "morning_limit": "07:59"}
//	}
//
// month and start/end are exclusive. No categories means every registered one.

// PlanJSON is the file representation of a run plan.
type PlanJSON struct {
	Name       string       `json:"name,omitempty" yaml:"name,omitempty"`
	Month      string       `json:"month,omitempty" yaml:"month,omitempty"` // YYYY-MM
	Start      string       `json:"start,omitempty" yaml:"start,omitempty"`
	End        string       `json:"end,omitempty" yaml:"end,omitempty"`
	Categories []string     `json:"categories,omitempty" yaml:"categories,omitempty"`
	OutputDir  string       `json:"output_dir,omitempty" yaml:"output_dir,omitempty"`
	Cutoffs    *CutoffsJSON `json:"cutoffs,omitempty" yaml:"cutoffs,omitempty"`
}

// CutoffsJSON overrides the allocator cutoffs. Empty fields keep the default.
type CutoffsJSON struct {
	Normal       string `json:"normal,omitempty" yaml:"normal,omitempty"`
	Special      string `json:"special,omitempty" yaml:"special,omitempty"`
	MorningLimit string `json:"morning_limit,omitempty" yaml:"morning_limit,omitempty"`
}

// Plan is a validated run plan.
type Plan struct {
	Name      string
	Period    generic.Period // zero means unbounded
	Pipelines []generic.Pipeline
	OutputDir string
	Cutoffs   generic.Cutoffs
}

// Categories returns the planned category names.
func (p *Plan) Categories() []string {
	out := make([]string, len(p.Pipelines))
	for i, pl := range p.Pipelines {
		out[i] = pl.Category
	}
	return out
}

// Format is the encoding of a plan file.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatOf guesses the format from a file extension, defaulting to JSON.
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// =============================================================================
// PARSING
// =============================================================================

// ParsePlan decodes and validates a plan.
func ParsePlan(data []byte, format Format) (*Plan, error) {
	pj, err := DecodePlan(data, format)
	if err != nil {
		return nil, err
	}
	return pj.Build()
}

// DecodePlan decodes a plan without validating it, so callers can apply
// overrides before Build.
func DecodePlan(data []byte, format Format) (PlanJSON, error) {
	var pj PlanJSON
	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &pj)
	default:
		err = json.Unmarshal(data, &pj)
	}
	if err != nil {
		return PlanJSON{}, fmt.Errorf("failed to parse %s plan: %w", format, err)
	}
	return pj, nil
}

// Build validates the plan and resolves its categories.
func (pj PlanJSON) Build() (*Plan, error) {
	period, err := pj.period()
	if err != nil {
		return nil, err
	}
	pipelines, err := generic.SelectPipelines(pj.Categories)
	if err != nil {
		return nil, err
	}
	cutoffs, err := pj.Cutoffs.Build()
	if err != nil {
		return nil, err
	}
	return &Plan{
		Name:      pj.Name,
		Period:    period,
		Pipelines: pipelines,
		OutputDir: pj.OutputDir,
		Cutoffs:   cutoffs,
	}, nil
}

func (pj PlanJSON) period() (generic.Period, error) {
	if pj.Month != "" {
		if pj.Start != "" || pj.End != "" {
			return generic.Period{}, fmt.Errorf("plan: month and start/end are exclusive")
		}
		return ParseMonth(pj.Month)
	}
	if pj.Start == "" && pj.End == "" {
		return generic.Period{}, nil
	}
	start, err := generic.ParseDate(pj.Start)
	if err != nil {
		return generic.Period{}, fmt.Errorf("plan start: %w", err)
	}
	end, err := generic.ParseDate(pj.End)
	if err != nil {
		return generic.Period{}, fmt.Errorf("plan end: %w", err)
	}
	return generic.NewPeriod(start, end)
}

// ParseMonth reads YYYY-MM into the month's period.
func ParseMonth(s string) (generic.Period, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(s))
	if err != nil {
		return generic.Period{}, fmt.Errorf("%w: month %q, want YYYY-MM", generic.ErrInvalidPeriod, s)
	}
	return generic.MonthPeriod(t.Year(), t.Month()), nil
}

// Build applies the overrides to DefaultCutoffs. A nil receiver returns the defaults.
func (c *CutoffsJSON) Build() (generic.Cutoffs, error) {
	out := generic.DefaultCutoffs()
	if c == nil {
		return out, nil
	}
	for _, f := range []struct {
		raw string
		dst *civil.Time
	}{
		{c.Normal, &out.Normal},
		{c.Special, &out.Special},
		{c.MorningLimit, &out.MorningLimit},
	} {
		if f.raw == "" {
			continue
		}
		t, err := generic.ParseClock(f.raw)
		if err != nil {
			return generic.Cutoffs{}, fmt.Errorf("cutoffs: %w", err)
		}
		*f.dst = t
	}
	return out, nil
}
