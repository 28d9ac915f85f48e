package domain

import (
	"fmt"
	"math"
	"strings"
)

const (
	// MagnitudeScaleKph is the EM-DAT unit for storm wind speed.
	MagnitudeScaleKph = "Kph"

	// DefaultMajorHurricaneMagnitude is the Saffir-Simpson category 3 floor
	// in km/h.
	DefaultMajorHurricaneMagnitude = 178.0

	// DefaultMinTotalAffected is the impact floor used when none is given.
	DefaultMinTotalAffected = 500000.0
)

// EM-DAT column names read by the loader.
const (
	ColDisasterNo      = "DisNo."
	ColISO             = "ISO"
	ColCountry         = "Country"
	ColDisasterType    = "Disaster Type"
	ColDisasterSubtype = "Disaster Subtype"
	ColEventName       = "Event Name"
	ColStartYear       = "Start Year"
	ColMagnitudeScale  = "Magnitude Scale"
	ColMagnitude       = "Magnitude"
	ColTotalDeaths     = "Total Deaths"
	ColTotalAffected   = "Total Affected"
	ColAidResponse     = "OFDA/BHA Response"
)

// RequiredDisasterColumns must be present in any disaster source.
var RequiredDisasterColumns = []string{
	ColISO, ColStartYear, ColMagnitudeScale, ColMagnitude,
	ColTotalAffected, ColEventName, ColAidResponse,
}

// DisasterEvent is one EM-DAT row. Numeric fields are NaN when the source
// cell was blank.
type DisasterEvent struct {
	ID              string
	ISO             string
	Country         string
	DisasterType    string
	DisasterSubtype string
	EventName       string
	StartYear       int
	MagnitudeScale  string
	Magnitude       float64
	TotalDeaths     float64
	TotalAffected   float64
	AidRecorded     bool

	// Record is the full source row, aligned with DisasterTable.Columns.
	Record []string
}

// Label returns the event name, or a year-based placeholder for unnamed
// events.
func (e DisasterEvent) Label() string {
	if name := strings.TrimSpace(e.EventName); name != "" {
		return name
	}
	return fmt.Sprintf("Unnamed event (%d)", e.StartYear)
}

// DisasterTable holds events and the source header they were read with.
type DisasterTable struct {
	Columns []string
	Events  []DisasterEvent
}

// DistinctLabels returns event labels in first-seen order without repeats.
func (t DisasterTable) DistinctLabels() []string {
	seen := make(map[string]bool, len(t.Events))
	var out []string
	for _, e := range t.Events {
		l := e.Label()
		if seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}

// Clone returns a deep copy of the table.
func (t DisasterTable) Clone() DisasterTable {
	out := DisasterTable{
		Columns: append([]string(nil), t.Columns...),
		Events:  make([]DisasterEvent, len(t.Events)),
	}
	for i, e := range t.Events {
		e.Record = append([]string(nil), e.Record...)
		out.Events[i] = e
	}
	return out
}

// DisasterFilter is the conjunctive predicate applied by TransformDisasters.
type DisasterFilter struct {
	MinYear          int
	MaxYear          int
	MagnitudeScale   string
	MinMagnitude     float64
	MinTotalAffected float64
}

// MajorHurricanes returns the default hurricane filter for a year window.
func MajorHurricanes(minYear, maxYear int, minAffected float64) DisasterFilter {
	return DisasterFilter{
		MinYear:          minYear,
		MaxYear:          maxYear,
		MagnitudeScale:   MagnitudeScaleKph,
		MinMagnitude:     DefaultMajorHurricaneMagnitude,
		MinTotalAffected: minAffected,
	}
}

// Match reports whether e satisfies every predicate. Blank magnitude or
// impact values never match.
func (f DisasterFilter) Match(e DisasterEvent) bool {
	if e.StartYear < f.MinYear || e.StartYear > f.MaxYear {
		return false
	}
	if e.MagnitudeScale != f.MagnitudeScale {
		return false
	}
	if math.IsNaN(e.Magnitude) || e.Magnitude < f.MinMagnitude {
		return false
	}
	return !math.IsNaN(e.TotalAffected) && e.TotalAffected >= f.MinTotalAffected
}

// TransformDisasters returns the events matching f. The input is not
// modified.
func TransformDisasters(in DisasterTable, f DisasterFilter) (DisasterTable, error) {
	if f.MinYear > f.MaxYear {
		return DisasterTable{}, fmt.Errorf("%w: min year %d after max year %d", ErrInvalidRange, f.MinYear, f.MaxYear)
	}
	src := in.Clone()
	out := DisasterTable{Columns: src.Columns}
	for _, e := range src.Events {
		if f.Match(e) {
			out.Events = append(out.Events, e)
		}
	}
	return out, nil
}
