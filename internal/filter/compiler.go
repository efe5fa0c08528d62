// Package filter compiles the active facet selection into the fragment of
// the outgoing query payload. Compilation is pure: absent facets are
// omitted from the payload entirely, never sent as null.
package filter

import "github.com/scholarchat/gateway/internal/model/chat"

// Fragment is the facet portion of a send-query payload.
type Fragment struct {
	Faculty      string         `json:"faculty,omitempty"`
	Department   string         `json:"department,omitempty"`
	DocumentType string         `json:"document_type,omitempty"`
	Year         int            `json:"year,omitempty"`
	YearRange    *CompiledRange `json:"year_range,omitempty"`
}

// CompiledRange is a year range with both bounds resolved.
type CompiledRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Compile maps the facet selection to a payload fragment. A year range
// with at least one bound set is authoritative: the single year facet is
// dropped and open bounds default to 0 and currentYear. Year and
// YearRange are never emitted together.
func Compile(f chat.ActiveFilters, currentYear int) Fragment {
	out := Fragment{}
	if f.Faculty != nil {
		out.Faculty = *f.Faculty
	}
	if f.Department != nil {
		out.Department = *f.Department
	}
	if f.DocumentType != nil {
		out.DocumentType = *f.DocumentType
	}
	if f.YearRange.InUse() {
		r := CompiledRange{End: currentYear}
		if f.YearRange.Start != nil {
			r.Start = *f.YearRange.Start
		}
		if f.YearRange.End != nil {
			r.End = *f.YearRange.End
		}
		out.YearRange = &r
		return out
	}
	if f.Year != nil {
		out.Year = *f.Year
	}
	return out
}
