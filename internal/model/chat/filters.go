package chat

// SelectedDocument is one working-set entry. Membership is a set keyed by
// the paper id; the title tags the chip shown to the user.
type SelectedDocument struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// YearRange bounds the year facet. A nil bound is open.
type YearRange struct {
	Start *int `json:"start"`
	End   *int `json:"end"`
}

// InUse reports whether at least one bound is set, which makes the range
// authoritative over the single year facet.
func (r YearRange) InUse() bool {
	return r.Start != nil || r.End != nil
}

// ActiveFilters is the facet selection applied to the next query. Nil
// fields are absent facets. Year and YearRange are mutually exclusive in
// the compiled payload; the compiler enforces that, not this type.
type ActiveFilters struct {
	Faculty      *string   `json:"faculty"`
	Department   *string   `json:"department"`
	DocumentType *string   `json:"document_type"`
	Year         *int      `json:"year"`
	YearRange    YearRange `json:"year_range"`
}
