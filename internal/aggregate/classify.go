package aggregate

import "github.com/sydlexius/kgmerge/internal/sparql"

// Column names with structural meaning.
const (
	colCapital     = "capital"
	colStartTime   = "startTime"
	colEndTime     = "endTime"
	colPointInTime = "pointInTime"
	colLabel       = "label"
	colLanguage    = "language"
)

// Kind is the shape a binding was classified as.
type Kind int

const (
	KindUnclassified Kind = iota
	KindCapital
	KindLabel
	KindGeneric
)

func (k Kind) String() string {
	switch k {
	case KindCapital:
		return "capital"
	case KindLabel:
		return "label"
	case KindGeneric:
		return "generic"
	default:
		return "unclassified"
	}
}

// Row is a classified binding. Only the fields for its Kind are set.
type Row struct {
	Kind   Kind
	Entity string

	// KindCapital
	Capital string
	Period  CapitalPeriod

	// KindLabel
	Language string
	Label    string

	// KindGeneric
	Field string
	Value string
}

// Classify determines the shape of a single binding. The checks run in
// priority order: a capital column wins over label+language, which wins over a
// single leftover column. Anything else is unclassified.
//
// The caller must ensure the binding has the category column.
func Classify(category string, b sparql.Binding) Row {
	row := Row{Entity: b.Value(category)}

	if b.Has(colCapital) {
		row.Kind = KindCapital
		row.Capital = b.Value(colCapital)
		row.Period = periodOf(b)
		return row
	}

	if b.Has(colLabel) && b.Has(colLanguage) {
		row.Kind = KindLabel
		row.Label = b.Value(colLabel)
		row.Language = b.Value(colLanguage)
		return row
	}

	cols := b.Columns()
	if len(cols) == 2 {
		rest := cols[0]
		if rest == category {
			rest = cols[1]
		}
		row.Kind = KindGeneric
		row.Field = rest
		row.Value = b.Value(rest)
	}
	return row
}

// periodOf builds the temporal payload of a capital statement. A start/end
// pair takes precedence over a point in time; a lone start or end is dropped.
func periodOf(b sparql.Binding) CapitalPeriod {
	switch {
	case b.Has(colStartTime) && b.Has(colEndTime):
		return RangePeriod(b.Value(colStartTime), b.Value(colEndTime))
	case b.Has(colPointInTime):
		return PointPeriod(b.Value(colPointInTime))
	default:
		return CapitalPeriod{}
	}
}
