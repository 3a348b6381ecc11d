// Package aggregate folds flat SPARQL result sets into one entity-keyed document.
//
// Every binding is classified once by the columns it carries (see Classify) and
// then applied to the record of the entity named by the category column:
//
//   - capital rows set Record.Capital[iri], replacing earlier periods for that IRI
//   - label rows set Record.Label[lang]
//   - rows with exactly one other column append to Record.Fields[column]
//   - anything else only ensures the entity exists
//
// Aggregation is a pure, single-threaded function of its input order. Callers
// that need reproducible output must supply result sets in a stable order.
package aggregate

import (
	"fmt"

	"github.com/sydlexius/kgmerge/internal/sparql"
)

// Source is one named input, either a decoded result set or the error that
// prevented decoding it.
type Source struct {
	Name string
	Set  *sparql.ResultSet
	Err  error
}

// Stats counts the rows applied to a document, by kind.
type Stats struct {
	Entities     int
	Rows         int
	Capital      int
	Label        int
	Generic      int
	Unclassified int
	// Shadowed counts generic values hidden in the output by a structured
	// map of the same name, such as a bare "label" next to tagged labels.
	Shadowed int
}

// Aggregator accumulates result sets for one category.
type Aggregator struct {
	category string
	doc      Document
	stats    Stats
}

// New creates an aggregator keyed on the given category column.
func New(category string) *Aggregator {
	return &Aggregator{category: category, doc: make(Document)}
}

// Add folds one result set into the document. The set is validated as a
// whole first: if any binding lacks the category column a
// *MalformedBindingError is returned and none of the set's rows are applied.
func (a *Aggregator) Add(source string, set *sparql.ResultSet) error {
	if set == nil {
		return nil
	}
	bindings := set.Results.Bindings
	for i, b := range bindings {
		if !b.Has(a.category) {
			return &MalformedBindingError{Source: source, Category: a.category, Row: i}
		}
	}
	for _, b := range bindings {
		a.apply(Classify(a.category, b))
	}
	return nil
}

// AddSources folds every usable source in order and reports the rest.
func (a *Aggregator) AddSources(sources []Source) []Diagnostic {
	var diags []Diagnostic
	for _, src := range sources {
		if src.Err != nil {
			diags = append(diags, Diagnostic{Source: src.Name, Err: src.Err})
			continue
		}
		if err := a.Add(src.Name, src.Set); err != nil {
			diags = append(diags, Diagnostic{Source: src.Name, Err: err})
		}
	}
	return diags
}

func (a *Aggregator) apply(row Row) {
	rec := a.doc.record(row.Entity)
	a.stats.Rows++
	switch row.Kind {
	case KindCapital:
		rec.setCapital(row.Capital, row.Period)
		a.stats.Capital++
	case KindLabel:
		rec.setLabel(row.Language, row.Label)
		a.stats.Label++
	case KindGeneric:
		rec.appendField(row.Field, row.Value)
		a.stats.Generic++
	default:
		a.stats.Unclassified++
	}
}

// Document returns the document built so far. It is shared with the
// aggregator; callers should stop adding before using it.
func (a *Aggregator) Document() Document {
	return a.doc
}

// Stats returns the row counts so far.
func (a *Aggregator) Stats() Stats {
	s := a.stats
	s.Entities = len(a.doc)
	for _, rec := range a.doc {
		s.Shadowed += rec.shadowed()
	}
	return s
}

// Aggregate folds the result sets in order. It fails fast: the first binding
// without the category column aborts the whole call and no document is
// returned.
func Aggregate(category string, sets []*sparql.ResultSet) (Document, error) {
	a := New(category)
	for i, set := range sets {
		if err := a.Add(fmt.Sprintf("result set %d", i), set); err != nil {
			return nil, err
		}
	}
	return a.Document(), nil
}

// AggregateSources is the best-effort form of Aggregate. Sources that failed
// to load or contain a malformed binding are skipped whole and reported as
// diagnostics; everything else is folded in order.
func AggregateSources(category string, sources []Source) (Document, []Diagnostic) {
	a := New(category)
	diags := a.AddSources(sources)
	return a.Document(), diags
}
