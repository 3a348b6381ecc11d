package sparql

import "sort"

// SPARQL 1.1 query results JSON format types.

// ResultSet is the top-level response document of a SELECT query.
type ResultSet struct {
	Head    Head    `json:"head"`
	Results Results `json:"results"`
}

// Head lists the projected variables in query order.
type Head struct {
	Vars []string `json:"vars"`
}

// Results wraps the solution rows.
type Results struct {
	Bindings []Binding `json:"bindings"`
}

// Term is a single RDF value bound to a variable.
type Term struct {
	Type     string `json:"type"`
	Datatype string `json:"datatype,omitempty"`
	XMLLang  string `json:"xml:lang,omitempty"`
	Value    string `json:"value"`
}

// Binding is one solution row. Only the variables the row actually binds are present.
type Binding map[string]Term

// Has reports whether the row binds the named variable.
func (b Binding) Has(name string) bool {
	_, ok := b[name]
	return ok
}

// Value returns the lexical value bound to name, or "" when unbound.
func (b Binding) Value(name string) string {
	return b[name].Value
}

// Columns returns the bound variable names in sorted order.
func (b Binding) Columns() []string {
	cols := make([]string, 0, len(b))
	for k := range b {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// Len returns the number of solution rows.
func (rs *ResultSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.Results.Bindings)
}
