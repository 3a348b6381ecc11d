// Package catalog maps (endpoint, category, variant) to ready-to-send SPARQL queries.
//
// Each category owns a list of variants. A variant renders one SELECT query whose
// first projected variable is the category's entity column and whose remaining
// columns give the shape the aggregation step classifies.
package catalog

import (
	"fmt"
	"strings"
)

// ErrUnknownCategory is returned when a category is not registered for an endpoint.
type ErrUnknownCategory struct {
	Endpoint string
	Category string
}

func (e *ErrUnknownCategory) Error() string {
	return fmt.Sprintf("unknown category %q for endpoint %s", e.Category, e.Endpoint)
}

// ErrUnknownVariant is returned when a variant is not registered for a category.
type ErrUnknownVariant struct {
	Endpoint string
	Category string
	Variant  string
}

func (e *ErrUnknownVariant) Error() string {
	return fmt.Sprintf("unknown variant %q for %s/%s", e.Variant, e.Endpoint, e.Category)
}

// Variant is a single query within a category.
type Variant struct {
	Name   string
	Render func() string
}

// Category groups the variants that share an entity column.
type Category struct {
	Name string
	// EntityVar is the column holding the entity IRI. It is the category name
	// except where the SPARQL variable differs (league_member -> leagueMember).
	EntityVar string
	Variants  []Variant
}

// Query is a resolved catalog entry.
type Query struct {
	Endpoint  string
	Category  string
	Variant   string
	EntityVar string
	Text      string
}

// Registry holds the categories registered per endpoint, in declaration order.
type Registry struct {
	endpoints map[string][]Category
	order     []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{endpoints: make(map[string][]Category)}
}

// Register adds a category to an endpoint. Registering the same category name
// twice replaces the earlier definition in place.
func (r *Registry) Register(endpoint string, c Category) {
	if c.EntityVar == "" {
		c.EntityVar = c.Name
	}
	cats, ok := r.endpoints[endpoint]
	if !ok {
		r.order = append(r.order, endpoint)
	}
	for i := range cats {
		if cats[i].Name == c.Name {
			cats[i] = c
			return
		}
	}
	r.endpoints[endpoint] = append(cats, c)
}

// Endpoints returns the endpoints with at least one category, in registration order.
func (r *Registry) Endpoints() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Categories returns the categories registered for an endpoint.
func (r *Registry) Categories(endpoint string) []Category {
	cats := r.endpoints[endpoint]
	out := make([]Category, len(cats))
	copy(out, cats)
	return out
}

// Category looks up a single category.
func (r *Registry) Category(endpoint, name string) (Category, error) {
	for _, c := range r.endpoints[endpoint] {
		if c.Name == name {
			return c, nil
		}
	}
	return Category{}, &ErrUnknownCategory{Endpoint: endpoint, Category: name}
}

// Variants returns the variant names of a category in declaration order.
func (r *Registry) Variants(endpoint, category string) ([]string, error) {
	c, err := r.Category(endpoint, category)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(c.Variants))
	for i, v := range c.Variants {
		names[i] = v.Name
	}
	return names, nil
}

// Lookup resolves a variant to its query text. Variant names match
// case-insensitively, so "Label" and "label" select the same query.
func (r *Registry) Lookup(endpoint, category, variant string) (Query, error) {
	c, err := r.Category(endpoint, category)
	if err != nil {
		return Query{}, err
	}
	for _, v := range c.Variants {
		if strings.EqualFold(v.Name, variant) {
			return Query{
				Endpoint:  endpoint,
				Category:  c.Name,
				Variant:   v.Name,
				EntityVar: c.EntityVar,
				Text:      v.Render(),
			}, nil
		}
	}
	return Query{}, &ErrUnknownVariant{Endpoint: endpoint, Category: category, Variant: variant}
}

// EntityVar returns the entity column for a category, falling back to the
// category name itself when the category is not registered.
func (r *Registry) EntityVar(endpoint, category string) string {
	if c, err := r.Category(endpoint, category); err == nil {
		return c.EntityVar
	}
	return category
}

// Default returns a registry populated with every built-in query family.
func Default() *Registry {
	r := NewRegistry()
	registerWikidata(r)
	registerDBpedia(r)
	return r
}
