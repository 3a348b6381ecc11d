package aggregate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
)

// PeriodShape says which temporal columns a capital statement carried.
type PeriodShape int

const (
	PeriodNone PeriodShape = iota
	PeriodRange
	PeriodPoint
)

// CapitalPeriod is the temporal qualifier attached to a capital. Shape
// decides which keys are written, so a column bound to an empty literal
// still appears in the output.
type CapitalPeriod struct {
	Shape       PeriodShape
	StartTime   string
	EndTime     string
	PointInTime string
}

// RangePeriod is a capital held from start to end.
func RangePeriod(start, end string) CapitalPeriod {
	return CapitalPeriod{Shape: PeriodRange, StartTime: start, EndTime: end}
}

// PointPeriod is a capital recorded at a single point in time.
func PointPeriod(t string) CapitalPeriod {
	return CapitalPeriod{Shape: PeriodPoint, PointInTime: t}
}

func (p CapitalPeriod) MarshalJSON() ([]byte, error) {
	var out struct {
		StartTime   *string `json:"start_time,omitempty"`
		EndTime     *string `json:"end_time,omitempty"`
		PointInTime *string `json:"point_in_time,omitempty"`
	}
	switch p.Shape {
	case PeriodRange:
		out.StartTime, out.EndTime = &p.StartTime, &p.EndTime
	case PeriodPoint:
		out.PointInTime = &p.PointInTime
	}
	return json.Marshal(out)
}

// Record is everything known about one entity.
type Record struct {
	// Label maps a language tag to the label in that language.
	Label map[string]string
	// Capital maps a capital IRI to the period it was the capital.
	Capital map[string]CapitalPeriod
	// Fields holds generic single-column values in encounter order.
	Fields map[string][]string
}

// MarshalJSON renders the record as one flat object with sorted keys. A
// generic field sharing a name with a structured one (a "label" column
// without a language) is only written when the structured map is absent;
// Stats.Shadowed counts the values lost that way.
func (r *Record) MarshalJSON() ([]byte, error) {
	values := make(map[string]any, len(r.Fields)+2)
	for k, v := range r.Fields {
		values[k] = v
	}
	if r.Label != nil {
		values[colLabel] = r.Label
	}
	if r.Capital != nil {
		values[colCapital] = r.Capital
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range slices.Sorted(maps.Keys(values)) {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(values[k])
		if err != nil {
			return nil, fmt.Errorf("marshaling field %s: %w", k, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// shadowed returns the number of generic values hidden by a structured map
// of the same name.
func (r *Record) shadowed() int {
	n := 0
	if r.Label != nil {
		n += len(r.Fields[colLabel])
	}
	if r.Capital != nil {
		n += len(r.Fields[colCapital])
	}
	return n
}

func (r *Record) setCapital(iri string, p CapitalPeriod) {
	if r.Capital == nil {
		r.Capital = make(map[string]CapitalPeriod)
	}
	r.Capital[iri] = p
}

func (r *Record) setLabel(lang, label string) {
	if r.Label == nil {
		r.Label = make(map[string]string)
	}
	r.Label[lang] = label
}

func (r *Record) appendField(field, value string) {
	if r.Fields == nil {
		r.Fields = make(map[string][]string)
	}
	r.Fields[field] = append(r.Fields[field], value)
}

// Document maps entity IRIs to their records. encoding/json writes map keys
// in sorted order, so marshaling is deterministic.
type Document map[string]*Record

// Entities returns the entity IRIs in sorted order.
func (d Document) Entities() []string {
	return slices.Sorted(maps.Keys(d))
}

// record returns the record for iri, creating it on first sight.
func (d Document) record(iri string) *Record {
	r, ok := d[iri]
	if !ok {
		r = &Record{}
		d[iri] = r
	}
	return r
}

// Encode writes the document as two-space indented JSON.
func (d Document) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding document: %w", err)
	}
	return append(data, '\n'), nil
}
