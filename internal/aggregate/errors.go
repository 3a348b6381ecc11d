package aggregate

import "fmt"

// MalformedBindingError is returned when a binding lacks the category column.
type MalformedBindingError struct {
	Source   string
	Category string
	// Row is the zero-based index of the binding within its result set.
	Row int
}

func (e *MalformedBindingError) Error() string {
	return fmt.Sprintf("malformed binding in %s: row %d has no %q column", e.Source, e.Row, e.Category)
}

// Diagnostic records a source that was skipped while aggregating.
type Diagnostic struct {
	Source string
	Err    error
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %v", d.Source, d.Err)
}
