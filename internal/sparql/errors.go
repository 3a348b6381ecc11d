package sparql

import "fmt"

// ErrEndpointUnavailable indicates a transport failure or a non-2xx response.
type ErrEndpointUnavailable struct {
	Endpoint   string
	StatusCode int
	Cause      error
}

func (e *ErrEndpointUnavailable) Error() string {
	return fmt.Sprintf("endpoint %s unavailable: %v", e.Endpoint, e.Cause)
}

func (e *ErrEndpointUnavailable) Unwrap() error { return e.Cause }

// ErrMalformedResponse indicates the endpoint answered with a body that is not
// a SPARQL JSON results document.
type ErrMalformedResponse struct {
	Endpoint string
	Cause    error
}

func (e *ErrMalformedResponse) Error() string {
	return fmt.Sprintf("endpoint %s: malformed response: %v", e.Endpoint, e.Cause)
}

func (e *ErrMalformedResponse) Unwrap() error { return e.Cause }

// ErrUnknownEndpoint is returned for endpoint names that are not registered.
type ErrUnknownEndpoint struct {
	Name string
}

func (e *ErrUnknownEndpoint) Error() string {
	return fmt.Sprintf("unknown endpoint: %s", e.Name)
}
