package plant

import "fmt"

// ValidationError reports bad caller input, like a non-positive batch count.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError reports a product the recipe store does not know.
type NotFoundError struct {
	Product string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("product %q not found", e.Product)
}

// ConnectionError reports an unreachable equipment endpoint or a session that
// could not be established.
type ConnectionError struct {
	Endpoint string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("equipment source %s unreachable: %v", e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// StoreUnavailableError reports a recipe store that could not be reached or
// queried.
type StoreUnavailableError struct {
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("recipe store unavailable: %v", e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

// ReadError reports a specific data point that could not be resolved or read.
type ReadError struct {
	Node string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read %s: %v", e.Node, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// MappingError reports a required material with no corresponding tank reading.
type MappingError struct {
	Material string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("no tank reading for material %q", e.Material)
}
