package rasterfn

import "fmt"

// ConfigurationError reports a missing or invalid parameter, or an
// unsupported spatial reference.
type ConfigurationError struct {
	Param  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("configuration error: parameter [%s]: %s", e.Param, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// ShapeMismatchError reports pixel blocks that disagree in shape.
type ShapeMismatchError struct {
	Name   string
	Want   Shape
	Got    Shape
	Detail string
}

func (e *ShapeMismatchError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("shape mismatch: input [%s]: %s", e.Name, e.Detail)
	}
	return fmt.Sprintf("shape mismatch: input [%s] has shape %v, expected %v", e.Name, e.Got, e.Want)
}

// ReprojectionError reports a failure of the coordinate transformation service.
type ReprojectionError struct {
	X   float64
	Y   float64
	Err error
}

func (e *ReprojectionError) Error() string {
	return fmt.Sprintf("reprojection of point (%.6f, %.6f) failed: %v", e.X, e.Y, e.Err)
}

func (e *ReprojectionError) Unwrap() error {
	return e.Err
}

// StateError reports a contract call out of lifecycle order.
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s not allowed in state %s", e.Op, e.State)
}
