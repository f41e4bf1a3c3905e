package commons

import (
	"context"
	"errors"
	"fmt"
)

// NotFoundError contains resource not found error information
type NotFoundError struct {
	URI string
}

// NewNotFoundError creates an error for resource not found error
func NewNotFoundError(uri string) error {
	return &NotFoundError{
		URI: uri,
	}
}

// Error returns error message
func (err *NotFoundError) Error() string {
	return fmt.Sprintf("resource %q not found", err.URI)
}

// Is tests type of error
func (err *NotFoundError) Is(other error) bool {
	_, ok := other.(*NotFoundError)
	return ok
}

// ToString stringifies the object
func (err *NotFoundError) ToString() string {
	return "<NotFoundError>"
}

// IsNotFoundError evaluates if the given error is resource not found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, &NotFoundError{})
}

// IOError contains transport or medium failure information
type IOError struct {
	URI string
	Err error
}

// NewIOError creates IOError struct
func NewIOError(uri string, err error) error {
	return &IOError{
		URI: uri,
		Err: err,
	}
}

// Error returns error message
func (err *IOError) Error() string {
	return fmt.Sprintf("failed to access %q: %v", err.URI, err.Err)
}

// Is tests type of error
func (err *IOError) Is(other error) bool {
	_, ok := other.(*IOError)
	return ok
}

// Unwrap returns the cause
func (err *IOError) Unwrap() error {
	return err.Err
}

// ToString stringifies the object
func (err *IOError) ToString() string {
	return "<IOError>"
}

// IsIOError evaluates if the given error is io error
func IsIOError(err error) bool {
	return errors.Is(err, &IOError{})
}

// DecodeError contains decode failure information
type DecodeError struct {
	Decoder string
	Err     error
}

// NewDecodeError creates DecodeError struct
func NewDecodeError(decoder string, err error) error {
	return &DecodeError{
		Decoder: decoder,
		Err:     err,
	}
}

// Error returns error message
func (err *DecodeError) Error() string {
	if len(err.Decoder) == 0 {
		return fmt.Sprintf("failed to decode image: %v", err.Err)
	}
	return fmt.Sprintf("failed to decode image with decoder %q: %v", err.Decoder, err.Err)
}

// Is tests type of error
func (err *DecodeError) Is(other error) bool {
	_, ok := other.(*DecodeError)
	return ok
}

// Unwrap returns the cause
func (err *DecodeError) Unwrap() error {
	return err.Err
}

// ToString stringifies the object
func (err *DecodeError) ToString() string {
	return "<DecodeError>"
}

// IsDecodeError evaluates if the given error is decode error
func IsDecodeError(err error) bool {
	return errors.Is(err, &DecodeError{})
}

// DeviceLostError signals that the raster device backing surfaces went away
type DeviceLostError struct {
	Err error
}

// NewDeviceLostError creates DeviceLostError struct
func NewDeviceLostError(err error) error {
	return &DeviceLostError{
		Err: err,
	}
}

// Error returns error message
func (err *DeviceLostError) Error() string {
	if err.Err == nil {
		return "raster device lost"
	}
	return fmt.Sprintf("raster device lost: %v", err.Err)
}

// Is tests type of error
func (err *DeviceLostError) Is(other error) bool {
	_, ok := other.(*DeviceLostError)
	return ok
}

// Unwrap returns the cause
func (err *DeviceLostError) Unwrap() error {
	return err.Err
}

// ToString stringifies the object
func (err *DeviceLostError) ToString() string {
	return "<DeviceLostError>"
}

// IsDeviceLostError evaluates if the given error is device lost error
func IsDeviceLostError(err error) bool {
	return errors.Is(err, &DeviceLostError{})
}

// IsCancelledError evaluates if the given error is caused by cancellation
func IsCancelledError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
