// Package redline provides custom error types for better error handling and
// reporting. Every error carries the part path or document-internal locator
// it applies to.
package redline

import (
	"fmt"
)

// PackageError represents a container-level failure: unreadable ZIP,
// missing content types, or part I/O.
type PackageError struct {
	Part  string
	Cause error
}

func (e *PackageError) Error() string {
	if e.Part != "" && e.Cause != nil {
		return fmt.Sprintf("package error on part '%s': %v", e.Part, e.Cause)
	}
	if e.Cause != nil {
		return fmt.Sprintf("package error: %v", e.Cause)
	}
	return fmt.Sprintf("package error on part '%s'", e.Part)
}

func (e *PackageError) Unwrap() error {
	return e.Cause
}

// NewPackageError creates a new package error for a part.
func NewPackageError(part string, cause error) error {
	return &PackageError{Part: part, Cause: cause}
}

// XmlParseError represents ill-formed XML in a consumed part.
type XmlParseError struct {
	Part  string
	Cause error
}

func (e *XmlParseError) Error() string {
	return fmt.Sprintf("xml parse error in part '%s': %v", e.Part, e.Cause)
}

func (e *XmlParseError) Unwrap() error {
	return e.Cause
}

// NewXmlParseError creates a new XML parse error for a part.
func NewXmlParseError(part string, cause error) error {
	return &XmlParseError{Part: part, Cause: cause}
}

// MissingPartError represents a dangling relationship where a target part
// is required.
type MissingPartError struct {
	Part   string
	Source string
}

func (e *MissingPartError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("missing part '%s' referenced from '%s'", e.Part, e.Source)
	}
	return fmt.Sprintf("missing part '%s'", e.Part)
}

// NewMissingPartError creates a new missing part error.
func NewMissingPartError(part, source string) error {
	return &MissingPartError{Part: part, Source: source}
}

// InvalidPackageError represents schema-violating input the comparer cannot
// sensibly diff.
type InvalidPackageError struct {
	Part    string
	Message string
}

func (e *InvalidPackageError) Error() string {
	if e.Part != "" {
		return fmt.Sprintf("invalid package (part '%s'): %s", e.Part, e.Message)
	}
	return fmt.Sprintf("invalid package: %s", e.Message)
}

// NewInvalidPackageError creates a new invalid package error.
func NewInvalidPackageError(part, message string) error {
	return &InvalidPackageError{Part: part, Message: message}
}

// UnsupportedFeatureError represents an explicitly unimplemented path.
type UnsupportedFeatureError struct {
	Feature string
	Locator string
}

func (e *UnsupportedFeatureError) Error() string {
	if e.Locator != "" {
		return fmt.Sprintf("unsupported feature '%s' at %s", e.Feature, e.Locator)
	}
	return fmt.Sprintf("unsupported feature '%s'", e.Feature)
}

// NewUnsupportedFeatureError creates a new unsupported feature error.
func NewUnsupportedFeatureError(feature, locator string) error {
	return &UnsupportedFeatureError{Feature: feature, Locator: locator}
}

// InternalError represents a contract violation inside the comparer, i.e. a
// bug rather than bad input.
type InternalError struct {
	Locator string
	Message string
}

func (e *InternalError) Error() string {
	if e.Locator != "" {
		return fmt.Sprintf("internal error at %s: %s", e.Locator, e.Message)
	}
	return fmt.Sprintf("internal error: %s", e.Message)
}

// NewInternalError creates a new internal error.
func NewInternalError(locator, message string) error {
	return &InternalError{Locator: locator, Message: message}
}

// IsPackageError checks if an error is a package error.
func IsPackageError(err error) bool {
	_, ok := err.(*PackageError)
	return ok
}

// IsXmlParseError checks if an error is an XML parse error.
func IsXmlParseError(err error) bool {
	_, ok := err.(*XmlParseError)
	return ok
}

// IsMissingPartError checks if an error is a missing part error.
func IsMissingPartError(err error) bool {
	_, ok := err.(*MissingPartError)
	return ok
}

// IsInvalidPackageError checks if an error is an invalid package error.
func IsInvalidPackageError(err error) bool {
	_, ok := err.(*InvalidPackageError)
	return ok
}

// IsUnsupportedFeatureError checks if an error is an unsupported feature error.
func IsUnsupportedFeatureError(err error) bool {
	_, ok := err.(*UnsupportedFeatureError)
	return ok
}

// IsInternalError checks if an error is an internal error.
func IsInternalError(err error) bool {
	_, ok := err.(*InternalError)
	return ok
}
