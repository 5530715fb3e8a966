package redline

import (
	"errors"
	"testing"
)

func TestErrorTypes(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantType string
		wantMsg  string
	}{
		{
			name:     "PackageError",
			err:      &PackageError{Part: "word/document.xml", Cause: errors.New("truncated zip")},
			wantType: "PackageError",
			wantMsg:  "package error on part 'word/document.xml': truncated zip",
		},
		{
			name:     "PackageError without part",
			err:      &PackageError{Cause: errors.New("not a zip")},
			wantType: "PackageError",
			wantMsg:  "package error: not a zip",
		},
		{
			name:     "XmlParseError",
			err:      &XmlParseError{Part: "word/footnotes.xml", Cause: errors.New("unexpected EOF")},
			wantType: "XmlParseError",
			wantMsg:  "xml parse error in part 'word/footnotes.xml': unexpected EOF",
		},
		{
			name:     "MissingPartError",
			err:      &MissingPartError{Part: "word/media/image1.png", Source: "word/document.xml"},
			wantType: "MissingPartError",
			wantMsg:  "missing part 'word/media/image1.png' referenced from 'word/document.xml'",
		},
		{
			name:     "InvalidPackageError",
			err:      &InvalidPackageError{Part: "word/document.xml", Message: "expected wordprocessing package"},
			wantType: "InvalidPackageError",
			wantMsg:  "invalid package (part 'word/document.xml'): expected wordprocessing package",
		},
		{
			name:     "UnsupportedFeatureError",
			err:      &UnsupportedFeatureError{Feature: "external image reference", Locator: "word/document.xml"},
			wantType: "UnsupportedFeatureError",
			wantMsg:  "unsupported feature 'external image reference' at word/document.xml",
		},
		{
			name:     "InternalError",
			err:      &InternalError{Locator: "correlator", Message: "unresolved unknown region"},
			wantType: "InternalError",
			wantMsg:  "internal error at correlator: unresolved unknown region",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestErrorPredicates(t *testing.T) {
	pkgErr := NewPackageError("word/document.xml", errors.New("bad"))
	if !IsPackageError(pkgErr) {
		t.Error("IsPackageError should match a PackageError")
	}
	if IsXmlParseError(pkgErr) || IsMissingPartError(pkgErr) || IsInvalidPackageError(pkgErr) {
		t.Error("predicates should not match other error types")
	}

	parseErr := NewXmlParseError("word/document.xml", errors.New("bad"))
	if !IsXmlParseError(parseErr) {
		t.Error("IsXmlParseError should match an XmlParseError")
	}
	if !IsMissingPartError(NewMissingPartError("a", "b")) {
		t.Error("IsMissingPartError should match a MissingPartError")
	}
	if !IsInvalidPackageError(NewInvalidPackageError("a", "msg")) {
		t.Error("IsInvalidPackageError should match an InvalidPackageError")
	}
	if !IsUnsupportedFeatureError(NewUnsupportedFeatureError("f", "l")) {
		t.Error("IsUnsupportedFeatureError should match an UnsupportedFeatureError")
	}
	if !IsInternalError(NewInternalError("l", "m")) {
		t.Error("IsInternalError should match an InternalError")
	}
}

func TestErrorUnwrapping(t *testing.T) {
	cause := errors.New("root cause")
	wrapped := NewPackageError("word/document.xml", cause)
	if !errors.Is(wrapped, cause) {
		t.Error("PackageError should unwrap to its cause")
	}
	parseWrapped := NewXmlParseError("word/document.xml", cause)
	if !errors.Is(parseWrapped, cause) {
		t.Error("XmlParseError should unwrap to its cause")
	}
}
