package redline

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultWordSeparators is the default word-separator set. Whitespace, CJK
// ideographs and non-text atoms always break words regardless of this set.
const DefaultWordSeparators = "-();,.、；。：，()（）"

// Settings carries all per-comparison options. The zero value is not
// usable; start from DefaultSettings.
type Settings struct {
	// Author is stamped on every emitted revision.
	Author string `yaml:"author"`
	// DateTime is stamped on every emitted revision, ISO-8601 UTC.
	DateTime time.Time `yaml:"date_time"`
	// CaseInsensitive folds case before hashing text content.
	CaseInsensitive bool `yaml:"case_insensitive"`
	// ConflateSpaces treats ASCII space and non-breaking space as equal.
	ConflateSpaces bool `yaml:"conflate_spaces"`
	// TrackFormattingChanges enables the formatting reconciliation stage.
	TrackFormattingChanges bool `yaml:"track_formatting_changes"`
	// DetailThreshold rejects LCS anchors whose length relative to the
	// larger side falls below this ratio. In [0,1].
	DetailThreshold float64 `yaml:"detail_threshold"`
	// WordSeparators lists the characters that delimit words.
	WordSeparators string `yaml:"word_separators"`
	// StartingRevisionID seeds revision id numbering.
	StartingRevisionID int `yaml:"starting_revision_id"`

	// Spreadsheet-only options.
	EnableRowAlignment     bool `yaml:"enable_row_alignment"`
	EnableColumnAlignment  bool `yaml:"enable_column_alignment"`
	RowSignatureSampleSize int  `yaml:"row_signature_sample_size"`
	CompareComments        bool `yaml:"compare_comments"`
	CompareDataValidation  bool `yaml:"compare_data_validation"`
	CompareMergedCells     bool `yaml:"compare_merged_cells"`
	CompareHyperlinks      bool `yaml:"compare_hyperlinks"`

	// Presentation-only options.
	AddNotesAnnotations bool `yaml:"add_notes_annotations"`
}

// DefaultSettings returns settings with documented defaults, picking up the
// process-level Config for author, detail threshold and formatting tracking.
func DefaultSettings() Settings {
	config := GetGlobalConfig()
	return Settings{
		Author:                 config.Author,
		DateTime:               time.Now().UTC().Truncate(time.Second),
		CaseInsensitive:        false,
		ConflateSpaces:         false,
		TrackFormattingChanges: config.TrackFormatting,
		DetailThreshold:        config.DetailThreshold,
		WordSeparators:         DefaultWordSeparators,
		StartingRevisionID:     0,
		EnableRowAlignment:     true,
		EnableColumnAlignment:  true,
		RowSignatureSampleSize: 16,
		CompareComments:        true,
		CompareDataValidation:  true,
		CompareMergedCells:     true,
		CompareHyperlinks:      true,
		AddNotesAnnotations:    false,
	}
}

// Validate checks if the settings are valid.
func (s *Settings) Validate() error {
	if s.Author == "" {
		return errors.New("author must not be empty")
	}
	if s.DetailThreshold < 0 || s.DetailThreshold > 1 {
		return errors.New("detail threshold must be in [0,1]")
	}
	if s.RowSignatureSampleSize < 0 {
		return errors.New("row signature sample size cannot be negative")
	}
	return nil
}

// IsWordSeparator reports whether r delimits words under these settings.
func (s *Settings) IsWordSeparator(r rune) bool {
	for _, sep := range s.WordSeparators {
		if r == sep {
			return true
		}
	}
	return false
}

// LoadSettingsFile reads settings overrides from a YAML file on top of
// DefaultSettings.
func LoadSettingsFile(path string) (Settings, error) {
	settings := DefaultSettings()
	content, err := os.ReadFile(path)
	if err != nil {
		return settings, fmt.Errorf("failed to read settings file: %w", err)
	}
	if err := yaml.Unmarshal(content, &settings); err != nil {
		return settings, fmt.Errorf("failed to parse settings file: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return settings, fmt.Errorf("invalid settings in %s: %w", path, err)
	}
	return settings, nil
}
