package redline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

const defaultPreviewLength = 40

// FormattedChange is the UI view of a Change: adjacent delete+insert pairs
// fused into replacements, previews truncated, with a navigation anchor and
// a location hint.
type FormattedChange struct {
	Kind       ChangeKind `json:"kind"`
	Anchor     string     `json:"anchor"`
	Location   string     `json:"location,omitempty"`
	Author     string     `json:"author"`
	Date       string     `json:"date"`
	OldPreview string     `json:"old_preview,omitempty"`
	NewPreview string     `json:"new_preview,omitempty"`
	WordCount  int        `json:"word_count"`
}

// FormatChangeList turns raw extracted changes into their display form.
// A TextDeleted immediately followed by a TextInserted in the same paragraph
// and cell becomes one TextReplaced whose previews are refined to the
// differing core of the two texts.
func FormatChangeList(changes []Change, previewLen int) []FormattedChange {
	if previewLen <= 0 {
		previewLen = defaultPreviewLength
	}
	var out []FormattedChange
	for i := 0; i < len(changes); i++ {
		c := changes[i]
		if c.Kind == ChangeTextDeleted && i+1 < len(changes) && fusable(c, changes[i+1]) {
			ins := changes[i+1]
			oldText, newText := refineReplacement(c.OldText, ins.NewText)
			out = append(out, FormattedChange{
				Kind:       ChangeTextReplaced,
				Anchor:     anchorFor(c),
				Location:   locationContext(c),
				Author:     c.Author,
				Date:       c.Date,
				OldPreview: truncatePreview(oldText, previewLen),
				NewPreview: truncatePreview(newText, previewLen),
				WordCount:  c.OldWordCount + ins.NewWordCount,
			})
			i++
			continue
		}
		fc := FormattedChange{
			Kind:     c.Kind,
			Anchor:   anchorFor(c),
			Location: locationContext(c),
			Author:   c.Author,
			Date:     c.Date,
		}
		switch c.Kind {
		case ChangeTextInserted:
			fc.NewPreview = truncatePreview(c.NewText, previewLen)
			fc.WordCount = c.NewWordCount
		case ChangeTextDeleted:
			fc.OldPreview = truncatePreview(c.OldText, previewLen)
			fc.WordCount = c.OldWordCount
		case ChangeFormatChanged:
			fc.OldPreview = c.OldText
		}
		out = append(out, fc)
	}
	return out
}

func fusable(del, ins Change) bool {
	return ins.Kind == ChangeTextInserted &&
		del.Part == ins.Part &&
		del.ParagraphIndex == ins.ParagraphIndex &&
		del.TableRow == ins.TableRow &&
		del.TableCell == ins.TableCell &&
		del.OldText != "" && ins.NewText != ""
}

// refineReplacement strips the common affixes of a delete/insert pair so the
// previews show only the part that actually changed.
func refineReplacement(oldText, newText string) (string, string) {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(oldText, newText, false)
	diffs = dmp.DiffCleanupSemantic(diffs)
	var oldCore, newCore strings.Builder
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			oldCore.WriteString(d.Text)
		case diffmatchpatch.DiffInsert:
			newCore.WriteString(d.Text)
		}
	}
	if oldCore.Len() == 0 || newCore.Len() == 0 {
		return oldText, newText
	}
	return oldCore.String(), newCore.String()
}

func anchorFor(c Change) string {
	return fmt.Sprintf("revision-%d", c.RevisionID)
}

func locationContext(c Change) string {
	switch {
	case c.InFootnote:
		return "In footnote"
	case c.InEndnote:
		return "In endnote"
	case c.InTextbox:
		return "In textbox"
	case c.TableRow >= 0:
		return "In table"
	}
	return ""
}

// truncatePreview cuts s to limit runes, appending an ellipsis when more
// than three characters were dropped.
func truncatePreview(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	if len(runes)-limit <= 3 {
		return s
	}
	return string(runes[:limit]) + "..."
}

// MarshalChanges serializes a raw change list as indented JSON, the format
// consumed by the apply and revert operations.
func MarshalChanges(changes []Change) ([]byte, error) {
	data, err := json.MarshalIndent(changes, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling change list: %w", err)
	}
	return append(data, '\n'), nil
}

// UnmarshalChanges parses a serialized change list.
func UnmarshalChanges(data []byte) ([]Change, error) {
	var changes []Change
	if err := json.Unmarshal(data, &changes); err != nil {
		return nil, fmt.Errorf("parsing change list: %w", err)
	}
	return changes, nil
}
