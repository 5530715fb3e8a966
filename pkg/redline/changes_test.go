package redline

import (
	"reflect"
	"testing"
)

func TestFormatChangeList_FusesReplacement(t *testing.T) {
	changes := []Change{
		{Kind: ChangeTextDeleted, Part: "word/document.xml", RevisionID: 1, Author: "a",
			ParagraphIndex: 0, TableRow: -1, TableCell: -1, OldText: "lazy dog", OldWordCount: 2},
		{Kind: ChangeTextInserted, Part: "word/document.xml", RevisionID: 2, Author: "a",
			ParagraphIndex: 0, TableRow: -1, TableCell: -1, NewText: "active cat", NewWordCount: 2},
	}
	out := FormatChangeList(changes, 0)
	if len(out) != 1 {
		t.Fatalf("got %d formatted changes, want 1: %+v", len(out), out)
	}
	fc := out[0]
	if fc.Kind != ChangeTextReplaced {
		t.Errorf("kind = %v, want TextReplaced", fc.Kind)
	}
	if fc.OldPreview != "lazy dog" || fc.NewPreview != "active cat" {
		t.Errorf("previews = %q -> %q", fc.OldPreview, fc.NewPreview)
	}
	if fc.WordCount != 4 {
		t.Errorf("word count = %d, want 4", fc.WordCount)
	}
	if fc.Anchor != "revision-1" {
		t.Errorf("anchor = %q, want revision-1", fc.Anchor)
	}
}

func TestFormatChangeList_NoFusionAcrossParagraphs(t *testing.T) {
	changes := []Change{
		{Kind: ChangeTextDeleted, ParagraphIndex: 0, TableRow: -1, TableCell: -1,
			OldText: "old", OldWordCount: 1},
		{Kind: ChangeTextInserted, ParagraphIndex: 1, TableRow: -1, TableCell: -1,
			NewText: "new", NewWordCount: 1},
	}
	out := FormatChangeList(changes, 0)
	if len(out) != 2 {
		t.Fatalf("got %d formatted changes, want 2", len(out))
	}
	if out[0].Kind != ChangeTextDeleted || out[1].Kind != ChangeTextInserted {
		t.Errorf("kinds = %v, %v", out[0].Kind, out[1].Kind)
	}
}

func TestFormatChangeList_Locations(t *testing.T) {
	tests := []struct {
		name string
		c    Change
		want string
	}{
		{"body", Change{Kind: ChangeTextDeleted, TableRow: -1, TableCell: -1, OldText: "x"}, ""},
		{"table", Change{Kind: ChangeTextDeleted, TableRow: 2, TableCell: 0, OldText: "x"}, "In table"},
		{"footnote", Change{Kind: ChangeTextDeleted, TableRow: -1, TableCell: -1, InFootnote: true, OldText: "x"}, "In footnote"},
		{"textbox", Change{Kind: ChangeTextDeleted, TableRow: -1, TableCell: -1, InTextbox: true, OldText: "x"}, "In textbox"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := FormatChangeList([]Change{tt.c}, 0)
			if out[0].Location != tt.want {
				t.Errorf("location = %q, want %q", out[0].Location, tt.want)
			}
		})
	}
}

func TestRefineReplacement(t *testing.T) {
	tests := []struct {
		oldText, newText string
		wantOld, wantNew string
	}{
		{"The quick brown fox", "The quick red fox", "brown", "red"},
		{"Testing", "Te", "Testing", "Te"},
		{"abc", "xyz", "abc", "xyz"},
	}
	for _, tt := range tests {
		gotOld, gotNew := refineReplacement(tt.oldText, tt.newText)
		if gotOld != tt.wantOld || gotNew != tt.wantNew {
			t.Errorf("refineReplacement(%q, %q) = %q, %q, want %q, %q",
				tt.oldText, tt.newText, gotOld, gotNew, tt.wantOld, tt.wantNew)
		}
	}
}

func TestTruncatePreview(t *testing.T) {
	tests := []struct {
		s     string
		limit int
		want  string
	}{
		{"short", 10, "short"},
		{"exactly ten chars!", 18, "exactly ten chars!"},
		{"just over the limit", 17, "just over the limit"},
		{"well over the limit here", 10, "well over ..."},
		{"héllo wörld with accénts dropped", 10, "héllo wörl..."},
	}
	for _, tt := range tests {
		if got := truncatePreview(tt.s, tt.limit); got != tt.want {
			t.Errorf("truncatePreview(%q, %d) = %q, want %q", tt.s, tt.limit, got, tt.want)
		}
	}
}

func TestMarshalChanges_RoundTrip(t *testing.T) {
	changes := []Change{
		{Kind: ChangeTextDeleted, Part: "word/document.xml", RevisionID: 3,
			Author: "tester", Date: "2026-01-02T03:04:05Z",
			ParagraphIndex: 1, TableRow: -1, TableCell: -1,
			OldText: "gone", OldWordCount: 1},
		{Kind: ChangeFormatChanged, Part: "word/document.xml", RevisionID: 4,
			Author:         "tester",
			ParagraphIndex: 2, TableRow: 0, TableCell: 1,
			OldText: "b,i"},
	}
	data, err := MarshalChanges(changes)
	if err != nil {
		t.Fatalf("MarshalChanges: %v", err)
	}
	got, err := UnmarshalChanges(data)
	if err != nil {
		t.Fatalf("UnmarshalChanges: %v", err)
	}
	if !reflect.DeepEqual(got, changes) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, changes)
	}
}

func TestUnmarshalChanges_Invalid(t *testing.T) {
	if _, err := UnmarshalChanges([]byte("{not json")); err == nil {
		t.Error("expected error for malformed input")
	}
}
