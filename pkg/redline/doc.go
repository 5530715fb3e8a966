// Package redline computes tracked-change revisions between two Office Open
// XML wordprocessing documents. Given an older and a newer document it emits
// a third document carrying native revision markup (w:ins, w:del,
// w:rPrChange) plus a structured change list, so the result opens in any
// word processor with the edits shown as tracked changes.
//
// Basic Usage:
//
//	settings := redline.DefaultSettings()
//	settings.Author = "Reviewer"
//
//	comparer, err := redline.NewComparer(settings)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	older, _ := os.ReadFile("v1.docx")
//	newer, _ := os.ReadFile("v2.docx")
//
//	result, err := comparer.Compare(older, newer)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	os.WriteFile("redline.docx", result.Document, 0o644)
//	for _, change := range result.Changes {
//	    fmt.Println(change.Kind, change.OldText, change.NewText)
//	}
//
// The comparison runs as a pipeline: both trees are simplified and have any
// existing revisions accepted, content is flattened into atoms (one per
// character plus marks, drawings and references), atoms are grouped into
// words, paragraphs, cells and tables, the two unit streams are correlated
// through hash matching, common affixes and a longest-common-substring pass,
// and the resolved stream is rebuilt into a schema-valid tree with revision
// decoration.
//
// Spreadsheet and presentation comparison live in the sml and pml
// subpackages; the ooxml subpackage handles package I/O for all three.
package redline
