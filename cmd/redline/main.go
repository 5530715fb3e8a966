// Command redline compares Office Open XML documents and reports or applies
// tracked changes. Wordprocessing documents get a third document with native
// revision markup; spreadsheets and presentations get a structured change
// list.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kong"

	"github.com/benjaminschreck/go-redline/pkg/redline"
	"github.com/benjaminschreck/go-redline/pkg/redline/ooxml"
	"github.com/benjaminschreck/go-redline/pkg/redline/pml"
	"github.com/benjaminschreck/go-redline/pkg/redline/sml"
)

const version = "0.1.0"

const (
	exitOK    = 0
	exitUsage = 1
	exitParse = 2
	exitWrite = 3
)

// CLI defines the command-line interface for redline.
var CLI struct {
	Compare CompareCmd `cmd:"" help:"Compare two documents and write the redline result"`
	Changes ChangesCmd `cmd:"" help:"Compare two documents and print the change list"`
	Apply   ApplyCmd   `cmd:"" help:"Apply a saved change list to a base document"`
	Revert  RevertCmd  `cmd:"" help:"Remove listed revisions from a redline result"`
	Version VersionCmd `cmd:"" help:"Print version information"`
}

// comparisonFlags are the options shared by compare and changes.
type comparisonFlags struct {
	Author          string  `name:"author" help:"Author stamped on emitted revisions"`
	Date            string  `name:"date" help:"Revision timestamp, RFC 3339"`
	DetailThreshold float64 `name:"detail-threshold" default:"-1" help:"Minimum relative anchor length in [0,1]"`
	TrackFormatting bool    `name:"track-formatting" help:"Track run formatting changes"`
	Settings        string  `name:"settings" type:"path" help:"YAML settings file"`
}

func (f comparisonFlags) settings() (redline.Settings, error) {
	var settings redline.Settings
	var err error
	if f.Settings != "" {
		settings, err = redline.LoadSettingsFile(f.Settings)
		if err != nil {
			return settings, err
		}
	} else {
		settings = redline.DefaultSettings()
	}
	if f.Author != "" {
		settings.Author = f.Author
	}
	if f.Date != "" {
		t, err := time.Parse(time.RFC3339, f.Date)
		if err != nil {
			return settings, fmt.Errorf("invalid --date: %w", err)
		}
		settings.DateTime = t.UTC()
	}
	if f.DetailThreshold >= 0 {
		settings.DetailThreshold = f.DetailThreshold
	}
	if f.TrackFormatting {
		settings.TrackFormattingChanges = true
	}
	if err := settings.Validate(); err != nil {
		return settings, err
	}
	return settings, nil
}

// CompareCmd produces the redline document for two wordprocessing inputs.
type CompareCmd struct {
	comparisonFlags
	Old string `name:"old" required:"" type:"existingfile" help:"Older document"`
	New string `name:"new" required:"" type:"existingfile" help:"Newer document"`
	Out string `name:"out" required:"" type:"path" help:"Output document path"`
}

func (c *CompareCmd) Run() error {
	settings, err := c.settings()
	if err != nil {
		return usageError{err}
	}
	older, newer, err := readPair(c.Old, c.New)
	if err != nil {
		return err
	}
	comparer, err := redline.NewComparer(settings)
	if err != nil {
		return usageError{err}
	}
	result, err := comparer.Compare(older, newer)
	if err != nil {
		return parseError{err}
	}
	if err := os.WriteFile(c.Out, result.Document, 0o644); err != nil {
		return writeError{err}
	}
	fmt.Printf("wrote %s with %d revisions\n", c.Out, len(result.Changes))
	return nil
}

// ChangesCmd prints the change list of a comparison without writing a
// result document. Spreadsheets and presentations are reported here too.
type ChangesCmd struct {
	comparisonFlags
	Old  string `name:"old" required:"" type:"existingfile" help:"Older document"`
	New  string `name:"new" required:"" type:"existingfile" help:"Newer document"`
	JSON bool   `name:"json" help:"Emit the change list as JSON"`
}

func (c *ChangesCmd) Run() error {
	settings, err := c.settings()
	if err != nil {
		return usageError{err}
	}
	older, newer, err := readPair(c.Old, c.New)
	if err != nil {
		return err
	}
	kind, err := packageKind(older)
	if err != nil {
		return parseError{err}
	}
	switch kind {
	case ooxml.KindWordprocessing:
		comparer, err := redline.NewComparer(settings)
		if err != nil {
			return usageError{err}
		}
		result, err := comparer.Compare(older, newer)
		if err != nil {
			return parseError{err}
		}
		if c.JSON {
			return printJSON(result.Changes)
		}
		for _, fc := range redline.FormatChangeList(result.Changes, 0) {
			printFormatted(fc)
		}
		return nil
	case ooxml.KindSpreadsheet:
		events, err := sml.Compare(older, newer, settings)
		if err != nil {
			return parseError{err}
		}
		if c.JSON {
			return printJSON(sml.CollapseRanges(events))
		}
		for _, line := range sml.FormatEvents(events) {
			fmt.Println(line)
		}
		return nil
	case ooxml.KindPresentation:
		events, err := pml.Compare(older, newer, settings)
		if err != nil {
			return parseError{err}
		}
		if c.JSON {
			return printJSON(events)
		}
		for _, e := range events {
			fmt.Println(e)
		}
		return nil
	}
	return parseError{fmt.Errorf("unrecognized package kind")}
}

// ApplyCmd replays a JSON change list onto a base document.
type ApplyCmd struct {
	Base    string `name:"base" required:"" type:"existingfile" help:"Base document"`
	Changes string `name:"changes" required:"" type:"existingfile" help:"JSON change list"`
	Out     string `name:"out" required:"" type:"path" help:"Output document path"`
}

func (c *ApplyCmd) Run() error {
	base, changes, err := readChangeSet(c.Base, c.Changes)
	if err != nil {
		return err
	}
	out, err := redline.ApplyChanges(base, changes)
	if err != nil {
		return parseError{err}
	}
	if err := os.WriteFile(c.Out, out, 0o644); err != nil {
		return writeError{err}
	}
	return nil
}

// RevertCmd removes the listed revisions from a redline result, restoring
// the older document.
type RevertCmd struct {
	Result  string `name:"result" required:"" type:"existingfile" help:"Redline result document"`
	Changes string `name:"changes" required:"" type:"existingfile" help:"JSON change list"`
	Out     string `name:"out" required:"" type:"path" help:"Output document path"`
}

func (c *RevertCmd) Run() error {
	result, changes, err := readChangeSet(c.Result, c.Changes)
	if err != nil {
		return err
	}
	out, err := redline.RevertChanges(result, changes)
	if err != nil {
		return parseError{err}
	}
	if err := os.WriteFile(c.Out, out, 0o644); err != nil {
		return writeError{err}
	}
	return nil
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("redline %s\n", version)
	return nil
}

// usageError, parseError and writeError tag failures with their exit code.
type usageError struct{ error }
type parseError struct{ error }
type writeError struct{ error }

func exitCode(err error) int {
	switch err.(type) {
	case usageError:
		return exitUsage
	case parseError:
		return exitParse
	case writeError:
		return exitWrite
	}
	return exitParse
}

func readPair(oldPath, newPath string) ([]byte, []byte, error) {
	older, err := os.ReadFile(oldPath)
	if err != nil {
		return nil, nil, parseError{err}
	}
	newer, err := os.ReadFile(newPath)
	if err != nil {
		return nil, nil, parseError{err}
	}
	return older, newer, nil
}

func readChangeSet(docPath, changesPath string) ([]byte, []redline.Change, error) {
	doc, err := os.ReadFile(docPath)
	if err != nil {
		return nil, nil, parseError{err}
	}
	data, err := os.ReadFile(changesPath)
	if err != nil {
		return nil, nil, parseError{err}
	}
	changes, err := redline.UnmarshalChanges(data)
	if err != nil {
		return nil, nil, parseError{err}
	}
	return doc, changes, nil
}

func packageKind(data []byte) (ooxml.Kind, error) {
	pkg, err := ooxml.Open(data)
	if err != nil {
		return ooxml.KindUnknown, err
	}
	return pkg.Kind(), nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return writeError{err}
	}
	return nil
}

func printFormatted(fc redline.FormattedChange) {
	loc := ""
	if fc.Location != "" {
		loc = " [" + fc.Location + "]"
	}
	switch fc.Kind {
	case redline.ChangeTextInserted:
		fmt.Printf("%s%s: inserted %q (%d words) by %s\n", fc.Anchor, loc, fc.NewPreview, fc.WordCount, fc.Author)
	case redline.ChangeTextDeleted:
		fmt.Printf("%s%s: deleted %q (%d words) by %s\n", fc.Anchor, loc, fc.OldPreview, fc.WordCount, fc.Author)
	case redline.ChangeTextReplaced:
		fmt.Printf("%s%s: replaced %q with %q by %s\n", fc.Anchor, loc, fc.OldPreview, fc.NewPreview, fc.Author)
	case redline.ChangeFormatChanged:
		fmt.Printf("%s%s: formatting changed (%s) by %s\n", fc.Anchor, loc, fc.OldPreview, fc.Author)
	}
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("redline"),
		kong.Description("Tracked-change comparison for OOXML documents"),
		kong.UsageOnError(),
	)
	if err := ctx.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "redline: %v\n", err)
		os.Exit(exitCode(err))
	}
	os.Exit(exitOK)
}
