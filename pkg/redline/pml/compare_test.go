package pml

import (
	"archive/zip"
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/benjaminschreck/go-redline/pkg/redline"
	"github.com/benjaminschreck/go-redline/pkg/redline/ooxml"
)

func mustOpen(t *testing.T, data []byte) *ooxml.Package {
	t.Helper()
	pkg, err := ooxml.Open(data)
	if err != nil {
		t.Fatalf("opening package: %v", err)
	}
	return pkg
}

const pptxContentTypes = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
  <Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
  <Default Extension="xml" ContentType="application/xml"/>
</Types>`

const pmlNamespaces = `xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main" ` +
	`xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" ` +
	`xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"`

type slideDef struct {
	// shapes is the inner XML of p:spTree
	shapes string
	layout string
}

type deckDef struct {
	// sldSz is an optional p:sldSz element for presentation.xml
	sldSz string
	// theme is the optional content of ppt/theme/theme1.xml
	theme  string
	slides []slideDef
}

func buildPptx(t *testing.T, slides ...slideDef) []byte {
	t.Helper()
	return buildDeck(t, deckDef{slides: slides})
}

func buildDeck(t *testing.T, deck deckDef) []byte {
	t.Helper()
	slides := deck.slides
	parts := map[string]string{
		"[Content_Types].xml": pptxContentTypes,
		"_rels/.rels": `<?xml version="1.0"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
  <Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="ppt/presentation.xml"/>
</Relationships>`,
	}

	var sldIds, relEntries strings.Builder
	for i, s := range slides {
		n := i + 1
		fmt.Fprintf(&sldIds, `<p:sldId id="%d" r:id="rId%d"/>`, 255+n, n)
		fmt.Fprintf(&relEntries,
			`<Relationship Id="rId%d" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/slide" Target="slides/slide%d.xml"/>`, n, n)
		parts[fmt.Sprintf("ppt/slides/slide%d.xml", n)] = `<?xml version="1.0"?>
<p:sld ` + pmlNamespaces + `><p:cSld><p:spTree>` + s.shapes + `</p:spTree></p:cSld></p:sld>`
		if s.layout != "" {
			parts[fmt.Sprintf("ppt/slides/_rels/slide%d.xml.rels", n)] = `<?xml version="1.0"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
  <Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/slideLayout" Target="../slideLayouts/` + s.layout + `"/>
</Relationships>`
		}
	}
	parts["ppt/presentation.xml"] = `<?xml version="1.0"?>
<p:presentation ` + pmlNamespaces + `><p:sldIdLst>` + sldIds.String() + `</p:sldIdLst>` +
		deck.sldSz + `</p:presentation>`
	if deck.theme != "" {
		parts["ppt/theme/theme1.xml"] = deck.theme
	}
	parts["ppt/_rels/presentation.xml.rels"] = `<?xml version="1.0"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
		relEntries.String() + `</Relationships>`

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range parts {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("creating zip entry %s: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("writing zip entry %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("closing zip: %v", err)
	}
	return buf.Bytes()
}

func titleShape(text string) string {
	return placedShape("Title 1", `<p:ph type="title"/>`, text, `<a:rPr lang="en-US"/>`,
		100, 200, 300, 400)
}

func placedShape(name, ph, text, rPr string, x, y, cx, cy int) string {
	nvPr := ""
	if ph != "" {
		nvPr = `<p:nvPr>` + ph + `</p:nvPr>`
	}
	return fmt.Sprintf(`<p:sp><p:nvSpPr><p:cNvPr id="2" name="%s"/>%s</p:nvSpPr>`+
		`<p:spPr><a:xfrm><a:off x="%d" y="%d"/><a:ext cx="%d" cy="%d"/></a:xfrm></p:spPr>`+
		`<p:txBody><a:p><a:r>%s<a:t>%s</a:t></a:r></a:p></p:txBody></p:sp>`,
		name, nvPr, x, y, cx, cy, rPr, text)
}

func pmlEventsOfKind(events []Event, kind EventKind) []Event {
	var out []Event
	for _, e := range events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func TestCompare_TitleTextChanged(t *testing.T) {
	older := buildPptx(t,
		slideDef{titleShape("Welcome"), "slideLayout1.xml"},
		slideDef{titleShape("Agenda"), "slideLayout2.xml"})
	newer := buildPptx(t,
		slideDef{titleShape("Welcome"), "slideLayout1.xml"},
		slideDef{titleShape("Updated Agenda"), "slideLayout2.xml"})

	events, err := Compare(older, newer, redline.DefaultSettings())
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if len(pmlEventsOfKind(events, SlideInserted)) != 0 || len(pmlEventsOfKind(events, SlideDeleted)) != 0 {
		t.Errorf("unexpected slide-level events: %v", events)
	}
	texts := pmlEventsOfKind(events, TextChanged)
	if len(texts) != 1 {
		t.Fatalf("got %v, want one TextChanged", events)
	}
	e := texts[0]
	if e.Slide != 2 || e.Shape != "Title 1" {
		t.Errorf("event = %+v, want slide 2 shape Title 1", e)
	}
	if e.OldValue != "Agenda" || e.NewValue != "Updated Agenda" {
		t.Errorf("text = %q -> %q", e.OldValue, e.NewValue)
	}
	if got, want := e.String(), `TextChanged on slide 2, shape "Title 1"`; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestCompare_IdenticalDecks(t *testing.T) {
	deck := []slideDef{
		{titleShape("One"), "slideLayout1.xml"},
		{titleShape("Two"), "slideLayout2.xml"},
	}
	events, err := Compare(buildPptx(t, deck...), buildPptx(t, deck...), redline.DefaultSettings())
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("got %d events, want 0: %v", len(events), events)
	}
}

func TestCompare_SlideInsertedAndMoved(t *testing.T) {
	older := buildPptx(t,
		slideDef{titleShape("Opening"), "slideLayout1.xml"},
		slideDef{titleShape("Closing"), "slideLayout2.xml"})
	newer := buildPptx(t,
		slideDef{titleShape("Opening"), "slideLayout1.xml"},
		slideDef{titleShape("Interlude"), "slideLayout3.xml"},
		slideDef{titleShape("Closing"), "slideLayout2.xml"})

	events, err := Compare(older, newer, redline.DefaultSettings())
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	inserted := pmlEventsOfKind(events, SlideInserted)
	if len(inserted) != 1 || inserted[0].Slide != 2 {
		t.Errorf("inserted = %v, want slide 2", inserted)
	}
	moved := pmlEventsOfKind(events, SlideMoved)
	if len(moved) != 1 || moved[0].Slide != 3 {
		t.Errorf("moved = %v, want slide 3", moved)
	}
	if len(pmlEventsOfKind(events, SlideDeleted)) != 0 {
		t.Errorf("unexpected deletions in %v", events)
	}
}

func TestCompare_SlideDeleted(t *testing.T) {
	older := buildPptx(t,
		slideDef{titleShape("Keep"), "slideLayout1.xml"},
		slideDef{titleShape("Drop"), "slideLayout2.xml"})
	newer := buildPptx(t,
		slideDef{titleShape("Keep"), "slideLayout1.xml"})

	events, err := Compare(older, newer, redline.DefaultSettings())
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if len(events) != 1 || events[0].Kind != SlideDeleted || events[0].Slide != 2 {
		t.Errorf("got %v, want one SlideDeleted on slide 2", events)
	}
}

func TestCompare_ShapeInsertedAndDeleted(t *testing.T) {
	box := placedShape("Box 5", "", "aside", `<a:rPr lang="en-US"/>`, 900, 900, 50, 50)
	older := buildPptx(t, slideDef{titleShape("Solo"), "slideLayout1.xml"})
	newer := buildPptx(t, slideDef{titleShape("Solo") + box, "slideLayout1.xml"})

	events, err := Compare(older, newer, redline.DefaultSettings())
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if len(events) != 1 || events[0].Kind != ShapeInserted || events[0].Shape != "Box 5" {
		t.Errorf("got %v, want one ShapeInserted for Box 5", events)
	}

	events, err = Compare(newer, older, redline.DefaultSettings())
	if err != nil {
		t.Fatalf("Compare reversed: %v", err)
	}
	if len(events) != 1 || events[0].Kind != ShapeDeleted || events[0].Shape != "Box 5" {
		t.Errorf("got %v, want one ShapeDeleted for Box 5", events)
	}
}

func TestCompare_ShapeMovedAndResized(t *testing.T) {
	older := buildPptx(t, slideDef{
		placedShape("Title 1", `<p:ph type="title"/>`, "Fixed", `<a:rPr lang="en-US"/>`, 100, 200, 300, 400),
		"slideLayout1.xml"})
	newer := buildPptx(t, slideDef{
		placedShape("Title 1", `<p:ph type="title"/>`, "Fixed", `<a:rPr lang="en-US"/>`, 150, 250, 600, 400),
		"slideLayout1.xml"})

	events, err := Compare(older, newer, redline.DefaultSettings())
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	moved := pmlEventsOfKind(events, ShapeMoved)
	if len(moved) != 1 || moved[0].OldValue != "100,200" || moved[0].NewValue != "150,250" {
		t.Errorf("moved = %v", moved)
	}
	resized := pmlEventsOfKind(events, ShapeResized)
	if len(resized) != 1 || resized[0].OldValue != "300x400" || resized[0].NewValue != "600x400" {
		t.Errorf("resized = %v", resized)
	}
	if len(pmlEventsOfKind(events, TextChanged)) != 0 {
		t.Errorf("unexpected text events in %v", events)
	}
}

func TestCompare_TextFormattingChanged(t *testing.T) {
	older := buildPptx(t, slideDef{
		placedShape("Title 1", `<p:ph type="title"/>`, "Same words", `<a:rPr lang="en-US"/>`, 100, 200, 300, 400),
		"slideLayout1.xml"})
	newer := buildPptx(t, slideDef{
		placedShape("Title 1", `<p:ph type="title"/>`, "Same words", `<a:rPr lang="en-US" b="1"/>`, 100, 200, 300, 400),
		"slideLayout1.xml"})

	events, err := Compare(older, newer, redline.DefaultSettings())
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if len(events) != 1 || events[0].Kind != TextFormattingChanged {
		t.Errorf("got %v, want one TextFormattingChanged", events)
	}
}

func TestCompare_RejectsWrongKind(t *testing.T) {
	deck := buildPptx(t, slideDef{titleShape("Only"), ""})
	notADeck := func() []byte {
		var buf bytes.Buffer
		zw := zip.NewWriter(&buf)
		for name, content := range map[string]string{
			"[Content_Types].xml": pptxContentTypes,
			"xl/workbook.xml":     "<workbook/>",
		} {
			w, _ := zw.Create(name)
			w.Write([]byte(content))
		}
		zw.Close()
		return buf.Bytes()
	}()
	if _, err := Compare(deck, notADeck, redline.DefaultSettings()); err == nil {
		t.Error("expected error comparing a non-presentation package")
	}
}

func TestCompare_GroupedShapeTextChanged(t *testing.T) {
	group := func(text string) string {
		return `<p:grpSp><p:nvGrpSpPr><p:cNvPr id="9" name="Group 1"/></p:nvGrpSpPr>` +
			placedShape("Callout 3", "", text, `<a:rPr lang="en-US"/>`, 700, 700, 80, 80) +
			`</p:grpSp>`
	}
	older := buildPptx(t, slideDef{titleShape("Intro") + group("old note"), "slideLayout1.xml"})
	newer := buildPptx(t, slideDef{titleShape("Intro") + group("new note"), "slideLayout1.xml"})

	events, err := Compare(older, newer, redline.DefaultSettings())
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	texts := pmlEventsOfKind(events, TextChanged)
	if len(texts) != 1 || texts[0].Shape != "Callout 3" {
		t.Fatalf("got %v, want one TextChanged for Callout 3", events)
	}
	if texts[0].OldValue != "old note" || texts[0].NewValue != "new note" {
		t.Errorf("text = %q -> %q", texts[0].OldValue, texts[0].NewValue)
	}
}

func TestCompare_SlideSizeChanged(t *testing.T) {
	slides := []slideDef{{titleShape("Steady"), "slideLayout1.xml"}}
	older := buildDeck(t, deckDef{
		sldSz:  `<p:sldSz cx="9144000" cy="6858000"/>`,
		slides: slides,
	})
	newer := buildDeck(t, deckDef{
		sldSz:  `<p:sldSz cx="12192000" cy="6858000"/>`,
		slides: slides,
	})

	events, err := Compare(older, newer, redline.DefaultSettings())
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if len(events) != 1 || events[0].Kind != SlideSizeChanged {
		t.Fatalf("got %v, want one SlideSizeChanged", events)
	}
	e := events[0]
	if e.OldValue != "9144000x6858000" || e.NewValue != "12192000x6858000" {
		t.Errorf("size = %q -> %q", e.OldValue, e.NewValue)
	}
	if got, want := e.String(), "SlideSizeChanged on presentation"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestCompare_ThemeChanged(t *testing.T) {
	slides := []slideDef{{titleShape("Steady"), "slideLayout1.xml"}}
	theme := func(color string) string {
		return `<?xml version="1.0"?>
<a:theme xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" name="Office">
  <a:themeElements><a:clrScheme name="Office"><a:dk1><a:srgbClr val="` + color + `"/></a:dk1></a:clrScheme></a:themeElements>
</a:theme>`
	}
	older := buildDeck(t, deckDef{theme: theme("000000"), slides: slides})
	newer := buildDeck(t, deckDef{theme: theme("1F1F1F"), slides: slides})

	events, err := Compare(older, newer, redline.DefaultSettings())
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if len(events) != 1 || events[0].Kind != ThemeChanged {
		t.Fatalf("got %v, want one ThemeChanged", events)
	}

	same, err := Compare(older, buildDeck(t, deckDef{theme: theme("000000"), slides: slides}), redline.DefaultSettings())
	if err != nil {
		t.Fatalf("Compare same theme: %v", err)
	}
	if len(same) != 0 {
		t.Errorf("got %v, want no events for identical themes", same)
	}
}

func TestSignPresentation_TitlesAndLayouts(t *testing.T) {
	data := buildPptx(t,
		slideDef{titleShape("Quarterly Report"), "slideLayout1.xml"})
	pkg := mustOpen(t, data)
	pres, err := SignPresentation(pkg)
	if err != nil {
		t.Fatalf("SignPresentation: %v", err)
	}
	if len(pres.Slides) != 1 {
		t.Fatalf("got %d slides, want 1", len(pres.Slides))
	}
	s := pres.Slides[0]
	if s.Title != "Quarterly Report" {
		t.Errorf("title = %q", s.Title)
	}
	if s.Layout != "ppt/slideLayouts/slideLayout1.xml" {
		t.Errorf("layout = %q", s.Layout)
	}
	if len(s.Shapes) != 1 {
		t.Fatalf("got %d shapes, want 1", len(s.Shapes))
	}
	shape := s.Shapes[0]
	if shape.placeholderKey() != "title#" {
		t.Errorf("placeholder key = %q", shape.placeholderKey())
	}
	if shape.X != 100 || shape.Y != 200 || shape.Width != 300 || shape.Height != 400 {
		t.Errorf("geometry = %d,%d %dx%d", shape.X, shape.Y, shape.Width, shape.Height)
	}
}
