package pml

import (
	"fmt"

	"github.com/benjaminschreck/go-redline/pkg/redline"
	"github.com/benjaminschreck/go-redline/pkg/redline/ooxml"
)

// EventKind classifies a presentation change event.
type EventKind int

const (
	SlideInserted EventKind = iota
	SlideDeleted
	SlideMoved
	SlideLayoutChanged
	SlideBackgroundChanged
	SlideNotesChanged
	ShapeInserted
	ShapeDeleted
	ShapeMoved
	ShapeResized
	ShapeRotated
	ShapeZOrderChanged
	TextChanged
	TextFormattingChanged
	ImageReplaced
	TableContentChanged
	ChartDataChanged
	SlideSizeChanged
	ThemeChanged
)

var eventKindNames = map[EventKind]string{
	SlideInserted:          "SlideInserted",
	SlideDeleted:           "SlideDeleted",
	SlideMoved:             "SlideMoved",
	SlideLayoutChanged:     "SlideLayoutChanged",
	SlideBackgroundChanged: "SlideBackgroundChanged",
	SlideNotesChanged:      "SlideNotesChanged",
	ShapeInserted:          "ShapeInserted",
	ShapeDeleted:           "ShapeDeleted",
	ShapeMoved:             "ShapeMoved",
	ShapeResized:           "ShapeResized",
	ShapeRotated:           "ShapeRotated",
	ShapeZOrderChanged:     "ShapeZOrderChanged",
	TextChanged:            "TextChanged",
	TextFormattingChanged:  "TextFormattingChanged",
	ImageReplaced:          "ImageReplaced",
	TableContentChanged:    "TableContentChanged",
	ChartDataChanged:       "ChartDataChanged",
	SlideSizeChanged:       "SlideSizeChanged",
	ThemeChanged:           "ThemeChanged",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// Event is one detected presentation change. Slide numbers are 1-based and
// refer to the newer deck except for deletions, which refer to the older.
// Deck-level events carry slide number 0.
type Event struct {
	Kind     EventKind `json:"kind"`
	Slide    int       `json:"slide"`
	Shape    string    `json:"shape,omitempty"`
	OldValue string    `json:"old_value,omitempty"`
	NewValue string    `json:"new_value,omitempty"`
}

func (e Event) String() string {
	if e.Slide == 0 {
		return fmt.Sprintf("%s on presentation", e.Kind)
	}
	if e.Shape != "" {
		return fmt.Sprintf("%s on slide %d, shape %q", e.Kind, e.Slide, e.Shape)
	}
	return fmt.Sprintf("%s on slide %d", e.Kind, e.Slide)
}

// Compare diffs two presentation packages and returns the detected events
// in deck order of the newer presentation.
func Compare(older, newer []byte, settings redline.Settings) ([]Event, error) {
	oldPkg, err := ooxml.Open(older)
	if err != nil {
		return nil, redline.NewPackageError("older", err)
	}
	newPkg, err := ooxml.Open(newer)
	if err != nil {
		return nil, redline.NewPackageError("newer", err)
	}
	if oldPkg.Kind() != ooxml.KindPresentation || newPkg.Kind() != ooxml.KindPresentation {
		return nil, redline.NewInvalidPackageError("ppt/presentation.xml",
			fmt.Sprintf("expected presentation packages, got %s and %s", oldPkg.Kind(), newPkg.Kind()))
	}
	oldPres, err := SignPresentation(oldPkg)
	if err != nil {
		return nil, err
	}
	newPres, err := SignPresentation(newPkg)
	if err != nil {
		return nil, err
	}
	return comparePresentations(oldPres, newPres, settings), nil
}

// slideMatch pairs an old slide with a new slide.
type slideMatch struct {
	old *SlideSignature
	new *SlideSignature
}

func comparePresentations(oldPres, newPres *PresentationSignature, settings redline.Settings) []Event {
	matches, deletedSlides := matchSlides(oldPres, newPres)

	var events []Event
	if oldPres.SlideWidth != newPres.SlideWidth || oldPres.SlideHeight != newPres.SlideHeight {
		events = append(events, Event{
			Kind:     SlideSizeChanged,
			OldValue: fmt.Sprintf("%dx%d", oldPres.SlideWidth, oldPres.SlideHeight),
			NewValue: fmt.Sprintf("%dx%d", newPres.SlideWidth, newPres.SlideHeight),
		})
	}
	if oldPres.ThemeHash != newPres.ThemeHash {
		events = append(events, Event{Kind: ThemeChanged})
	}
	for _, old := range deletedSlides {
		events = append(events, Event{Kind: SlideDeleted, Slide: old.Index + 1})
	}
	for _, m := range matches {
		if m.old == nil {
			events = append(events, Event{Kind: SlideInserted, Slide: m.new.Index + 1})
			continue
		}
		if m.old.Index != m.new.Index {
			events = append(events, Event{
				Kind: SlideMoved, Slide: m.new.Index + 1,
				OldValue: fmt.Sprintf("%d", m.old.Index+1),
				NewValue: fmt.Sprintf("%d", m.new.Index+1),
			})
		}
		events = append(events, compareSlides(m.old, m.new, settings)...)
	}
	return events
}

// matchSlides pairs slides across decks: same index and layout first, then
// content hash anywhere in the deck, then title text as a tiebreaker.
// Unmatched new slides come back as matches with a nil old side.
func matchSlides(oldPres, newPres *PresentationSignature) ([]slideMatch, []*SlideSignature) {
	oldUsed := make([]bool, len(oldPres.Slides))
	matches := make([]slideMatch, len(newPres.Slides))
	for i := range newPres.Slides {
		matches[i] = slideMatch{new: &newPres.Slides[i]}
	}

	// pass 1: positional with matching layout
	for i := range newPres.Slides {
		ns := &newPres.Slides[i]
		if ns.Index < len(oldPres.Slides) {
			os := &oldPres.Slides[ns.Index]
			if !oldUsed[os.Index] && os.Layout == ns.Layout {
				matches[i].old = os
				oldUsed[os.Index] = true
			}
		}
	}
	// pass 2: content hash
	for i := range matches {
		if matches[i].old != nil {
			continue
		}
		for j := range oldPres.Slides {
			os := &oldPres.Slides[j]
			if !oldUsed[j] && os.ContentHash == matches[i].new.ContentHash {
				matches[i].old = os
				oldUsed[j] = true
				break
			}
		}
	}
	// pass 3: title
	for i := range matches {
		if matches[i].old != nil || matches[i].new.Title == "" {
			continue
		}
		for j := range oldPres.Slides {
			os := &oldPres.Slides[j]
			if !oldUsed[j] && os.Title == matches[i].new.Title {
				matches[i].old = os
				oldUsed[j] = true
				break
			}
		}
	}

	var deleted []*SlideSignature
	for j := range oldPres.Slides {
		if !oldUsed[j] {
			deleted = append(deleted, &oldPres.Slides[j])
		}
	}
	return matches, deleted
}

func compareSlides(old, new *SlideSignature, settings redline.Settings) []Event {
	slideNo := new.Index + 1
	var events []Event
	if old.Layout != new.Layout {
		events = append(events, Event{
			Kind: SlideLayoutChanged, Slide: slideNo,
			OldValue: old.Layout, NewValue: new.Layout,
		})
	}
	if old.Background != new.Background {
		events = append(events, Event{Kind: SlideBackgroundChanged, Slide: slideNo})
	}
	if settings.AddNotesAnnotations && old.Notes != new.Notes {
		events = append(events, Event{
			Kind: SlideNotesChanged, Slide: slideNo,
			OldValue: old.Notes, NewValue: new.Notes,
		})
	}
	events = append(events, compareShapes(old, new, slideNo)...)
	return events
}

func compareShapes(old, new *SlideSignature, slideNo int) []Event {
	oldUsed := make([]bool, len(old.Shapes))
	var events []Event

	match := func(ns *ShapeSignature) *ShapeSignature {
		// placeholder identity wins
		if key := ns.placeholderKey(); key != "" {
			for j := range old.Shapes {
				if !oldUsed[j] && old.Shapes[j].placeholderKey() == key {
					oldUsed[j] = true
					return &old.Shapes[j]
				}
			}
		}
		// then name and kind
		for j := range old.Shapes {
			os := &old.Shapes[j]
			if !oldUsed[j] && os.placeholderKey() == "" && os.Name == ns.Name && os.Kind == ns.Kind {
				oldUsed[j] = true
				return os
			}
		}
		// finally identical content anywhere on the slide
		for j := range old.Shapes {
			os := &old.Shapes[j]
			if !oldUsed[j] && os.ContentHash == ns.ContentHash {
				oldUsed[j] = true
				return os
			}
		}
		return nil
	}

	for i := range new.Shapes {
		ns := &new.Shapes[i]
		os := match(ns)
		if os == nil {
			events = append(events, Event{Kind: ShapeInserted, Slide: slideNo, Shape: ns.Name})
			continue
		}
		events = append(events, diffShape(os, ns, slideNo)...)
	}
	for j := range old.Shapes {
		if !oldUsed[j] {
			events = append(events, Event{Kind: ShapeDeleted, Slide: slideNo, Shape: old.Shapes[j].Name})
		}
	}
	return events
}

func diffShape(os, ns *ShapeSignature, slideNo int) []Event {
	var events []Event
	add := func(kind EventKind, oldVal, newVal string) {
		events = append(events, Event{
			Kind: kind, Slide: slideNo, Shape: ns.Name,
			OldValue: oldVal, NewValue: newVal,
		})
	}
	if os.X != ns.X || os.Y != ns.Y {
		add(ShapeMoved, fmt.Sprintf("%d,%d", os.X, os.Y), fmt.Sprintf("%d,%d", ns.X, ns.Y))
	}
	if os.Width != ns.Width || os.Height != ns.Height {
		add(ShapeResized, fmt.Sprintf("%dx%d", os.Width, os.Height), fmt.Sprintf("%dx%d", ns.Width, ns.Height))
	}
	if os.Rotation != ns.Rotation {
		add(ShapeRotated, fmt.Sprintf("%d", os.Rotation), fmt.Sprintf("%d", ns.Rotation))
	}
	if os.ZOrder != ns.ZOrder {
		add(ShapeZOrderChanged, fmt.Sprintf("%d", os.ZOrder), fmt.Sprintf("%d", ns.ZOrder))
	}
	if os.Text != ns.Text {
		add(TextChanged, os.Text, ns.Text)
	} else if os.TextFormat != ns.TextFormat {
		add(TextFormattingChanged, "", "")
	}
	if os.Kind == ShapePicture && ns.Kind == ShapePicture && os.ImageHash != ns.ImageHash {
		add(ImageReplaced, "", "")
	}
	if os.Kind == ShapeTable && ns.Kind == ShapeTable && os.GraphicHash != ns.GraphicHash {
		add(TableContentChanged, "", "")
	}
	if os.Kind == ShapeChart && ns.Kind == ShapeChart && os.GraphicHash != ns.GraphicHash {
		add(ChartDataChanged, "", "")
	}
	return events
}
