package redline

import (
	"crypto/sha1"
	"fmt"
	"strings"

	"github.com/beevik/etree"
)

// KindTag discriminates the content kinds an atom can carry.
type KindTag int

const (
	KindText KindTag = iota
	KindParagraphMark
	KindBreak
	KindTab
	KindDrawing
	KindPicture
	KindMath
	KindFootnoteRef
	KindEndnoteRef
	KindSymbol
	KindField
	KindObject
	KindUnknown
)

func (k KindTag) String() string {
	switch k {
	case KindText:
		return "Text"
	case KindParagraphMark:
		return "ParagraphMark"
	case KindBreak:
		return "Break"
	case KindTab:
		return "Tab"
	case KindDrawing:
		return "Drawing"
	case KindPicture:
		return "Picture"
	case KindMath:
		return "Math"
	case KindFootnoteRef:
		return "FootnoteRef"
	case KindEndnoteRef:
		return "EndnoteRef"
	case KindSymbol:
		return "Symbol"
	case KindField:
		return "Field"
	case KindObject:
		return "Object"
	default:
		return "Unknown"
	}
}

// FieldKind discriminates field atoms.
type FieldKind int

const (
	FieldBegin FieldKind = iota
	FieldSeparate
	FieldEnd
	FieldSimple
)

// ContentKind tags an atom with its kind and the kind-specific payload.
type ContentKind struct {
	Tag KindTag
	// Char is the character of a Text atom.
	Char rune
	// Hash is the content hash of a Drawing, Picture, Math or Object atom.
	Hash string
	// RefID is the id of a Footnote/EndnoteRef atom.
	RefID string
	// Font and Sym carry a Symbol atom's payload.
	Font string
	Sym  string
	// Field and Instr carry a Field atom's payload.
	Field FieldKind
	Instr string
	// Name is the element name of an Unknown atom.
	Name string
}

// Status is the correlation status of an atom, group or sequence.
type Status int

const (
	StatusNil Status = iota
	StatusNormal
	StatusUnknown
	StatusEqual
	StatusInserted
	StatusDeleted
	StatusFormatChanged
	StatusGroup
)

func (s Status) String() string {
	switch s {
	case StatusNil:
		return "Nil"
	case StatusNormal:
		return "Normal"
	case StatusUnknown:
		return "Unknown"
	case StatusEqual:
		return "Equal"
	case StatusInserted:
		return "Inserted"
	case StatusDeleted:
		return "Deleted"
	case StatusFormatChanged:
		return "FormatChanged"
	case StatusGroup:
		return "Group"
	default:
		return "Nil"
	}
}

// Ancestor is one entry of an atom's ancestor chain: the containing
// element's name, its Unid, and the attribute snapshot needed to rebuild
// the container. Ancestor snapshots are shared between atoms of the same
// container; equality between ancestors is by Unid, never by pointer.
type Ancestor struct {
	Name           string
	Space          string
	Unid           string
	Attrs          []etree.Attr
	CorrelatedHash string
}

// Atom is the canonical unit of comparison: one character, one paragraph
// mark, one drawing, one note reference. Atom equality is identity-hash
// equality, never structural.
type Atom struct {
	Kind ContentKind
	// Hash is the identity hash: SHA1(localName || normalized value).
	Hash string
	// Ancestors is the chain root-to-leaf, body exclusive.
	Ancestors []*Ancestor
	// FormatSig is the hash of the atom's normalized run properties.
	FormatSig string
	// Before is the paired counterpart from the older document, set for
	// Equal atoms after correlation.
	Before *Atom
	// Status is the correlation status.
	Status Status
	// Part names the owning package part (main body, footnotes, ...).
	Part string

	// Snapshots used by the coalescer to rebuild output content.
	runProps  *etree.Element // the source run's rPr
	paraProps *etree.Element // the source paragraph's pPr (mark atoms only)
	content   *etree.Element // the source element for opaque kinds
}

// ContentElement returns the snapshot of the source element for opaque
// atom kinds (drawings, fields, symbols, references), or nil.
func (a *Atom) ContentElement() *etree.Element { return a.content }

// RunProperties returns the snapshot of the owning run's rPr, or nil.
func (a *Atom) RunProperties() *etree.Element { return a.runProps }

// ParagraphProperties returns the snapshot of the owning paragraph's pPr
// for paragraph-mark atoms, or nil.
func (a *Atom) ParagraphProperties() *etree.Element { return a.paraProps }

// IsText reports whether the atom is a single text character.
func (a *Atom) IsText() bool { return a.Kind.Tag == KindText }

func (a *Atom) String() string {
	switch a.Kind.Tag {
	case KindText:
		return fmt.Sprintf("Text(%q)", string(a.Kind.Char))
	case KindSymbol:
		return fmt.Sprintf("Symbol(%s,%s)", a.Kind.Font, a.Kind.Sym)
	case KindFootnoteRef, KindEndnoteRef:
		return fmt.Sprintf("%s(%s)", a.Kind.Tag, a.Kind.RefID)
	default:
		return a.Kind.Tag.String()
	}
}

// identityHash computes the atom identity hash from the element local name
// and the normalized text value.
func identityHash(localName, value string) string {
	return fmt.Sprintf("%x", sha1.Sum([]byte(localName+"|"+value)))
}

// hashConcat combines member hashes into a container hash.
func hashConcat(hashes []string) string {
	return fmt.Sprintf("%x", sha1.Sum([]byte(strings.Join(hashes, ""))))
}

// ancestorUnid returns the Unid of the ancestor at the given depth, or ""
// when the chain is shorter.
func (a *Atom) ancestorUnid(depth int) string {
	if depth >= len(a.Ancestors) {
		return ""
	}
	return a.Ancestors[depth].Unid
}
