package redline

import (
	"unicode"
)

// ComparisonUnit is the common interface of atoms, words and groups. The
// hash is pre-computed; comparison between units is always hash equality.
type ComparisonUnit interface {
	UnitHash() string
	AtomList() []*Atom
}

// UnitHash implements ComparisonUnit for a single atom.
func (a *Atom) UnitHash() string { return a.Hash }

// AtomList implements ComparisonUnit for a single atom.
func (a *Atom) AtomList() []*Atom { return []*Atom{a} }

// Word is a contiguous run of atoms belonging to one word under the
// separator policy. Its hash is the concatenation hash of its members.
type Word struct {
	Atoms []*Atom
	hash  string
}

// NewWord builds a word over a non-empty atom slice.
func NewWord(atoms []*Atom) *Word {
	hashes := make([]string, len(atoms))
	for i, a := range atoms {
		hashes[i] = a.Hash
	}
	return &Word{Atoms: atoms, hash: hashConcat(hashes)}
}

func (w *Word) UnitHash() string  { return w.hash }
func (w *Word) AtomList() []*Atom { return w.Atoms }

// GroupKind discriminates hierarchical groups.
type GroupKind int

const (
	GroupParagraph GroupKind = iota
	GroupTable
	GroupRow
	GroupCell
	GroupTextbox
)

func (k GroupKind) String() string {
	switch k {
	case GroupParagraph:
		return "Paragraph"
	case GroupTable:
		return "Table"
	case GroupRow:
		return "Row"
	case GroupCell:
		return "Cell"
	default:
		return "Textbox"
	}
}

// groupingAncestors maps grouping element names to group kinds, outermost
// grouping is decided by ancestor order, not by this map.
var groupingAncestors = map[string]GroupKind{
	"p":           GroupParagraph,
	"tbl":         GroupTable,
	"tr":          GroupRow,
	"tc":          GroupCell,
	"txbxContent": GroupTextbox,
}

// Group is a hierarchical container of words or sub-groups, keyed by the
// Unid of its corresponding ancestor element.
type Group struct {
	Kind GroupKind
	// Unid of the ancestor element this group corresponds to.
	Unid string
	// Members are Words or child Groups.
	Members []ComparisonUnit
	// CorrelatedHash is the block-level signature inherited from the
	// ancestor's attribute, or "".
	CorrelatedHash string
	// Status is the correlation status.
	Status Status
	hash   string
}

func newGroup(kind GroupKind, unid, correlated string, members []ComparisonUnit) *Group {
	hashes := make([]string, len(members))
	for i, m := range members {
		hashes[i] = m.UnitHash()
	}
	return &Group{
		Kind:           kind,
		Unid:           unid,
		Members:        members,
		CorrelatedHash: correlated,
		Status:         StatusNil,
		hash:           hashConcat(hashes),
	}
}

func (g *Group) UnitHash() string { return g.hash }

func (g *Group) AtomList() []*Atom {
	var atoms []*Atom
	for _, m := range g.Members {
		atoms = append(atoms, m.AtomList()...)
	}
	return atoms
}

// SplitWords assembles atoms into words using the word-separator rules:
// a new word starts on whitespace, a configured separator, a CJK ideograph
// (each ideograph is its own word), or any non-text atom. Digits continue a
// word across '.' and ',' when both neighbors are digits.
func SplitWords(atoms []*Atom, settings Settings) []*Word {
	var words []*Word
	var current []*Atom
	flush := func() {
		if len(current) > 0 {
			words = append(words, NewWord(current))
			current = nil
		}
	}
	for i, a := range atoms {
		if !a.IsText() {
			flush()
			words = append(words, NewWord([]*Atom{a}))
			continue
		}
		ch := a.Kind.Char
		switch {
		case unicode.IsSpace(ch):
			flush()
			words = append(words, NewWord([]*Atom{a}))
		case isCJKIdeograph(ch):
			flush()
			words = append(words, NewWord([]*Atom{a}))
		case settings.IsWordSeparator(ch):
			if (ch == '.' || ch == ',') && digitNeighbors(atoms, i) {
				current = append(current, a)
				continue
			}
			flush()
			words = append(words, NewWord([]*Atom{a}))
		default:
			current = append(current, a)
		}
	}
	flush()
	return words
}

func isCJKIdeograph(r rune) bool {
	return r >= 0x4E00 && r <= 0x9FFF
}

// digitNeighbors reports whether the atoms on both sides of index i are
// text digits.
func digitNeighbors(atoms []*Atom, i int) bool {
	if i == 0 || i+1 >= len(atoms) {
		return false
	}
	prev, next := atoms[i-1], atoms[i+1]
	return prev.IsText() && unicode.IsDigit(prev.Kind.Char) &&
		next.IsText() && unicode.IsDigit(next.Kind.Char)
}

// groupingKey is one level of an atom's grouping ancestry.
type groupingKey struct {
	kind GroupKind
	unid string
}

// groupingChain extracts from an atom's ancestor chain the sequence of
// comparison-grouping ancestors with their correlated hashes.
func groupingChain(a *Atom) ([]groupingKey, []string) {
	var keys []groupingKey
	var hashes []string
	for _, anc := range a.Ancestors {
		if kind, ok := groupingAncestors[anc.Name]; ok {
			keys = append(keys, groupingKey{kind: kind, unid: anc.Unid})
			hashes = append(hashes, anc.CorrelatedHash)
		}
	}
	return keys, hashes
}

// BuildGroups wraps the word stream into nested groups keyed by the Unids
// of the grouping ancestors (Paragraph, Table, Row, Cell, Textbox).
func BuildGroups(atoms []*Atom, settings Settings) []ComparisonUnit {
	words := SplitWords(atoms, settings)
	return groupWords(words, 0)
}

// groupWords recursively partitions words by the grouping ancestor at the
// given depth. Adjacent words sharing the same key form one group; words
// without a grouping ancestor at this depth stay top-level units.
func groupWords(words []*Word, depth int) []ComparisonUnit {
	var out []ComparisonUnit
	i := 0
	for i < len(words) {
		keys, hashes := groupingChain(words[i].Atoms[0])
		if depth >= len(keys) {
			out = append(out, words[i])
			i++
			continue
		}
		key := keys[depth]
		j := i
		for j < len(words) {
			nextKeys, _ := groupingChain(words[j].Atoms[0])
			if depth >= len(nextKeys) || nextKeys[depth] != key {
				break
			}
			j++
		}
		members := groupWords(words[i:j], depth+1)
		out = append(out, newGroup(key.kind, key.unid, hashes[depth], members))
		i = j
	}
	return out
}
