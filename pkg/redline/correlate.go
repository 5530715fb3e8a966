package redline

import (
	"unicode"
)

// The correlator aligns two ordered unit lists into a list of correlated
// sequences whose statuses are all terminal (Equal, Deleted, Inserted).
// It maintains a worklist: one Unknown sequence covering both full unit
// streams is repeatedly replaced by the output of the first matcher that
// produces a refinement, until no Unknown remains.

// CorrelatedSequence is an aligned slice of units with a correlation
// status. In a terminal sequence, Equal has unit lists of equal length,
// Deleted has only old units, Inserted only new units.
type CorrelatedSequence struct {
	Status Status
	// Units1 are units from the older document.
	Units1 []ComparisonUnit
	// Units2 are units from the newer document.
	Units2 []ComparisonUnit
}

// Correlate refines the two unit streams until every sequence is terminal.
// The algorithm is deterministic for a given input.
func Correlate(units1, units2 []ComparisonUnit, settings Settings) []*CorrelatedSequence {
	c := &correlator{settings: settings, log: GetLogger()}
	csl := []*CorrelatedSequence{{Status: StatusUnknown, Units1: units1, Units2: units2}}
	for {
		idx := -1
		for i, cs := range csl {
			if cs.Status == StatusUnknown {
				idx = i
				break
			}
		}
		if idx == -1 {
			return csl
		}
		refined := c.refine(csl[idx])
		next := make([]*CorrelatedSequence, 0, len(csl)-1+len(refined))
		next = append(next, csl[:idx]...)
		next = append(next, refined...)
		next = append(next, csl[idx+1:]...)
		csl = next
	}
}

type correlator struct {
	settings Settings
	log      *Logger
}

// refine replaces one Unknown with a sequence of smaller ones. Every
// branch strictly reduces the remaining Unknown work, so the worklist loop
// terminates.
func (c *correlator) refine(cs *CorrelatedSequence) []*CorrelatedSequence {
	u1, u2 := cs.Units1, cs.Units2

	switch {
	case len(u1) == 0 && len(u2) == 0:
		return nil
	case len(u1) == 0:
		return []*CorrelatedSequence{{Status: StatusInserted, Units2: u2}}
	case len(u2) == 0:
		return []*CorrelatedSequence{{Status: StatusDeleted, Units1: u1}}
	}

	// Identity short-circuit: both streams already agree unit for unit.
	if len(u1) == len(u2) && allHashesEqual(u1, u2) {
		return []*CorrelatedSequence{{Status: StatusEqual, Units1: u1, Units2: u2}}
	}

	groups := allGroups(u1) && allGroups(u2)

	if groups {
		if out := c.matchCorrelatedHash(u1, u2); out != nil {
			c.log.DebugCorrelation("correlated-hash", len(u1), len(u2))
			return out
		}
	}

	if out := c.matchCommonEnds(u1, u2); out != nil {
		c.log.DebugCorrelation("common-ends", len(u1), len(u2))
		return out
	}

	if !groups {
		if allWords(u1) && allWords(u2) && (len(u1) == 1 || len(u2) == 1) {
			// Single words compare cheaper atom by atom; this is how
			// "12,34" against "12,4" resolves to a one-character deletion.
			return []*CorrelatedSequence{{
				Status: StatusUnknown,
				Units1: flattenToAtoms(u1),
				Units2: flattenToAtoms(u2),
			}}
		}
		// Word and atom streams refine by common ends only. Hunting for
		// shared substrings inside a rewritten phrase would anchor on
		// incidental words and shred the rewrite into fragments; a whole
		// deletion plus a whole insertion reads as one edit.
		return c.deletedInserted(u1, u2)
	}

	// Tabular and single-group fast path: descend one grouping level so
	// contents are compared unit by unit rather than by opaque group
	// hashes.
	if len(u1) == 1 || len(u2) == 1 {
		return []*CorrelatedSequence{{
			Status: StatusUnknown,
			Units1: expandOneLevel(u1),
			Units2: expandOneLevel(u2),
		}}
	}

	if out := c.matchLongestCommonSubstring(u1, u2); out != nil {
		c.log.DebugCorrelation("lcs", len(u1), len(u2))
		return out
	}

	// Matcher failure.
	return []*CorrelatedSequence{{
		Status: StatusUnknown,
		Units1: expandOneLevel(u1),
		Units2: expandOneLevel(u2),
	}}
}

func (c *correlator) deletedInserted(u1, u2 []ComparisonUnit) []*CorrelatedSequence {
	out := make([]*CorrelatedSequence, 0, 2)
	if len(u1) > 0 {
		out = append(out, &CorrelatedSequence{Status: StatusDeleted, Units1: u1})
	}
	if len(u2) > 0 {
		out = append(out, &CorrelatedSequence{Status: StatusInserted, Units2: u2})
	}
	return out
}

// matchCorrelatedHash finds the first pair of groups sharing a non-empty
// CorrelatedHash (leftmost in the old list, then leftmost in the new) and
// splits the Unknown around it.
func (c *correlator) matchCorrelatedHash(u1, u2 []ComparisonUnit) []*CorrelatedSequence {
	hashIndex := make(map[string]int)
	for j := len(u2) - 1; j >= 0; j-- {
		g, ok := u2[j].(*Group)
		if !ok || g.CorrelatedHash == "" {
			continue
		}
		hashIndex[g.CorrelatedHash] = j
	}
	for i, unit := range u1 {
		g, ok := unit.(*Group)
		if !ok || g.CorrelatedHash == "" {
			continue
		}
		j, ok := hashIndex[g.CorrelatedHash]
		if !ok {
			continue
		}
		var out []*CorrelatedSequence
		if i > 0 || j > 0 {
			// the region before the anchor still holds unpaired groups
			// that deserve word-level refinement
			out = append(out, &CorrelatedSequence{
				Status: StatusUnknown,
				Units1: u1[:i],
				Units2: u2[:j],
			})
		}
		out = append(out, &CorrelatedSequence{
			Status: StatusEqual,
			Units1: u1[i : i+1],
			Units2: u2[j : j+1],
		})
		if len(u1) > i+1 || len(u2) > j+1 {
			out = append(out, &CorrelatedSequence{
				Status: StatusUnknown,
				Units1: u1[i+1:],
				Units2: u2[j+1:],
			})
		}
		return out
	}
	return nil
}

// matchCommonEnds peels an equal prefix and a non-overlapping equal suffix
// off the Unknown.
func (c *correlator) matchCommonEnds(u1, u2 []ComparisonUnit) []*CorrelatedSequence {
	limit := len(u1)
	if len(u2) < limit {
		limit = len(u2)
	}
	prefix := 0
	for prefix < limit && u1[prefix].UnitHash() == u2[prefix].UnitHash() {
		prefix++
	}
	suffix := 0
	for suffix < limit-prefix &&
		u1[len(u1)-1-suffix].UnitHash() == u2[len(u2)-1-suffix].UnitHash() {
		suffix++
	}
	if prefix+suffix == 0 {
		return nil
	}
	var out []*CorrelatedSequence
	if prefix > 0 {
		out = append(out, &CorrelatedSequence{
			Status: StatusEqual,
			Units1: u1[:prefix],
			Units2: u2[:prefix],
		})
	}
	mid1 := u1[prefix : len(u1)-suffix]
	mid2 := u2[prefix : len(u2)-suffix]
	if len(mid1) > 0 || len(mid2) > 0 {
		out = append(out, &CorrelatedSequence{Status: StatusUnknown, Units1: mid1, Units2: mid2})
	}
	if suffix > 0 {
		out = append(out, &CorrelatedSequence{
			Status: StatusEqual,
			Units1: u1[len(u1)-suffix:],
			Units2: u2[len(u2)-suffix:],
		})
	}
	return out
}

// matchLongestCommonSubstring finds the longest pair of contiguous index
// ranges with pairwise equal hashes, subject to the minimum-length floor,
// the detail threshold, and the anchor predicate. Ties break leftmost in
// the old units, then leftmost in the new. Only group streams reach this
// matcher; finer streams resolve through common ends.
func (c *correlator) matchLongestCommonSubstring(u1, u2 []ComparisonUnit) []*CorrelatedSequence {
	bestLen, bestI, bestJ := 0, -1, -1
	prev := make([]int, len(u2)+1)
	cur := make([]int, len(u2)+1)
	for i := 1; i <= len(u1); i++ {
		h1 := u1[i-1].UnitHash()
		for j := 1; j <= len(u2); j++ {
			if h1 == u2[j-1].UnitHash() {
				cur[j] = prev[j-1] + 1
			} else {
				cur[j] = 0
			}
			if cur[j] > bestLen && c.interestingAnchor(u1[i-cur[j]:i]) {
				bestLen, bestI, bestJ = cur[j], i-cur[j], j-cur[j]
			}
		}
		prev, cur = cur, prev
		for j := range cur {
			cur[j] = 0
		}
	}

	if bestLen < 1 {
		return nil
	}
	larger := len(u1)
	if len(u2) > larger {
		larger = len(u2)
	}
	if c.settings.DetailThreshold > 0 &&
		float64(bestLen)/float64(larger) < c.settings.DetailThreshold {
		return nil
	}

	var out []*CorrelatedSequence
	if bestI > 0 || bestJ > 0 {
		out = append(out, &CorrelatedSequence{
			Status: StatusUnknown,
			Units1: u1[:bestI],
			Units2: u2[:bestJ],
		})
	}
	out = append(out, &CorrelatedSequence{
		Status: StatusEqual,
		Units1: u1[bestI : bestI+bestLen],
		Units2: u2[bestJ : bestJ+bestLen],
	})
	if bestI+bestLen < len(u1) || bestJ+bestLen < len(u2) {
		out = append(out, &CorrelatedSequence{
			Status: StatusUnknown,
			Units1: u1[bestI+bestLen:],
			Units2: u2[bestJ+bestLen:],
		})
	}
	return out
}

// interestingAnchor rejects anchors consisting entirely of whitespace and
// separator characters. Anchoring two reworded phrases on a shared space
// would shred the surrounding edits into per-letter revisions.
func (c *correlator) interestingAnchor(units []ComparisonUnit) bool {
	for _, u := range units {
		for _, a := range u.AtomList() {
			if !a.IsText() {
				return true
			}
			ch := a.Kind.Char
			if !unicode.IsSpace(ch) && !c.settings.IsWordSeparator(ch) {
				return true
			}
		}
	}
	return false
}

func allHashesEqual(u1, u2 []ComparisonUnit) bool {
	for i := range u1 {
		if u1[i].UnitHash() != u2[i].UnitHash() {
			return false
		}
	}
	return true
}

func allGroups(units []ComparisonUnit) bool {
	for _, u := range units {
		if _, ok := u.(*Group); !ok {
			return false
		}
	}
	return len(units) > 0
}

func allWords(units []ComparisonUnit) bool {
	for _, u := range units {
		if _, ok := u.(*Word); !ok {
			return false
		}
	}
	return len(units) > 0
}

// expandOneLevel replaces each group with its members; words and atoms
// pass through.
func expandOneLevel(units []ComparisonUnit) []ComparisonUnit {
	var out []ComparisonUnit
	for _, u := range units {
		if g, ok := u.(*Group); ok {
			out = append(out, g.Members...)
			continue
		}
		out = append(out, u)
	}
	return out
}

// flattenToAtoms replaces every unit with its atoms.
func flattenToAtoms(units []ComparisonUnit) []ComparisonUnit {
	var out []ComparisonUnit
	for _, u := range units {
		for _, a := range u.AtomList() {
			out = append(out, a)
		}
	}
	return out
}

// ResolveToAtoms turns a terminal correlation into the resolved atom
// stream consumed by the coalescer: Equal sequences contribute the newer
// document's atoms paired with their older counterparts, Deleted the older
// atoms, Inserted the newer atoms, all in document order.
func ResolveToAtoms(csl []*CorrelatedSequence) []*Atom {
	var resolved []*Atom
	unidMap := make(map[string]*Ancestor)

	for _, cs := range csl {
		switch cs.Status {
		case StatusEqual:
			oldAtoms := flattenUnitAtoms(cs.Units1)
			newAtoms := flattenUnitAtoms(cs.Units2)
			n := len(oldAtoms)
			if len(newAtoms) < n {
				n = len(newAtoms)
			}
			for i := 0; i < n; i++ {
				newAtoms[i].Status = StatusEqual
				newAtoms[i].Before = oldAtoms[i]
				recordAncestorPairs(oldAtoms[i], newAtoms[i], unidMap)
				resolved = append(resolved, newAtoms[i])
			}
			for _, a := range oldAtoms[n:] {
				a.Status = StatusDeleted
				resolved = append(resolved, a)
			}
			for _, a := range newAtoms[n:] {
				a.Status = StatusInserted
				resolved = append(resolved, a)
			}
		case StatusDeleted:
			for _, a := range flattenUnitAtoms(cs.Units1) {
				a.Status = StatusDeleted
				resolved = append(resolved, a)
			}
		case StatusInserted:
			for _, a := range flattenUnitAtoms(cs.Units2) {
				a.Status = StatusInserted
				resolved = append(resolved, a)
			}
		}
	}

	// Deleted atoms carry ancestor chains from the older tree. Where an
	// ancestor correlated with a container in the newer tree (through any
	// Equal atom they share), adopt the newer container so the coalescer
	// reassembles both halves into one element.
	for _, a := range resolved {
		if a.Status != StatusDeleted {
			continue
		}
		remapped := make([]*Ancestor, len(a.Ancestors))
		for i, anc := range a.Ancestors {
			if mapped, ok := unidMap[anc.Unid]; ok {
				remapped[i] = mapped
			} else {
				remapped[i] = anc
			}
		}
		a.Ancestors = remapped
	}
	return resolved
}

func flattenUnitAtoms(units []ComparisonUnit) []*Atom {
	var out []*Atom
	for _, u := range units {
		out = append(out, u.AtomList()...)
	}
	return out
}

func recordAncestorPairs(oldAtom, newAtom *Atom, unidMap map[string]*Ancestor) {
	n := len(oldAtom.Ancestors)
	if len(newAtom.Ancestors) < n {
		n = len(newAtom.Ancestors)
	}
	for i := 0; i < n; i++ {
		oldAnc, newAnc := oldAtom.Ancestors[i], newAtom.Ancestors[i]
		if oldAnc.Name == newAnc.Name {
			unidMap[oldAnc.Unid] = newAnc
		}
	}
}
