package redline

import (
	"github.com/beevik/etree"
	"github.com/google/uuid"
)

// Preprocessing renders the two inputs comparable: scaffolding markup is
// simplified away, pre-existing revisions are accepted so that both trees
// represent final content, and every element receives a Unid.

// Elements deleted whole during simplification. Their content is either
// empty by schema or deliberately dropped (proofing artifacts carry no
// content).
var simplifyDeleteElements = map[string]bool{
	"bookmarkStart":          true,
	"bookmarkEnd":            true,
	"permStart":              true,
	"permEnd":                true,
	"proofErr":               true,
	"lastRenderedPageBreak":  true,
	"commentRangeStart":      true,
	"commentRangeEnd":        true,
	"commentReference":       true,
	"softHyphen":             true,
	"instrText":              true,
	"delInstrText":           true,
	"noProof":                true,
	"commentsExtendedMarker": true,
}

// Elements unwrapped during simplification: their content is promoted to
// the parent. Content controls keep only their sdtContent children.
var simplifyUnwrapElements = map[string]bool{
	"hyperlink":  true,
	"smartTag":   true,
	"fldSimple":  true,
	"sdtContent": true,
}

// SimplifyOptions controls optional simplification behavior.
type SimplifyOptions struct {
	// RemoveRsidAttributes strips all w:rsid* attributes.
	RemoveRsidAttributes bool
}

// Simplify normalizes a content tree in place: bookmarks, permissions,
// proofing artifacts, comments, field-code scaffolding, soft hyphens and
// last-rendered page breaks are removed; hyperlinks, smart tags and content
// controls are unwrapped so their literal content survives.
func Simplify(root *etree.Element, opts SimplifyOptions) {
	simplifyElement(root, opts)
}

func simplifyElement(e *etree.Element, opts SimplifyOptions) {
	for _, c := range childElements(e) {
		switch {
		case simplifyDeleteElements[c.Tag]:
			removeElement(c)
			continue
		case c.Tag == "sdt":
			// Unwrap the control, keeping only its content block.
			content := firstChild(c, "sdtContent")
			if content != nil {
				simplifyElement(content, opts)
				unwrapElement(content)
			}
			unwrapElement(c)
			continue
		case simplifyUnwrapElements[c.Tag]:
			simplifyElement(c, opts)
			unwrapElement(c)
			continue
		}
		simplifyElement(c, opts)
	}
	if opts.RemoveRsidAttributes {
		removeAttrsWhere(e, isRsidAttr)
	}
}

// RevisionStrategy selects which tracked revisions a tree transform
// accepts. Strategies are pure: they never fail, and markup they do not
// recognize is left unchanged.
type RevisionStrategy struct {
	mode revisionMode
	ids  map[string]bool
}

type revisionMode int

const (
	acceptAllMode revisionMode = iota
	acceptByIdsMode
	rejectByIdsMode
)

// AcceptAll accepts every tracked revision.
func AcceptAll() RevisionStrategy {
	return RevisionStrategy{mode: acceptAllMode}
}

// AcceptByIds accepts only revisions whose w:id is in the set.
func AcceptByIds(ids ...string) RevisionStrategy {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return RevisionStrategy{mode: acceptByIdsMode, ids: set}
}

// RejectByIds rejects only revisions whose w:id is in the set; insertions
// are removed and deletions restored.
func RejectByIds(ids ...string) RevisionStrategy {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return RevisionStrategy{mode: rejectByIdsMode, ids: set}
}

func (s RevisionStrategy) selected(e *etree.Element) bool {
	switch s.mode {
	case acceptAllMode:
		return true
	default:
		return s.ids[attrValue(e, "id")]
	}
}

// Property-change history elements removed on acceptance.
var changeElements = map[string]bool{
	"rPrChange":       true,
	"pPrChange":       true,
	"tblPrChange":     true,
	"tblGridChange":   true,
	"tblPrExChange":   true,
	"trPrChange":      true,
	"tcPrChange":      true,
	"sectPrChange":    true,
	"numberingChange": true,
}

// AcceptRevisions applies a revision strategy to a content tree in place.
// Accepted insertions are unwrapped, accepted deletions removed with their
// content. Deleted table rows (trPr/del) and deleted math controls are
// removed whole.
func AcceptRevisions(root *etree.Element, strategy RevisionStrategy) {
	acceptInElement(root, strategy)
}

func acceptInElement(e *etree.Element, strategy RevisionStrategy) {
	for _, c := range childElements(e) {
		switch {
		case c.Tag == "tr" && rowMarkedDeleted(c):
			if strategy.mode != rejectByIdsMode {
				removeElement(c)
				continue
			}
		case elemIs(c, "ins", "moveTo") && strategy.mode != rejectByIdsMode:
			if strategy.selected(c) {
				acceptInElement(c, strategy)
				unwrapElement(c)
				continue
			}
		case elemIs(c, "ins", "moveTo") && strategy.mode == rejectByIdsMode:
			if strategy.selected(c) {
				removeElement(c)
				continue
			}
		case elemIs(c, "del", "moveFrom") && strategy.mode != rejectByIdsMode:
			if strategy.selected(c) {
				removeElement(c)
				continue
			}
		case elemIs(c, "del", "moveFrom") && strategy.mode == rejectByIdsMode:
			if strategy.selected(c) {
				restoreDeleted(c)
				acceptInElement(c, strategy)
				unwrapElement(c)
				continue
			}
		case changeElements[c.Tag] && strategy.mode == acceptAllMode:
			removeElement(c)
			continue
		case c.Tag == "oMath" || c.Tag == "oMathPara":
			if strategy.mode == acceptAllMode && mathMarkedDeleted(c) {
				removeElement(c)
				continue
			}
		}
		acceptInElement(c, strategy)
	}
}

// rowMarkedDeleted reports whether a table row carries trPr/del.
func rowMarkedDeleted(tr *etree.Element) bool {
	trPr := firstChild(tr, "trPr")
	if trPr == nil {
		return false
	}
	return firstChild(trPr, "del") != nil
}

// mathMarkedDeleted reports whether a math zone's control properties mark
// it deleted.
func mathMarkedDeleted(m *etree.Element) bool {
	for _, ctrlPr := range descendants(m, func(e *etree.Element) bool { return e.Tag == "ctrlPr" }) {
		if firstChild(ctrlPr, "del") != nil {
			return true
		}
	}
	return false
}

// restoreDeleted rewrites delText elements under a rejected deletion back
// into live text elements.
func restoreDeleted(del *etree.Element) {
	for _, dt := range descendants(del, func(e *etree.Element) bool { return e.Tag == "delText" }) {
		dt.Tag = "t"
	}
}

// AssignUnids gives every element in the subtree (root included) a fresh
// Unid unless it already carries one. The scaffolding namespace is declared
// on the root so intermediate serializations stay well-formed.
func AssignUnids(root *etree.Element) {
	root.CreateAttr("xmlns:"+ptPrefix, ptNamespace)
	assignUnid(root)
	walkElements(root, func(e *etree.Element) bool {
		assignUnid(e)
		return true
	})
}

func assignUnid(e *etree.Element) {
	if unid(e) == "" {
		setUnid(e, uuid.NewString())
	}
}

// RepairUnids re-assigns fresh Unids to elements that lost theirs during
// revision acceptance, preserving existing ones. It is AssignUnids by
// another name; the distinction is the pipeline stage it runs in.
func RepairUnids(root *etree.Element) {
	AssignUnids(root)
}
