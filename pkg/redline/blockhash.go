package redline

import (
	"crypto/sha1"
	"fmt"
	"sort"
	"strings"

	"github.com/beevik/etree"
)

// Block hashing attaches a CorrelatedHash attribute to every paragraph,
// table, row and textbox of the source tree. The hash is computed from a
// revision-accepted shadow of the same tree so that revised content
// correlates with its final form, then assigned back to the source node by
// Unid.

// blockHashElements are the element kinds that receive a CorrelatedHash.
var blockHashElements = map[string]bool{
	"p":           true,
	"tbl":         true,
	"tr":          true,
	"txbxContent": true,
}

// AssignCorrelatedHashes computes and stores the CorrelatedHash attribute
// on every block-level element of root.
func AssignCorrelatedHashes(root *etree.Element, settings Settings) {
	shadow := root.Copy()
	AcceptRevisions(shadow, AcceptAll())

	hasher := &blockHasher{settings: settings}
	hashes := make(map[string]string)
	collect := func(e *etree.Element) bool {
		if blockHashElements[e.Tag] {
			if u := unid(e); u != "" {
				hashes[u] = hasher.hash(e)
			}
		}
		return true
	}
	collect(shadow)
	walkElements(shadow, collect)

	assign := func(e *etree.Element) bool {
		if blockHashElements[e.Tag] {
			if h, ok := hashes[unid(e)]; ok {
				e.CreateAttr(attrCorrelatedHash, h)
			}
		}
		return true
	}
	assign(root)
	walkElements(root, assign)
}

type blockHasher struct {
	settings Settings
}

// hash renders an element to its canonical form and digests it.
func (h *blockHasher) hash(e *etree.Element) string {
	var sb strings.Builder
	h.render(e, &sb)
	return fmt.Sprintf("%x", sha1.Sum([]byte(sb.String())))
}

// Elements dropped entirely from the canonical form.
var canonicalDropElements = map[string]bool{
	"bookmarkStart": true,
	"bookmarkEnd":   true,
	"pPr":           true,
	"rPr":           true,
}

func (h *blockHasher) render(e *etree.Element, sb *strings.Builder) {
	if canonicalDropElements[e.Tag] {
		return
	}
	switch e.Tag {
	case "p":
		sb.WriteString("<p>")
		h.renderParagraphContent(e, sb)
		sb.WriteString("</p>")
	case "tbl":
		sb.WriteString("<tbl>")
		for _, c := range e.ChildElements() {
			if c.Tag == "tr" {
				h.render(c, sb)
			}
		}
		sb.WriteString("</tbl>")
	case "tr":
		sb.WriteString("<tr>")
		for _, c := range e.ChildElements() {
			if c.Tag == "tc" {
				h.render(c, sb)
			}
		}
		sb.WriteString("</tr>")
	case "tc":
		sb.WriteString("<tc>")
		if tcPr := firstChild(e, "tcPr"); tcPr != nil {
			if span := firstChild(tcPr, "gridSpan"); span != nil {
				fmt.Fprintf(sb, "<gridSpan val=%q/>", attrValue(span, "val"))
			}
		}
		for _, c := range e.ChildElements() {
			if c.Tag != "tcPr" {
				h.render(c, sb)
			}
		}
		sb.WriteString("</tc>")
	case "drawing", "pict":
		if txbx := h.findTextbox(e); txbx != nil {
			h.render(txbx, sb)
			return
		}
		h.renderOpaque(e, sb)
	case "t", "delText":
		sb.WriteString(h.normalizeText(elementText(e)))
	default:
		sb.WriteString("<" + e.Tag + ">")
		for _, c := range e.ChildElements() {
			h.render(c, sb)
		}
		sb.WriteString("</" + e.Tag + ">")
	}
}

// renderParagraphContent concatenates adjacent text-only runs so that
// inconsequential run boundaries do not affect equality.
func (h *blockHasher) renderParagraphContent(p *etree.Element, sb *strings.Builder) {
	var pending strings.Builder
	flush := func() {
		if pending.Len() > 0 {
			sb.WriteString("<r><t>")
			sb.WriteString(pending.String())
			sb.WriteString("</t></r>")
			pending.Reset()
		}
	}
	for _, c := range p.ChildElements() {
		if canonicalDropElements[c.Tag] {
			continue
		}
		if c.Tag == "r" && isTextOnlyRun(c) {
			for _, rc := range c.ChildElements() {
				if rc.Tag == "t" || rc.Tag == "delText" {
					pending.WriteString(h.normalizeText(elementText(rc)))
				}
			}
			continue
		}
		flush()
		h.render(c, sb)
	}
	flush()
}

// isTextOnlyRun reports whether a run contains only text (and properties).
func isTextOnlyRun(r *etree.Element) bool {
	for _, c := range r.ChildElements() {
		switch c.Tag {
		case "t", "delText", "rPr":
		default:
			return false
		}
	}
	return true
}

// findTextbox locates a txbxContent descendant of a drawing or pict.
func (h *blockHasher) findTextbox(e *etree.Element) *etree.Element {
	found := descendants(e, func(d *etree.Element) bool { return d.Tag == "txbxContent" })
	if len(found) == 0 {
		return nil
	}
	return found[0]
}

// renderOpaque renders a subtree verbatim minus rsid and scaffolding
// attributes, with attributes in sorted order for stability.
func (h *blockHasher) renderOpaque(e *etree.Element, sb *strings.Builder) {
	sb.WriteString("<" + e.Tag)
	attrs := make([]etree.Attr, 0, len(e.Attr))
	for _, a := range e.Attr {
		if isRsidAttr(a) || isPtAttr(a) {
			continue
		}
		attrs = append(attrs, a)
	}
	sort.Slice(attrs, func(i, j int) bool {
		if attrs[i].Space != attrs[j].Space {
			return attrs[i].Space < attrs[j].Space
		}
		return attrs[i].Key < attrs[j].Key
	})
	for _, a := range attrs {
		if a.Space != "" {
			fmt.Fprintf(sb, " %s:%s=%q", a.Space, a.Key, a.Value)
		} else {
			fmt.Fprintf(sb, " %s=%q", a.Key, a.Value)
		}
	}
	sb.WriteString(">")
	for _, tok := range e.Child {
		switch t := tok.(type) {
		case *etree.CharData:
			sb.WriteString(h.normalizeText(t.Data))
		case *etree.Element:
			h.renderOpaque(t, sb)
		}
	}
	sb.WriteString("</" + e.Tag + ">")
}

// normalizeText applies the configured case folding and space conflation.
func (h *blockHasher) normalizeText(s string) string {
	if h.settings.CaseInsensitive {
		s = strings.ToUpper(s)
	}
	if h.settings.ConflateSpaces {
		s = strings.ReplaceAll(s, " ", " ")
	}
	return s
}
