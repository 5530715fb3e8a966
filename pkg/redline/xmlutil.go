package redline

import (
	"strings"

	"github.com/beevik/etree"
)

// Namespace prefixes used throughout the WML pipeline. DOCX parts bind
// these prefixes on the root element; matching is by prefix and local name,
// which the serializer preserves verbatim.
const (
	ptPrefix    = "pt14"
	ptNamespace = "http://powertools.codeplex.com/2011"

	attrUnid           = ptPrefix + ":Unid"
	attrStatus         = ptPrefix + ":Status"
	attrCorrelatedHash = ptPrefix + ":CorrelatedSHA1Hash"
	attrSHA1Hash       = ptPrefix + ":SHA1Hash"

	xmlSpacePreserve = "preserve"
)

// elemIs reports whether e matches any of the given local names.
func elemIs(e *etree.Element, locals ...string) bool {
	for _, l := range locals {
		if e.Tag == l {
			return true
		}
	}
	return false
}

// unid returns the scaffolding Unid of an element, or "".
func unid(e *etree.Element) string {
	return e.SelectAttrValue(attrUnid, "")
}

// setUnid assigns the scaffolding Unid of an element.
func setUnid(e *etree.Element, v string) {
	e.CreateAttr(attrUnid, v)
}

// correlatedHash returns the block-level CorrelatedHash of an element, or "".
func correlatedHash(e *etree.Element) string {
	return e.SelectAttrValue(attrCorrelatedHash, "")
}

// unwrapElement replaces an element with its child tokens, preserving order.
func unwrapElement(e *etree.Element) {
	parent := e.Parent()
	if parent == nil {
		return
	}
	children := make([]etree.Token, len(e.Child))
	copy(children, e.Child)
	for _, child := range children {
		parent.InsertChildAt(e.Index(), child)
	}
	parent.RemoveChild(e)
}

// removeElement detaches an element from its parent.
func removeElement(e *etree.Element) {
	if parent := e.Parent(); parent != nil {
		parent.RemoveChild(e)
	}
}

// childElements returns a stable copy of e's element children, safe to
// iterate while mutating e.
func childElements(e *etree.Element) []*etree.Element {
	live := e.ChildElements()
	children := make([]*etree.Element, len(live))
	copy(children, live)
	return children
}

// firstChild returns the first element child with the given local name.
func firstChild(e *etree.Element, local string) *etree.Element {
	for _, c := range e.ChildElements() {
		if c.Tag == local {
			return c
		}
	}
	return nil
}

// descendants appends, in document order, every element in the subtree
// rooted at e (excluding e itself) for which match returns true.
func descendants(e *etree.Element, match func(*etree.Element) bool) []*etree.Element {
	var out []*etree.Element
	var walk func(*etree.Element)
	walk = func(cur *etree.Element) {
		for _, c := range cur.ChildElements() {
			if match(c) {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(e)
	return out
}

// walkElements visits every element in the subtree rooted at e in document
// order, e excluded. The visit function may detach the visited element; the
// walk continues with its recorded siblings. Returning false skips the
// element's subtree.
func walkElements(e *etree.Element, visit func(*etree.Element) bool) {
	for _, c := range childElements(e) {
		if visit(c) {
			walkElements(c, visit)
		}
	}
}

// attrValue returns the value of the attribute with the given local name,
// regardless of prefix.
func attrValue(e *etree.Element, local string) string {
	for _, a := range e.Attr {
		if a.Key == local {
			return a.Value
		}
	}
	return ""
}

// removeAttrsWhere deletes all attributes matching the predicate.
func removeAttrsWhere(e *etree.Element, match func(etree.Attr) bool) {
	kept := e.Attr[:0]
	for _, a := range e.Attr {
		if !match(a) {
			kept = append(kept, a)
		}
	}
	e.Attr = kept
}

// isRsidAttr reports whether an attribute is one of the w:rsid* family.
func isRsidAttr(a etree.Attr) bool {
	return strings.HasPrefix(a.Key, "rsid")
}

// isPtAttr reports whether an attribute belongs to the scaffolding
// namespace, including its xmlns declaration.
func isPtAttr(a etree.Attr) bool {
	if a.Space == ptPrefix {
		return true
	}
	return a.Space == "xmlns" && a.Key == ptPrefix
}

// elementText concatenates the character data directly under e.
func elementText(e *etree.Element) string {
	var sb strings.Builder
	for _, tok := range e.Child {
		if cd, ok := tok.(*etree.CharData); ok {
			sb.WriteString(cd.Data)
		}
	}
	return sb.String()
}

// subtreeText concatenates the character data of e's whole subtree in
// document order.
func subtreeText(e *etree.Element) string {
	var sb strings.Builder
	var walk func(*etree.Element)
	walk = func(cur *etree.Element) {
		for _, tok := range cur.Child {
			switch t := tok.(type) {
			case *etree.CharData:
				sb.WriteString(t.Data)
			case *etree.Element:
				walk(t)
			}
		}
	}
	walk(e)
	return sb.String()
}
