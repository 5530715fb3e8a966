package redline

import (
	"crypto/sha1"
	"fmt"
	"sort"
	"strings"

	"github.com/beevik/etree"
)

// Formatting reconciliation runs after correlation when formatting
// tracking is enabled: Equal atoms whose normalized run properties differ
// from their older counterpart are retagged FormatChanged.

// Formatting-relevant rPr children. Everything else is ignored when
// deciding whether formatting changed.
var rPrAllowList = map[string]bool{
	"b":         true,
	"bCs":       true,
	"i":         true,
	"iCs":       true,
	"u":         true,
	"sz":        true,
	"szCs":      true,
	"color":     true,
	"rFonts":    true,
	"highlight": true,
	"strike":    true,
	"dstrike":   true,
	"caps":      true,
	"smallCaps": true,
}

// Value-bearing properties retain only their val attribute; rFonts also
// keeps its font-slot attributes.
var rPrValueOnly = map[string]bool{
	"u":         true,
	"color":     true,
	"sz":        true,
	"szCs":      true,
	"rFonts":    true,
	"highlight": true,
}

var rFontsSlots = map[string]bool{
	"ascii":    true,
	"hAnsi":    true,
	"cs":       true,
	"eastAsia": true,
}

// ReconcileFormatting compares the normalized run properties of every
// Equal atom against its paired older atom and retags differing pairs as
// FormatChanged, recording both signatures.
func ReconcileFormatting(atoms []*Atom, settings Settings) {
	if !settings.TrackFormattingChanges {
		return
	}
	for _, a := range atoms {
		if a.Status != StatusEqual || a.Before == nil {
			continue
		}
		a.FormatSig = NormalizedRunPropsSignature(a.runProps)
		a.Before.FormatSig = NormalizedRunPropsSignature(a.Before.runProps)
		if a.FormatSig != a.Before.FormatSig {
			a.Status = StatusFormatChanged
		}
	}
}

// NormalizedRunPropsSignature hashes the formatting-relevant content of an
// rPr element. A nil or empty rPr yields the empty signature.
func NormalizedRunPropsSignature(rPr *etree.Element) string {
	if rPr == nil {
		return ""
	}
	var parts []string
	for _, c := range rPr.ChildElements() {
		if !rPrAllowList[c.Tag] {
			continue
		}
		parts = append(parts, normalizeRunProp(c))
	}
	if len(parts) == 0 {
		return ""
	}
	sort.Strings(parts)
	return fmt.Sprintf("%x", sha1.Sum([]byte(strings.Join(parts, ";"))))
}

func normalizeRunProp(c *etree.Element) string {
	var sb strings.Builder
	sb.WriteString(c.Tag)
	attrs := make([]etree.Attr, 0, len(c.Attr))
	for _, a := range c.Attr {
		if isPtAttr(a) || isRsidAttr(a) || a.Space == "xmlns" {
			continue
		}
		if rPrValueOnly[c.Tag] {
			if c.Tag == "rFonts" {
				if a.Key != "val" && !rFontsSlots[a.Key] {
					continue
				}
			} else if a.Key != "val" {
				continue
			}
		}
		attrs = append(attrs, a)
	}
	sort.Slice(attrs, func(i, j int) bool { return attrs[i].Key < attrs[j].Key })
	for _, a := range attrs {
		sb.WriteString("|" + a.Key + "=" + a.Value)
	}
	return sb.String()
}
