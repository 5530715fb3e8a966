package redline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/beevik/etree"

	"github.com/benjaminschreck/go-redline/pkg/redline/ooxml"
)

// comparableParts are the fixed story parts diffed by a WML comparison, in
// the order their revisions appear in the change list. Header and footer
// parts join them per package. Parts absent from both packages are skipped;
// a part present on only one side is compared against an empty body.
var comparableParts = []string{
	"word/document.xml",
	"word/footnotes.xml",
	"word/endnotes.xml",
}

// storyParts lists every comparable part of the two packages: the fixed
// story parts followed by the union of both sides' header and footer parts
// in name order.
func storyParts(oldPkg, newPkg *ooxml.Package) []string {
	parts := append([]string(nil), comparableParts...)
	seen := make(map[string]bool, len(parts))
	for _, p := range parts {
		seen[p] = true
	}
	for _, pkg := range []*ooxml.Package{oldPkg, newPkg} {
		rels, err := pkg.Relationships("word/document.xml")
		if err != nil {
			continue
		}
		for _, rel := range rels {
			if !strings.HasSuffix(rel.Type, "/header") && !strings.HasSuffix(rel.Type, "/footer") {
				continue
			}
			target, internal, err := pkg.ResolveRelationship("word/document.xml", rel.ID)
			if err != nil || !internal || seen[target] {
				continue
			}
			seen[target] = true
			parts = append(parts, target)
		}
	}
	sort.Strings(parts[len(comparableParts):])
	return parts
}

// Result carries the decorated output package and the extracted changes.
type Result struct {
	Document []byte
	Changes  []Change
}

// Comparer computes tracked-change revisions between two wordprocessing
// documents. A Comparer is safe to reuse sequentially; each Compare call
// owns its own trees and revision-id generator.
type Comparer struct {
	settings Settings
	logger   *Logger
}

// NewComparer validates the settings and returns a ready comparer.
func NewComparer(settings Settings) (*Comparer, error) {
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid comparison settings: %w", err)
	}
	return &Comparer{settings: settings, logger: GetLogger()}, nil
}

// Compare diffs older against newer and returns the newer package rewritten
// with native revision markup plus the structured change list.
func (c *Comparer) Compare(older, newer []byte) (*Result, error) {
	oldPkg, err := ooxml.Open(older)
	if err != nil {
		return nil, NewPackageError("older", err)
	}
	newPkg, err := ooxml.Open(newer)
	if err != nil {
		return nil, NewPackageError("newer", err)
	}
	if oldPkg.Kind() != ooxml.KindWordprocessing || newPkg.Kind() != ooxml.KindWordprocessing {
		return nil, NewInvalidPackageError("word/document.xml",
			fmt.Sprintf("expected wordprocessing packages, got %s and %s", oldPkg.Kind(), newPkg.Kind()))
	}

	gen := NewRevisionIDGenerator(c.settings.StartingRevisionID)
	var changes []Change
	for _, part := range storyParts(oldPkg, newPkg) {
		if !oldPkg.HasPart(part) && !newPkg.HasPart(part) {
			continue
		}
		partChanges, err := c.comparePart(oldPkg, newPkg, part, gen)
		if err != nil {
			return nil, err
		}
		changes = append(changes, partChanges...)
	}

	out, err := newPkg.Save()
	if err != nil {
		return nil, NewPackageError("output", err)
	}
	return &Result{Document: out, Changes: changes}, nil
}

// comparePart runs the full pipeline over one part and writes the decorated
// tree back into the newer package.
func (c *Comparer) comparePart(oldPkg, newPkg *ooxml.Package, part string, gen *RevisionIDGenerator) ([]Change, error) {
	oldBody, err := c.preparedBody(oldPkg, part)
	if err != nil {
		return nil, err
	}
	newDoc, newBody, err := c.preparedTree(newPkg, part)
	if err != nil {
		return nil, err
	}

	oldAtoms := Atomize(oldBody, part, c.settings, &packageImageResolver{pkg: oldPkg, part: part})
	newAtoms := Atomize(newBody, part, c.settings, &packageImageResolver{pkg: newPkg, part: part})
	c.logger.WithFields(Fields{"part": part, "old_atoms": len(oldAtoms), "new_atoms": len(newAtoms)}).
		Debug("atomized part")

	csl := Correlate(BuildGroups(oldAtoms, c.settings), BuildGroups(newAtoms, c.settings), c.settings)
	resolved := ResolveToAtoms(csl)
	ReconcileFormatting(resolved, c.settings)

	sectPr := firstChild(newBody, "sectPr")
	clearChildren(newBody)
	CoalesceInto(newBody, resolved)
	if sectPr != nil {
		newBody.AddChild(sectPr)
	}
	Decorate(newBody, c.settings, gen)

	changes := ExtractChanges(newBody, part)
	if newDoc != nil {
		// unid scaffolding is stamped on the document root, outside the body
		if root := newDoc.Root(); root != nil {
			stripScaffolding(root)
		}
		newPkg.PutXMLPart(part, newDoc)
	}
	return changes, nil
}

// preparedTree parses a part from the package and normalizes it for
// comparison. A part missing from the package yields a synthetic empty body
// so one-sided parts still diff cleanly.
func (c *Comparer) preparedTree(pkg *ooxml.Package, part string) (*etree.Document, *etree.Element, error) {
	if !pkg.HasPart(part) {
		return nil, emptyBody(part), nil
	}
	doc, err := pkg.GetXMLPart(part)
	if err != nil {
		return nil, nil, NewXmlParseError(part, err)
	}
	root := doc.Root()
	if root == nil {
		return nil, nil, NewInvalidPackageError(part, "part has no root element")
	}
	body := contentRoot(root)
	if body == nil {
		return nil, nil, NewInvalidPackageError(part, "part has no content body")
	}
	Simplify(root, SimplifyOptions{RemoveRsidAttributes: true})
	AcceptRevisions(root, AcceptAll())
	AssignUnids(root)
	AssignCorrelatedHashes(root, c.settings)
	return doc, body, nil
}

func (c *Comparer) preparedBody(pkg *ooxml.Package, part string) (*etree.Element, error) {
	_, body, err := c.preparedTree(pkg, part)
	return body, err
}

// contentRoot finds the element whose children the pipeline compares:
// w:body for the main document, the root itself for footnotes/endnotes.
func contentRoot(root *etree.Element) *etree.Element {
	if root.Tag == "document" {
		return firstChild(root, "body")
	}
	return root
}

func emptyBody(part string) *etree.Element {
	tag := "body"
	switch {
	case part == "word/footnotes.xml":
		tag = "footnotes"
	case part == "word/endnotes.xml":
		tag = "endnotes"
	case strings.Contains(part, "header"):
		tag = "hdr"
	case strings.Contains(part, "footer"):
		tag = "ftr"
	}
	e := etree.NewElement("w:" + tag)
	e.CreateAttr("xmlns:"+ptPrefix, ptNamespace)
	return e
}

func clearChildren(e *etree.Element) {
	for _, child := range childElements(e) {
		e.RemoveChild(child)
	}
}

// packageImageResolver resolves r:embed relationship ids against a part's
// relationships so drawings hash by image content.
type packageImageResolver struct {
	pkg  *ooxml.Package
	part string
}

func (r *packageImageResolver) ResolveImage(rID string) ([]byte, error) {
	target, internal, err := r.pkg.ResolveRelationship(r.part, rID)
	if err != nil {
		return nil, err
	}
	if !internal {
		return nil, fmt.Errorf("relationship %s is external", rID)
	}
	data, ok := r.pkg.GetPart(target)
	if !ok {
		return nil, NewMissingPartError(target, r.part)
	}
	return data, nil
}
