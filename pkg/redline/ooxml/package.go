// Package ooxml provides the Office Open XML package container: a ZIP
// archive of parts addressed by forward-slash paths, with relationship and
// content-type lookup and round-trippable XML parts.
package ooxml

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/beevik/etree"
)

// Kind identifies the document family of a package.
type Kind int

const (
	KindUnknown Kind = iota
	KindWordprocessing
	KindSpreadsheet
	KindPresentation
)

func (k Kind) String() string {
	switch k {
	case KindWordprocessing:
		return "wordprocessing"
	case KindSpreadsheet:
		return "spreadsheet"
	case KindPresentation:
		return "presentation"
	default:
		return "unknown"
	}
}

// Relationship represents a relationship in the package.
type Relationship struct {
	ID         string `xml:"Id,attr"`
	Type       string `xml:"Type,attr"`
	Target     string `xml:"Target,attr"`
	TargetMode string `xml:"TargetMode,attr,omitempty"`
}

// Relationships represents the collection of relationships of one part.
type Relationships struct {
	XMLName      xml.Name       `xml:"Relationships"`
	Relationship []Relationship `xml:"Relationship"`
}

// Package is an in-memory OOXML package. All mutation happens in memory;
// Save assembles a fresh ZIP so that a failed comparison never produces a
// partial write.
type Package struct {
	parts    map[string][]byte
	order    []string
	xmlCache map[string]*etree.Document
	dirty    map[string]bool
	kind     Kind
}

// Open reads an OOXML package from raw bytes.
func Open(data []byte) (*Package, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to read zip container: %w", err)
	}

	p := &Package{
		parts:    make(map[string][]byte),
		xmlCache: make(map[string]*etree.Document),
		dirty:    make(map[string]bool),
	}

	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open part %s: %w", f.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read part %s: %w", f.Name, err)
		}
		if _, ok := p.parts[f.Name]; !ok {
			p.order = append(p.order, f.Name)
		}
		p.parts[f.Name] = content
	}

	if _, ok := p.parts["[Content_Types].xml"]; !ok {
		return nil, fmt.Errorf("not a valid OOXML package: missing [Content_Types].xml")
	}
	p.kind = classify(p)
	return p, nil
}

// OpenFile reads an OOXML package from a file path.
func OpenFile(path string) (*Package, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Open(content)
}

func classify(p *Package) Kind {
	switch {
	case p.HasPart("word/document.xml"):
		return KindWordprocessing
	case p.HasPart("xl/workbook.xml"):
		return KindSpreadsheet
	case p.HasPart("ppt/presentation.xml"):
		return KindPresentation
	default:
		return KindUnknown
	}
}

// Kind reports the document family of the package.
func (p *Package) Kind() Kind { return p.kind }

// MainDocumentPart returns the name of the package's main part.
func (p *Package) MainDocumentPart() (string, error) {
	switch p.kind {
	case KindWordprocessing:
		return "word/document.xml", nil
	case KindSpreadsheet:
		return "xl/workbook.xml", nil
	case KindPresentation:
		return "ppt/presentation.xml", nil
	}
	return "", fmt.Errorf("package has no recognized main document part")
}

// HasPart reports whether a part exists.
func (p *Package) HasPart(name string) bool {
	_, ok := p.parts[name]
	return ok
}

// GetPart retrieves the content of a part. The second return value reports
// whether the part exists.
func (p *Package) GetPart(name string) ([]byte, bool) {
	content, ok := p.parts[name]
	return content, ok
}

// PutPart stores a part, replacing any existing content.
func (p *Package) PutPart(name string, content []byte) {
	if _, ok := p.parts[name]; !ok {
		p.order = append(p.order, name)
	}
	p.parts[name] = content
	delete(p.xmlCache, name)
	delete(p.dirty, name)
}

// GetXMLPart parses a part as XML. The parsed document is cached; callers
// that mutate it must write it back with PutXMLPart.
func (p *Package) GetXMLPart(name string) (*etree.Document, error) {
	if doc, ok := p.xmlCache[name]; ok {
		return doc, nil
	}
	content, ok := p.parts[name]
	if !ok {
		return nil, fmt.Errorf("part %s not found", name)
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(content); err != nil {
		return nil, fmt.Errorf("failed to parse part %s: %w", name, err)
	}
	p.xmlCache[name] = doc
	return doc, nil
}

// PutXMLPart stores a parsed XML document as a part. Serialization is
// deferred until Save.
func (p *Package) PutXMLPart(name string, doc *etree.Document) {
	if _, ok := p.parts[name]; !ok {
		p.order = append(p.order, name)
	}
	p.xmlCache[name] = doc
	p.dirty[name] = true
}

// ListParts returns all part names in stable order.
func (p *Package) ListParts() []string {
	parts := make([]string, len(p.order))
	copy(parts, p.order)
	sort.Strings(parts)
	return parts
}

// relsPath derives the relationships part name for a part.
// e.g. "word/document.xml" -> "word/_rels/document.xml.rels".
func relsPath(partName string) string {
	dir := ""
	base := partName
	if idx := strings.LastIndex(partName, "/"); idx != -1 {
		dir = partName[:idx]
		base = partName[idx+1:]
	}
	if dir == "" {
		return fmt.Sprintf("_rels/%s.rels", base)
	}
	return fmt.Sprintf("%s/_rels/%s.rels", dir, base)
}

// Relationships retrieves the relationships of a part. A missing
// relationships part is not an error; it yields an empty list.
func (p *Package) Relationships(partName string) ([]Relationship, error) {
	content, ok := p.parts[relsPath(partName)]
	if !ok {
		return []Relationship{}, nil
	}
	var rels Relationships
	if err := xml.Unmarshal(content, &rels); err != nil {
		return nil, fmt.Errorf("failed to parse relationships of %s: %w", partName, err)
	}
	return rels.Relationship, nil
}

// ResolveRelationship resolves a relationship id on a part to the target
// part name. External-mode targets resolve to their raw target string with
// ok=false for the internal flag.
func (p *Package) ResolveRelationship(partName, rID string) (string, bool, error) {
	rels, err := p.Relationships(partName)
	if err != nil {
		return "", false, err
	}
	for _, rel := range rels {
		if rel.ID != rID {
			continue
		}
		if strings.EqualFold(rel.TargetMode, "External") {
			return rel.Target, false, nil
		}
		return resolveTarget(partName, rel.Target), true, nil
	}
	return "", false, fmt.Errorf("relationship %s not found on part %s", rID, partName)
}

// resolveTarget normalizes a relationship target against the source part's
// directory. Targets beginning with "/" are package-absolute.
func resolveTarget(partName, target string) string {
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(target, "/")
	}
	dir := ""
	if idx := strings.LastIndex(partName, "/"); idx != -1 {
		dir = partName[:idx]
	}
	segs := []string{}
	if dir != "" {
		segs = strings.Split(dir, "/")
	}
	for _, seg := range strings.Split(target, "/") {
		switch seg {
		case "", ".":
		case "..":
			if len(segs) > 0 {
				segs = segs[:len(segs)-1]
			}
		default:
			segs = append(segs, seg)
		}
	}
	return strings.Join(segs, "/")
}

// Save assembles the package into a fresh ZIP archive. Parts replaced
// through PutXMLPart are serialized; all other parts are copied verbatim in
// their original order.
func (p *Package) Save() ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	for _, name := range p.order {
		content := p.parts[name]
		if p.dirty[name] {
			doc := p.xmlCache[name]
			serialized, err := doc.WriteToBytes()
			if err != nil {
				return nil, fmt.Errorf("failed to serialize part %s: %w", name, err)
			}
			content = serialized
		}
		w, err := zw.Create(name)
		if err != nil {
			return nil, fmt.Errorf("failed to create zip entry %s: %w", name, err)
		}
		if _, err := w.Write(content); err != nil {
			return nil, fmt.Errorf("failed to write zip entry %s: %w", name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize zip container: %w", err)
	}
	return buf.Bytes(), nil
}
