// Package pml compares presentation packages. Slides and shapes are
// canonicalized into signatures, slides are matched by position and layout
// with content-hash and title fallbacks, and shapes within a matched slide
// pair are matched by placeholder identity or by name and kind.
package pml

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/benjaminschreck/go-redline/pkg/redline/ooxml"
)

// ShapeKind classifies a slide shape.
type ShapeKind int

const (
	ShapeText ShapeKind = iota
	ShapePicture
	ShapeTable
	ShapeChart
	ShapeConnector
	ShapeOther
)

func (k ShapeKind) String() string {
	switch k {
	case ShapeText:
		return "text"
	case ShapePicture:
		return "picture"
	case ShapeTable:
		return "table"
	case ShapeChart:
		return "chart"
	case ShapeConnector:
		return "connector"
	}
	return "other"
}

// ShapeSignature is the canonical form of one shape.
type ShapeSignature struct {
	Name             string
	Kind             ShapeKind
	PlaceholderType  string
	PlaceholderIndex string
	ZOrder           int
	X, Y             int64
	Width, Height    int64
	Rotation         int64
	Text             string
	TextFormat       string
	ImageHash        string
	GraphicHash      string
	ContentHash      string
}

// placeholderKey identifies a placeholder shape across documents.
func (s ShapeSignature) placeholderKey() string {
	if s.PlaceholderType == "" && s.PlaceholderIndex == "" {
		return ""
	}
	return s.PlaceholderType + "#" + s.PlaceholderIndex
}

// SlideSignature is the canonical form of one slide.
type SlideSignature struct {
	Index       int
	Part        string
	Layout      string
	Title       string
	Background  string
	Notes       string
	Shapes      []ShapeSignature
	ContentHash string
}

// PresentationSignature is the canonical form of a whole deck.
type PresentationSignature struct {
	SlideWidth  int64
	SlideHeight int64
	ThemeHash   string
	Slides      []SlideSignature
}

// SignPresentation canonicalizes every slide of a presentation package in
// deck order.
func SignPresentation(pkg *ooxml.Package) (*PresentationSignature, error) {
	node, err := parsePart(pkg, "ppt/presentation.xml")
	if err != nil {
		return nil, err
	}
	var pres PresentationSignature
	if sz := findOneLocal(node, "//sldSz"); sz != nil {
		pres.SlideWidth, _ = strconv.ParseInt(sz.SelectAttr("cx"), 10, 64)
		pres.SlideHeight, _ = strconv.ParseInt(sz.SelectAttr("cy"), 10, 64)
	}
	pres.ThemeHash = themeHash(pkg)
	for i, sldID := range findLocal(node, "//sldIdLst/sldId") {
		// sldId carries both a plain numeric id and the namespaced r:id;
		// only the namespaced one resolves to a part
		rID := ""
		for _, a := range sldID.Attr {
			if a.Name.Local == "id" && a.Name.Space != "" {
				rID = a.Value
			}
		}
		target, internal, err := pkg.ResolveRelationship("ppt/presentation.xml", rID)
		if err != nil || !internal {
			return nil, fmt.Errorf("resolving slide %d: %w", i+1, err)
		}
		slide, err := signSlide(pkg, target, i)
		if err != nil {
			return nil, err
		}
		pres.Slides = append(pres.Slides, *slide)
	}
	return &pres, nil
}

func parsePart(pkg *ooxml.Package, name string) (*xmlquery.Node, error) {
	data, ok := pkg.GetPart(name)
	if !ok {
		return nil, fmt.Errorf("part %s not found", name)
	}
	node, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", name, err)
	}
	return node, nil
}

func attrLocal(n *xmlquery.Node, local string) string {
	for _, a := range n.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// localPath rewrites a slash-separated element path into local-name()
// steps. PresentationML binds its elements to the p: and a: prefixes, and
// xmlquery name tests are prefix-sensitive, so queries match by local name
// the same way attrLocal does for attributes.
func localPath(path string) string {
	axis := ""
	switch {
	case strings.HasPrefix(path, ".//"):
		axis, path = ".//", path[len(".//"):]
	case strings.HasPrefix(path, "//"):
		axis, path = "//", path[len("//"):]
	}
	steps := strings.Split(path, "/")
	for i, s := range steps {
		steps[i] = "*[local-name()='" + s + "']"
	}
	return axis + strings.Join(steps, "/")
}

func findLocal(n *xmlquery.Node, path string) []*xmlquery.Node {
	return xmlquery.Find(n, localPath(path))
}

func findOneLocal(n *xmlquery.Node, path string) *xmlquery.Node {
	return xmlquery.FindOne(n, localPath(path))
}

// themeHash digests every theme part of the package so a swapped or edited
// theme is detectable at deck level.
func themeHash(pkg *ooxml.Package) string {
	var names []string
	for _, name := range pkg.ListParts() {
		if strings.HasPrefix(name, "ppt/theme/") {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return ""
	}
	sort.Strings(names)
	h := sha256.New()
	for _, name := range names {
		data, _ := pkg.GetPart(name)
		h.Write(data)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func signSlide(pkg *ooxml.Package, part string, index int) (*SlideSignature, error) {
	node, err := parsePart(pkg, part)
	if err != nil {
		return nil, err
	}
	slide := &SlideSignature{
		Index:  index,
		Part:   part,
		Layout: slideLayout(pkg, part),
		Notes:  slideNotes(pkg, part),
	}
	if bg := findOneLocal(node, "//cSld/bg"); bg != nil {
		slide.Background = nodeSignature(bg)
	}
	if spTree := findOneLocal(node, "//cSld/spTree"); spTree != nil {
		z := 0
		// group shapes contribute their members, so edits inside a
		// grouped shape stay visible
		var addShapes func(n *xmlquery.Node)
		addShapes = func(n *xmlquery.Node) {
			for child := n.FirstChild; child != nil; child = child.NextSibling {
				if child.Type != xmlquery.ElementNode {
					continue
				}
				if child.Data == "grpSp" {
					addShapes(child)
					continue
				}
				shape, ok := signShape(pkg, part, child, z)
				if !ok {
					continue
				}
				slide.Shapes = append(slide.Shapes, shape)
				z++
			}
		}
		addShapes(spTree)
	}
	for _, s := range slide.Shapes {
		if s.PlaceholderType == "title" || s.PlaceholderType == "ctrTitle" {
			slide.Title = s.Text
			break
		}
	}
	slide.ContentHash = slideContentHash(slide)
	return slide, nil
}

// slideLayout resolves the slide's layout relationship to a part name, the
// stable identity of "what kind of slide this is".
func slideLayout(pkg *ooxml.Package, slidePart string) string {
	rels, err := pkg.Relationships(slidePart)
	if err != nil {
		return ""
	}
	for _, rel := range rels {
		if strings.HasSuffix(rel.Type, "/slideLayout") {
			target, _, err := pkg.ResolveRelationship(slidePart, rel.ID)
			if err == nil {
				return target
			}
		}
	}
	return ""
}

// slideNotes extracts the notes text through the notesSlide relationship.
func slideNotes(pkg *ooxml.Package, slidePart string) string {
	rels, err := pkg.Relationships(slidePart)
	if err != nil {
		return ""
	}
	for _, rel := range rels {
		if !strings.HasSuffix(rel.Type, "/notesSlide") {
			continue
		}
		target, internal, err := pkg.ResolveRelationship(slidePart, rel.ID)
		if err != nil || !internal {
			return ""
		}
		node, err := parsePart(pkg, target)
		if err != nil {
			return ""
		}
		var sb strings.Builder
		for _, t := range findLocal(node, "//t") {
			sb.WriteString(t.InnerText())
			sb.WriteString("\n")
		}
		return strings.TrimRight(sb.String(), "\n")
	}
	return ""
}

func signShape(pkg *ooxml.Package, slidePart string, node *xmlquery.Node, zOrder int) (ShapeSignature, bool) {
	var shape ShapeSignature
	shape.ZOrder = zOrder
	switch node.Data {
	case "sp":
		shape.Kind = ShapeText
	case "pic":
		shape.Kind = ShapePicture
	case "graphicFrame":
		shape.Kind = graphicFrameKind(node)
	case "cxnSp":
		shape.Kind = ShapeConnector
	default:
		return shape, false
	}

	if cNvPr := findOneLocal(node, ".//cNvPr"); cNvPr != nil {
		shape.Name = cNvPr.SelectAttr("name")
	}
	if ph := findOneLocal(node, ".//nvPr/ph"); ph != nil {
		shape.PlaceholderType = ph.SelectAttr("type")
		shape.PlaceholderIndex = ph.SelectAttr("idx")
		if shape.PlaceholderType == "" {
			shape.PlaceholderType = "body"
		}
	}
	if xfrm := findOneLocal(node, ".//xfrm"); xfrm != nil {
		if rot := xfrm.SelectAttr("rot"); rot != "" {
			shape.Rotation, _ = strconv.ParseInt(rot, 10, 64)
		}
		if off := findOneLocal(xfrm, "off"); off != nil {
			shape.X, _ = strconv.ParseInt(off.SelectAttr("x"), 10, 64)
			shape.Y, _ = strconv.ParseInt(off.SelectAttr("y"), 10, 64)
		}
		if ext := findOneLocal(xfrm, "ext"); ext != nil {
			shape.Width, _ = strconv.ParseInt(ext.SelectAttr("cx"), 10, 64)
			shape.Height, _ = strconv.ParseInt(ext.SelectAttr("cy"), 10, 64)
		}
	}
	shape.Text, shape.TextFormat = shapeText(node)
	switch shape.Kind {
	case ShapePicture:
		shape.ImageHash = imageHash(pkg, slidePart, node)
	case ShapeTable, ShapeChart:
		shape.GraphicHash = graphicHash(pkg, slidePart, node)
	}
	shape.ContentHash = shapeContentHash(shape)
	return shape, true
}

func graphicFrameKind(node *xmlquery.Node) ShapeKind {
	if findOneLocal(node, ".//tbl") != nil {
		return ShapeTable
	}
	if findOneLocal(node, ".//chart") != nil {
		return ShapeChart
	}
	return ShapeOther
}

// shapeText collects paragraph text and a signature of the run properties
// seen along the way, so wording and formatting changes are separable.
func shapeText(node *xmlquery.Node) (string, string) {
	txBody := findOneLocal(node, ".//txBody")
	if txBody == nil {
		return "", ""
	}
	var text strings.Builder
	var format []string
	for _, p := range findLocal(txBody, "p") {
		if text.Len() > 0 {
			text.WriteString("\n")
		}
		for _, r := range findLocal(p, "r") {
			if t := findOneLocal(r, "t"); t != nil {
				text.WriteString(t.InnerText())
			}
			if rPr := findOneLocal(r, "rPr"); rPr != nil {
				format = append(format, nodeSignature(rPr))
			}
		}
	}
	h := sha256.Sum256([]byte(strings.Join(format, "\x00")))
	return text.String(), hex.EncodeToString(h[:])
}

// imageHash digests the embedded image bytes so moving or renaming a
// picture does not read as a replacement.
func imageHash(pkg *ooxml.Package, slidePart string, node *xmlquery.Node) string {
	blip := findOneLocal(node, ".//blip")
	if blip == nil {
		return ""
	}
	rID := attrLocal(blip, "embed")
	if rID == "" {
		return ""
	}
	target, internal, err := pkg.ResolveRelationship(slidePart, rID)
	if err != nil || !internal {
		return ""
	}
	data, ok := pkg.GetPart(target)
	if !ok {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// graphicHash digests a table's XML or a referenced chart part.
func graphicHash(pkg *ooxml.Package, slidePart string, node *xmlquery.Node) string {
	if tbl := findOneLocal(node, ".//tbl"); tbl != nil {
		sum := sha256.Sum256([]byte(nodeSignature(tbl)))
		return hex.EncodeToString(sum[:])
	}
	chart := findOneLocal(node, ".//chart")
	if chart == nil {
		return ""
	}
	rID := attrLocal(chart, "id")
	if rID == "" {
		return ""
	}
	target, internal, err := pkg.ResolveRelationship(slidePart, rID)
	if err != nil || !internal {
		return ""
	}
	data, ok := pkg.GetPart(target)
	if !ok {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func shapeContentHash(s ShapeSignature) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s", s.Kind, s.Text, s.TextFormat, s.ImageHash, s.GraphicHash)
	return hex.EncodeToString(h.Sum(nil))
}

func slideContentHash(slide *SlideSignature) string {
	hashes := make([]string, len(slide.Shapes))
	for i, s := range slide.Shapes {
		hashes[i] = s.ContentHash
	}
	sort.Strings(hashes)
	h := sha256.New()
	for _, hash := range hashes {
		fmt.Fprintln(h, hash)
	}
	fmt.Fprintln(h, slide.Background)
	return hex.EncodeToString(h.Sum(nil))
}

// nodeSignature renders an element subtree canonically, attributes sorted.
func nodeSignature(n *xmlquery.Node) string {
	var sb strings.Builder
	var render func(node *xmlquery.Node)
	render = func(node *xmlquery.Node) {
		if node.Type != xmlquery.ElementNode {
			return
		}
		sb.WriteString(node.Data)
		attrs := make([]string, 0, len(node.Attr))
		for _, a := range node.Attr {
			attrs = append(attrs, a.Name.Local+"="+a.Value)
		}
		sort.Strings(attrs)
		if len(attrs) > 0 {
			sb.WriteString("[" + strings.Join(attrs, ",") + "]")
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			if child.Type == xmlquery.ElementNode {
				sb.WriteString("(")
				render(child)
				sb.WriteString(")")
			}
		}
	}
	render(n)
	return sb.String()
}
