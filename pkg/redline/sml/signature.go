// Package sml compares spreadsheet packages. Worksheets are canonicalized
// into cell signatures with shared strings expanded and styles materialized,
// then matched sheet by sheet with row and column alignment over quick
// signatures.
package sml

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/zeebo/blake3"

	"github.com/benjaminschreck/go-redline/pkg/redline/ooxml"
)

// CellSignature is the canonical form of one cell.
type CellSignature struct {
	Ref     string
	Row     int
	Col     int
	Value   string
	Formula string
	Format  string
}

// RowSignature is a positional quick hash of a row's leading cells, used
// for row alignment.
type RowSignature struct {
	Index int
	Hash  string
}

// ColumnSignature mirrors RowSignature for columns.
type ColumnSignature struct {
	Index int
	Hash  string
}

// WorksheetSignature is the canonical form of one sheet.
type WorksheetSignature struct {
	Name        string
	Cells       map[string]CellSignature
	Rows        []RowSignature
	Cols        []ColumnSignature
	ContentHash string
	MergedCells []string
	Hyperlinks  map[string]string
	Comments    map[string]string
	// DataValidations is keyed by the first corner of the rule's range.
	DataValidations map[string]string
}

// SheetInfo ties a workbook entry to its canonicalized worksheet.
type SheetInfo struct {
	Name      string
	SheetID   string
	Part      string
	Signature *WorksheetSignature
}

// WorkbookSignature is the canonical form of a whole workbook.
type WorkbookSignature struct {
	Sheets []SheetInfo
}

// SignatureOptions controls canonicalization.
type SignatureOptions struct {
	RowSampleSize      int
	WithComments       bool
	WithMergedCells    bool
	WithHyperlinks     bool
	WithDataValidation bool
}

// DefaultSignatureOptions matches the comparison defaults.
func DefaultSignatureOptions() SignatureOptions {
	return SignatureOptions{
		RowSampleSize:      16,
		WithComments:       true,
		WithMergedCells:    true,
		WithHyperlinks:     true,
		WithDataValidation: true,
	}
}

// SignWorkbook canonicalizes every sheet of a spreadsheet package.
func SignWorkbook(pkg *ooxml.Package, opts SignatureOptions) (*WorkbookSignature, error) {
	wbNode, err := parsePart(pkg, "xl/workbook.xml")
	if err != nil {
		return nil, err
	}
	shared, err := loadSharedStrings(pkg)
	if err != nil {
		return nil, err
	}
	styles, err := loadStyles(pkg)
	if err != nil {
		return nil, err
	}

	var wb WorkbookSignature
	for _, sheet := range xmlquery.Find(wbNode, "//sheets/sheet") {
		name := sheet.SelectAttr("name")
		rID := attrLocal(sheet, "id")
		target, internal, err := pkg.ResolveRelationship("xl/workbook.xml", rID)
		if err != nil || !internal {
			return nil, fmt.Errorf("resolving worksheet %q: %w", name, err)
		}
		ws, err := signWorksheet(pkg, target, name, shared, styles, opts)
		if err != nil {
			return nil, err
		}
		wb.Sheets = append(wb.Sheets, SheetInfo{
			Name:      name,
			SheetID:   sheet.SelectAttr("sheetId"),
			Part:      target,
			Signature: ws,
		})
	}
	return &wb, nil
}

// attrLocal finds an attribute by local name regardless of namespace, the
// form relationship ids (r:id) take after namespace resolution.
func attrLocal(n *xmlquery.Node, local string) string {
	for _, a := range n.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
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

func loadSharedStrings(pkg *ooxml.Package) ([]string, error) {
	if !pkg.HasPart("xl/sharedStrings.xml") {
		return nil, nil
	}
	node, err := parsePart(pkg, "xl/sharedStrings.xml")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, si := range xmlquery.Find(node, "//si") {
		var sb strings.Builder
		for _, t := range xmlquery.Find(si, ".//t") {
			sb.WriteString(t.InnerText())
		}
		out = append(out, sb.String())
	}
	return out, nil
}

// styleTable maps a cell's style index to a materialized format signature
// so format comparison is independent of style table layout.
type styleTable struct {
	formats []string
}

func (s *styleTable) signature(idx int) string {
	if s == nil || idx < 0 || idx >= len(s.formats) {
		return ""
	}
	return s.formats[idx]
}

func loadStyles(pkg *ooxml.Package) (*styleTable, error) {
	if !pkg.HasPart("xl/styles.xml") {
		return nil, nil
	}
	node, err := parsePart(pkg, "xl/styles.xml")
	if err != nil {
		return nil, err
	}

	numFmts := map[string]string{}
	for _, nf := range xmlquery.Find(node, "//numFmts/numFmt") {
		numFmts[nf.SelectAttr("numFmtId")] = nf.SelectAttr("formatCode")
	}
	fonts := materializeList(xmlquery.Find(node, "//fonts/font"))
	fills := materializeList(xmlquery.Find(node, "//fills/fill"))
	borders := materializeList(xmlquery.Find(node, "//borders/border"))

	table := &styleTable{}
	for _, xf := range xmlquery.Find(node, "//cellXfs/xf") {
		var parts []string
		if id := xf.SelectAttr("numFmtId"); id != "" && id != "0" {
			code := numFmts[id]
			if code == "" {
				code = "builtin:" + id
			}
			parts = append(parts, "numFmt="+code)
		}
		parts = append(parts,
			indexed("font", xf.SelectAttr("fontId"), fonts),
			indexed("fill", xf.SelectAttr("fillId"), fills),
			indexed("border", xf.SelectAttr("borderId"), borders))
		if a := xmlquery.FindOne(xf, "alignment"); a != nil {
			parts = append(parts, "align="+nodeSignature(a))
		}
		table.formats = append(table.formats, strings.Join(nonEmpty(parts), ";"))
	}
	return table, nil
}

func materializeList(nodes []*xmlquery.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = nodeSignature(n)
	}
	return out
}

func indexed(label, id string, list []string) string {
	idx, err := strconv.Atoi(id)
	if err != nil || idx < 0 || idx >= len(list) || list[idx] == "" {
		return ""
	}
	return label + "=" + list[idx]
}

func nonEmpty(parts []string) []string {
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// nodeSignature renders an element subtree as a canonical string: element
// names with sorted attributes, children in document order.
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

func signWorksheet(pkg *ooxml.Package, part, name string, shared []string, styles *styleTable, opts SignatureOptions) (*WorksheetSignature, error) {
	node, err := parsePart(pkg, part)
	if err != nil {
		return nil, err
	}
	ws := &WorksheetSignature{
		Name:            name,
		Cells:           map[string]CellSignature{},
		Hyperlinks:      map[string]string{},
		Comments:        map[string]string{},
		DataValidations: map[string]string{},
	}
	for _, c := range xmlquery.Find(node, "//sheetData/row/c") {
		sig, ok := signCell(c, shared, styles)
		if !ok {
			continue
		}
		ws.Cells[sig.Ref] = sig
	}
	if opts.WithMergedCells {
		for _, mc := range xmlquery.Find(node, "//mergeCells/mergeCell") {
			ws.MergedCells = append(ws.MergedCells, mc.SelectAttr("ref"))
		}
		sort.Strings(ws.MergedCells)
	}
	if opts.WithHyperlinks {
		for _, hl := range xmlquery.Find(node, "//hyperlinks/hyperlink") {
			target := hl.SelectAttr("location")
			if rID := attrLocal(hl, "id"); rID != "" {
				if t, _, err := pkg.ResolveRelationship(part, rID); err == nil {
					target = t
				}
			}
			ws.Hyperlinks[hl.SelectAttr("ref")] = target
		}
	}
	if opts.WithComments {
		ws.Comments = loadComments(pkg, part)
	}
	if opts.WithDataValidation {
		for _, dv := range xmlquery.Find(node, "//dataValidations/dataValidation") {
			key := validationAnchor(dv.SelectAttr("sqref"))
			if key == "" {
				continue
			}
			ws.DataValidations[key] = validationSignature(dv)
		}
	}
	ws.Rows = rowSignatures(ws.Cells, opts.RowSampleSize)
	ws.Cols = columnSignatures(ws.Cells, opts.RowSampleSize)
	ws.ContentHash = contentHash(ws)
	return ws, nil
}

// signCell canonicalizes one c element. Empty cells without formula or
// style carry no signal and are skipped.
func signCell(c *xmlquery.Node, shared []string, styles *styleTable) (CellSignature, bool) {
	ref := c.SelectAttr("r")
	row, col, err := ParseCellRef(ref)
	if err != nil {
		return CellSignature{}, false
	}
	sig := CellSignature{Ref: ref, Row: row, Col: col}
	if f := xmlquery.FindOne(c, "f"); f != nil {
		sig.Formula = "=" + f.InnerText()
	}
	if s := c.SelectAttr("s"); s != "" {
		if idx, err := strconv.Atoi(s); err == nil {
			sig.Format = styles.signature(idx)
		}
	}
	sig.Value = cellValue(c, shared)
	if sig.Value == "" && sig.Formula == "" && sig.Format == "" {
		return CellSignature{}, false
	}
	return sig, true
}

// cellValue normalizes the cell value by type: shared strings are expanded,
// booleans render TRUE/FALSE and numbers get a canonical float form so
// "100" and "100.0" compare equal.
func cellValue(c *xmlquery.Node, shared []string) string {
	if is := xmlquery.FindOne(c, "is"); is != nil {
		var sb strings.Builder
		for _, t := range xmlquery.Find(is, ".//t") {
			sb.WriteString(t.InnerText())
		}
		return sb.String()
	}
	v := xmlquery.FindOne(c, "v")
	if v == nil {
		return ""
	}
	raw := v.InnerText()
	switch c.SelectAttr("t") {
	case "s":
		idx, err := strconv.Atoi(raw)
		if err != nil || idx < 0 || idx >= len(shared) {
			return raw
		}
		return shared[idx]
	case "b":
		if raw == "1" {
			return "TRUE"
		}
		return "FALSE"
	case "str", "e":
		return raw
	default:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return raw
		}
		return strconv.FormatFloat(f, 'G', 17, 64)
	}
}

// validationAnchor reduces a rule's sqref to the first corner of its first
// range, a stable key even when the range is extended.
func validationAnchor(sqref string) string {
	fields := strings.Fields(sqref)
	if len(fields) == 0 {
		return ""
	}
	corner, _, _ := strings.Cut(fields[0], ":")
	return corner
}

// validationSignature canonicalizes one dataValidation rule: kind, operator
// and range plus both formulas, so any edit to the rule reads as a change.
func validationSignature(dv *xmlquery.Node) string {
	parts := []string{
		"type=" + dv.SelectAttr("type"),
		"operator=" + dv.SelectAttr("operator"),
		"sqref=" + dv.SelectAttr("sqref"),
	}
	if f1 := xmlquery.FindOne(dv, "formula1"); f1 != nil {
		parts = append(parts, "formula1="+f1.InnerText())
	}
	if f2 := xmlquery.FindOne(dv, "formula2"); f2 != nil {
		parts = append(parts, "formula2="+f2.InnerText())
	}
	return strings.Join(parts, ";")
}

func loadComments(pkg *ooxml.Package, sheetPart string) map[string]string {
	out := map[string]string{}
	base := strings.TrimPrefix(sheetPart, "xl/worksheets/")
	commentsPart := "xl/comments" + strings.TrimSuffix(strings.TrimPrefix(base, "sheet"), ".xml") + ".xml"
	if !pkg.HasPart(commentsPart) {
		return out
	}
	node, err := parsePart(pkg, commentsPart)
	if err != nil {
		return out
	}
	for _, c := range xmlquery.Find(node, "//commentList/comment") {
		var sb strings.Builder
		for _, t := range xmlquery.Find(c, ".//t") {
			sb.WriteString(t.InnerText())
		}
		out[c.SelectAttr("ref")] = sb.String()
	}
	return out
}

// rowSignatures hashes the first sampleSize populated cells of each row,
// keyed by column so the signature survives row renumbering.
func rowSignatures(cells map[string]CellSignature, sampleSize int) []RowSignature {
	byRow := map[int][]CellSignature{}
	for _, c := range cells {
		byRow[c.Row] = append(byRow[c.Row], c)
	}
	var out []RowSignature
	for row, rowCells := range byRow {
		sort.Slice(rowCells, func(i, j int) bool { return rowCells[i].Col < rowCells[j].Col })
		if sampleSize > 0 && len(rowCells) > sampleSize {
			rowCells = rowCells[:sampleSize]
		}
		h := blake3.New()
		for _, c := range rowCells {
			fmt.Fprintf(h, "%s|%s|%s\x00", ColumnName(c.Col), c.Value, c.Formula)
		}
		out = append(out, RowSignature{Index: row, Hash: hex.EncodeToString(h.Sum(nil))})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

func columnSignatures(cells map[string]CellSignature, sampleSize int) []ColumnSignature {
	byCol := map[int][]CellSignature{}
	for _, c := range cells {
		byCol[c.Col] = append(byCol[c.Col], c)
	}
	var out []ColumnSignature
	for col, colCells := range byCol {
		sort.Slice(colCells, func(i, j int) bool { return colCells[i].Row < colCells[j].Row })
		if sampleSize > 0 && len(colCells) > sampleSize {
			colCells = colCells[:sampleSize]
		}
		h := blake3.New()
		for _, c := range colCells {
			fmt.Fprintf(h, "%d|%s|%s\x00", c.Row, c.Value, c.Formula)
		}
		out = append(out, ColumnSignature{Index: col, Hash: hex.EncodeToString(h.Sum(nil))})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// contentHash digests the whole sheet, name excluded, so renamed sheets
// with identical content can be recognized.
func contentHash(ws *WorksheetSignature) string {
	refs := make([]string, 0, len(ws.Cells))
	for ref := range ws.Cells {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	h := sha256.New()
	for _, ref := range refs {
		c := ws.Cells[ref]
		fmt.Fprintf(h, "%s=%s|%s|%s\n", ref, c.Value, c.Formula, c.Format)
	}
	for _, mc := range ws.MergedCells {
		fmt.Fprintf(h, "merge:%s\n", mc)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ParseCellRef splits an A1-style reference into 1-based row and column.
func ParseCellRef(ref string) (row, col int, err error) {
	i := 0
	for i < len(ref) && ref[i] >= 'A' && ref[i] <= 'Z' {
		col = col*26 + int(ref[i]-'A') + 1
		i++
	}
	if i == 0 || i == len(ref) {
		return 0, 0, fmt.Errorf("malformed cell reference %q", ref)
	}
	row, err = strconv.Atoi(ref[i:])
	if err != nil || row < 1 {
		return 0, 0, fmt.Errorf("malformed cell reference %q", ref)
	}
	return row, col, nil
}

// ColumnName converts a 1-based column index to its letter form.
func ColumnName(col int) string {
	var sb []byte
	for col > 0 {
		col--
		sb = append([]byte{byte('A' + col%26)}, sb...)
		col /= 26
	}
	return string(sb)
}

// CellRef builds an A1-style reference from 1-based row and column.
func CellRef(row, col int) string {
	return ColumnName(col) + strconv.Itoa(row)
}
