package ooxml

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"
)

const contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
  <Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
  <Default Extension="xml" ContentType="application/xml"/>
</Types>`

func buildZip(t *testing.T, parts map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range parts {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("creating zip entry %s: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("writing zip entry %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("closing zip: %v", err)
	}
	return buf.Bytes()
}

func minimalDocx(t *testing.T) []byte {
	return buildZip(t, map[string]string{
		"[Content_Types].xml": contentTypesXML,
		"_rels/.rels": `<?xml version="1.0"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
  <Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
</Relationships>`,
		"word/document.xml": `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body><w:p/></w:body></w:document>`,
		"word/_rels/document.xml.rels": `<?xml version="1.0"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
  <Relationship Id="rId5" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/image" Target="media/image1.png"/>
  <Relationship Id="rId6" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/hyperlink" Target="https://example.com/" TargetMode="External"/>
</Relationships>`,
		"word/media/image1.png": "\x89PNG fake",
	})
}

func TestOpen_Classification(t *testing.T) {
	tests := []struct {
		name string
		main string
		want Kind
	}{
		{"word", "word/document.xml", KindWordprocessing},
		{"excel", "xl/workbook.xml", KindSpreadsheet},
		{"powerpoint", "ppt/presentation.xml", KindPresentation},
		{"unknown", "other/thing.xml", KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := buildZip(t, map[string]string{
				"[Content_Types].xml": contentTypesXML,
				tt.main:               "<root/>",
			})
			pkg, err := Open(data)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			if pkg.Kind() != tt.want {
				t.Errorf("Kind() = %v, want %v", pkg.Kind(), tt.want)
			}
		})
	}
}

func TestOpen_RejectsNonZip(t *testing.T) {
	if _, err := Open([]byte("this is not a zip archive")); err == nil {
		t.Error("expected error for non-zip input")
	}
}

func TestOpen_RejectsMissingContentTypes(t *testing.T) {
	data := buildZip(t, map[string]string{"word/document.xml": "<root/>"})
	if _, err := Open(data); err == nil {
		t.Error("expected error for missing [Content_Types].xml")
	}
}

func TestMainDocumentPart(t *testing.T) {
	pkg, err := Open(minimalDocx(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	main, err := pkg.MainDocumentPart()
	if err != nil {
		t.Fatalf("MainDocumentPart: %v", err)
	}
	if main != "word/document.xml" {
		t.Errorf("main part = %q, want word/document.xml", main)
	}
}

func TestResolveRelationship(t *testing.T) {
	pkg, err := Open(minimalDocx(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	target, internal, err := pkg.ResolveRelationship("word/document.xml", "rId5")
	if err != nil {
		t.Fatalf("ResolveRelationship: %v", err)
	}
	if !internal || target != "word/media/image1.png" {
		t.Errorf("rId5 = %q internal=%v, want word/media/image1.png internal", target, internal)
	}

	target, internal, err = pkg.ResolveRelationship("word/document.xml", "rId6")
	if err != nil {
		t.Fatalf("ResolveRelationship external: %v", err)
	}
	if internal || target != "https://example.com/" {
		t.Errorf("rId6 = %q internal=%v, want external URL", target, internal)
	}

	if _, _, err = pkg.ResolveRelationship("word/document.xml", "rId99"); err == nil {
		t.Error("expected error for unknown relationship id")
	}
}

func TestRelationships_MissingPartIsEmpty(t *testing.T) {
	pkg, err := Open(minimalDocx(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	rels, err := pkg.Relationships("word/media/image1.png")
	if err != nil {
		t.Fatalf("Relationships: %v", err)
	}
	if len(rels) != 0 {
		t.Errorf("got %d relationships, want 0", len(rels))
	}
}

func TestResolveTarget(t *testing.T) {
	tests := []struct {
		part, target, want string
	}{
		{"word/document.xml", "media/image1.png", "word/media/image1.png"},
		{"word/document.xml", "../customXml/item1.xml", "customXml/item1.xml"},
		{"word/document.xml", "/word/styles.xml", "word/styles.xml"},
		{"workbook.xml", "sheet1.xml", "sheet1.xml"},
		{"xl/worksheets/sheet1.xml", "../sharedStrings.xml", "xl/sharedStrings.xml"},
	}
	for _, tt := range tests {
		if got := resolveTarget(tt.part, tt.target); got != tt.want {
			t.Errorf("resolveTarget(%q, %q) = %q, want %q", tt.part, tt.target, got, tt.want)
		}
	}
}

func TestSave_RoundTrip(t *testing.T) {
	pkg, err := Open(minimalDocx(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	pkg.PutPart("word/extra.xml", []byte("<extra/>"))

	data, err := pkg.Save()
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	reopened, err := Open(data)
	if err != nil {
		t.Fatalf("reopening saved package: %v", err)
	}
	if reopened.Kind() != KindWordprocessing {
		t.Errorf("reopened kind = %v", reopened.Kind())
	}
	if content, ok := reopened.GetPart("word/extra.xml"); !ok || string(content) != "<extra/>" {
		t.Errorf("added part lost: %q ok=%v", content, ok)
	}
	if content, ok := reopened.GetPart("word/media/image1.png"); !ok || !strings.HasPrefix(string(content), "\x89PNG") {
		t.Error("binary part not preserved verbatim")
	}
}

func TestSave_SerializesDirtyXMLParts(t *testing.T) {
	pkg, err := Open(minimalDocx(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	doc, err := pkg.GetXMLPart("word/document.xml")
	if err != nil {
		t.Fatalf("GetXMLPart: %v", err)
	}
	body := doc.Root().SelectElement("w:body")
	if body == nil {
		t.Fatal("no body in parsed part")
	}
	body.CreateElement("w:sectPr")
	pkg.PutXMLPart("word/document.xml", doc)

	data, err := pkg.Save()
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	reopened, err := Open(data)
	if err != nil {
		t.Fatalf("reopening: %v", err)
	}
	content, _ := reopened.GetPart("word/document.xml")
	if !strings.Contains(string(content), "<w:sectPr/>") {
		t.Errorf("mutation not serialized:\n%s", content)
	}
}

func TestGetXMLPart_MissingPart(t *testing.T) {
	pkg, err := Open(minimalDocx(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := pkg.GetXMLPart("word/nope.xml"); err == nil {
		t.Error("expected error for missing part")
	}
}

func TestRelsPath(t *testing.T) {
	tests := []struct{ part, want string }{
		{"word/document.xml", "word/_rels/document.xml.rels"},
		{"[Content_Types].xml", "_rels/[Content_Types].xml.rels"},
		{"xl/worksheets/sheet1.xml", "xl/worksheets/_rels/sheet1.xml.rels"},
	}
	for _, tt := range tests {
		if got := relsPath(tt.part); got != tt.want {
			t.Errorf("relsPath(%q) = %q, want %q", tt.part, got, tt.want)
		}
	}
}
