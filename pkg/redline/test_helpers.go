// test_helpers.go contains builders exposed only for testing purposes.
// These should not be used in production code.

package redline

import (
	"archive/zip"
	"bytes"
	"fmt"
	"strings"

	"github.com/beevik/etree"
)

const wmlNamespaces = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main" ` +
	`xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"`

// wrapDocumentXML wraps body content in a minimal document part.
func wrapDocumentXML(bodyContent string) string {
	return `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<w:document ` + wmlNamespaces + `><w:body>` + bodyContent + `</w:body></w:document>`
}

// buildDocxBytes assembles an in-memory DOCX whose document part holds the
// given body content.
func buildDocxBytes(bodyContent string) []byte {
	return buildPackageBytes(map[string]string{
		"word/document.xml": wrapDocumentXML(bodyContent),
	})
}

// buildPackageBytes assembles an in-memory OOXML package from part contents.
// Content types and a root relationships part are always present.
func buildPackageBytes(parts map[string]string) []byte {
	buf := new(bytes.Buffer)
	w := zip.NewWriter(buf)
	ct, _ := w.Create("[Content_Types].xml")
	ct.Write([]byte(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
		`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>` +
		`<Default Extension="xml" ContentType="application/xml"/>` +
		`</Types>`))
	f, _ := w.Create("_rels/.rels")
	f.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>` +
		`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"></Relationships>`))
	for name, content := range parts {
		f, _ := w.Create(name)
		f.Write([]byte(content))
	}
	w.Close()
	return buf.Bytes()
}

// paraXML builds one paragraph with a single run.
func paraXML(text string) string {
	return `<w:p><w:r><w:t xml:space="preserve">` + text + `</w:t></w:r></w:p>`
}

// formattedParaXML builds one paragraph whose run carries the given rPr
// children.
func formattedParaXML(text, rPrContent string) string {
	return `<w:p><w:r><w:rPr>` + rPrContent + `</w:rPr>` +
		`<w:t xml:space="preserve">` + text + `</w:t></w:r></w:p>`
}

// parseBody parses body content into a prepared w:body element, running the
// same preprocessing the comparer applies.
func parseBody(bodyContent string, settings Settings) (*etree.Element, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(wrapDocumentXML(bodyContent)); err != nil {
		return nil, fmt.Errorf("parsing test body: %w", err)
	}
	root := doc.Root()
	body := firstChild(root, "body")
	if body == nil {
		return nil, fmt.Errorf("test document has no body")
	}
	Simplify(root, SimplifyOptions{RemoveRsidAttributes: true})
	AcceptRevisions(root, AcceptAll())
	AssignUnids(root)
	AssignCorrelatedHashes(root, settings)
	return body, nil
}

// atomsFor runs preprocessing and atomization over body content.
func atomsFor(bodyContent string, settings Settings) ([]*Atom, error) {
	body, err := parseBody(bodyContent, settings)
	if err != nil {
		return nil, err
	}
	return Atomize(body, "word/document.xml", settings, nil), nil
}

// testSettings returns deterministic settings for comparisons in tests.
func testSettings() Settings {
	settings := DefaultSettings()
	settings.Author = "tester"
	return settings
}

// atomText renders the text atoms of a slice as a plain string, non-text
// atoms as one placeholder rune each.
func atomText(atoms []*Atom) string {
	var sb strings.Builder
	for _, a := range atoms {
		if a.IsText() {
			sb.WriteRune(a.Kind.Char)
		} else {
			sb.WriteString("¶")
		}
	}
	return sb.String()
}
