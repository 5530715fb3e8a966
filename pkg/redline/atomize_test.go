package redline

import (
	"testing"
)

func TestAtomize_TextBecomesOneAtomPerCharacter(t *testing.T) {
	atoms, err := atomsFor(paraXML("Hi!"), testSettings())
	if err != nil {
		t.Fatal(err)
	}
	// three characters plus the paragraph mark
	if len(atoms) != 4 {
		t.Fatalf("got %d atoms, want 4: %v", len(atoms), atoms)
	}
	want := []rune{'H', 'i', '!'}
	for i, ch := range want {
		if atoms[i].Kind.Tag != KindText || atoms[i].Kind.Char != ch {
			t.Errorf("atom %d = %v, want Text(%q)", i, atoms[i], string(ch))
		}
	}
	if atoms[3].Kind.Tag != KindParagraphMark {
		t.Errorf("last atom = %v, want ParagraphMark", atoms[3])
	}
}

func TestAtomize_AncestorChains(t *testing.T) {
	body := `<w:tbl><w:tr><w:tc><w:p><w:r><w:t>x</w:t></w:r></w:p></w:tc></w:tr></w:tbl>`
	atoms, err := atomsFor(body, testSettings())
	if err != nil {
		t.Fatal(err)
	}
	if len(atoms) != 2 {
		t.Fatalf("got %d atoms, want 2", len(atoms))
	}
	var names []string
	for _, anc := range atoms[0].Ancestors {
		names = append(names, anc.Name)
	}
	want := []string{"tbl", "tr", "tc", "p", "r"}
	if len(names) != len(want) {
		t.Fatalf("chain = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("chain = %v, want %v", names, want)
		}
		if atoms[0].Ancestors[i].Unid == "" {
			t.Errorf("ancestor %s has no unid", names[i])
		}
	}
	// the paragraph mark's chain stops at the paragraph
	mark := atoms[1]
	if mark.Kind.Tag != KindParagraphMark {
		t.Fatalf("second atom = %v, want ParagraphMark", mark)
	}
	if last := mark.Ancestors[len(mark.Ancestors)-1]; last.Name != "p" {
		t.Errorf("mark chain ends at %s, want p", last.Name)
	}
}

func TestAtomize_NonTextKinds(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantKind KindTag
	}{
		{
			name:     "line break",
			body:     `<w:p><w:r><w:br/></w:r></w:p>`,
			wantKind: KindBreak,
		},
		{
			name:     "tab",
			body:     `<w:p><w:r><w:tab/></w:r></w:p>`,
			wantKind: KindTab,
		},
		{
			name:     "footnote reference",
			body:     `<w:p><w:r><w:footnoteReference w:id="2"/></w:r></w:p>`,
			wantKind: KindFootnoteRef,
		},
		{
			name:     "symbol",
			body:     `<w:p><w:r><w:sym w:font="Wingdings" w:char="F0FC"/></w:r></w:p>`,
			wantKind: KindSymbol,
		},
		{
			name:     "field character",
			body:     `<w:p><w:r><w:fldChar w:fldCharType="begin"/></w:r></w:p>`,
			wantKind: KindField,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			atoms, err := atomsFor(tt.body, testSettings())
			if err != nil {
				t.Fatal(err)
			}
			if len(atoms) != 2 {
				t.Fatalf("got %d atoms, want 2: %v", len(atoms), atoms)
			}
			if atoms[0].Kind.Tag != tt.wantKind {
				t.Errorf("atom kind = %v, want %v", atoms[0].Kind.Tag, tt.wantKind)
			}
		})
	}
}

func TestAtomize_BookmarksDropped(t *testing.T) {
	body := `<w:p><w:bookmarkStart w:id="0" w:name="mark"/>` +
		`<w:r><w:t>ab</w:t></w:r><w:bookmarkEnd w:id="0"/></w:p>`
	atoms, err := atomsFor(body, testSettings())
	if err != nil {
		t.Fatal(err)
	}
	if len(atoms) != 3 {
		t.Fatalf("got %d atoms, want 3 (2 chars + mark): %v", len(atoms), atoms)
	}
}

func TestAtomize_CaseFolding(t *testing.T) {
	settings := testSettings()
	settings.CaseInsensitive = true
	lower, err := atomsFor(paraXML("abc"), settings)
	if err != nil {
		t.Fatal(err)
	}
	upper, err := atomsFor(paraXML("ABC"), settings)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if lower[i].Hash != upper[i].Hash {
			t.Errorf("atom %d hashes differ under case folding", i)
		}
	}
}

func TestAtomize_DrawingHashStableAcrossStructure(t *testing.T) {
	// without a resolver identity falls back to scrubbed structure hashing;
	// rsid noise must not change the hash
	d1 := `<w:p><w:r><w:drawing><wp:inline><a:graphic><pic:pic><a:blip r:embed="rId4"/></pic:pic></a:graphic></wp:inline></w:drawing></w:r></w:p>`
	d2 := `<w:p><w:r><w:drawing><wp:inline><a:graphic><pic:pic><a:blip r:embed="rId9"/></pic:pic></a:graphic></wp:inline></w:drawing></w:r></w:p>`
	a1, err := atomsFor(d1, testSettings())
	if err != nil {
		t.Fatal(err)
	}
	a2, err := atomsFor(d2, testSettings())
	if err != nil {
		t.Fatal(err)
	}
	if a1[0].Kind.Tag != KindDrawing || a2[0].Kind.Tag != KindDrawing {
		t.Fatalf("expected drawing atoms, got %v and %v", a1[0], a2[0])
	}
	if a1[0].Hash != a2[0].Hash {
		t.Error("structure hashes differ although only the relationship id changed")
	}
}
