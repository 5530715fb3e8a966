package redline

import (
	"testing"
)

func correlateBodies(t *testing.T, oldBody, newBody string, settings Settings) []*CorrelatedSequence {
	t.Helper()
	oldAtoms, err := atomsFor(oldBody, settings)
	if err != nil {
		t.Fatal(err)
	}
	newAtoms, err := atomsFor(newBody, settings)
	if err != nil {
		t.Fatal(err)
	}
	return Correlate(BuildGroups(oldAtoms, settings), BuildGroups(newAtoms, settings), settings)
}

func statusCounts(csl []*CorrelatedSequence) map[Status]int {
	out := map[Status]int{}
	for _, cs := range csl {
		out[cs.Status]++
	}
	return out
}

func resolvedText(csl []*CorrelatedSequence, status Status) string {
	var atoms []*Atom
	for _, a := range ResolveToAtoms(csl) {
		if a.Status == status && a.IsText() {
			atoms = append(atoms, a)
		}
	}
	return atomText(atoms)
}

func TestCorrelate_NoUnknownRemains(t *testing.T) {
	tests := []struct {
		name    string
		oldBody string
		newBody string
	}{
		{"identical", paraXML("same"), paraXML("same")},
		{"disjoint", paraXML("aaa"), paraXML("zzz")},
		{"rewrite", paraXML("the lazy dog sleeps"), paraXML("the active cat runs")},
		{"multi paragraph", paraXML("one") + paraXML("two"), paraXML("one") + paraXML("three")},
		{"empty old", "", paraXML("fresh")},
		{"empty new", paraXML("gone"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			csl := correlateBodies(t, tt.oldBody, tt.newBody, testSettings())
			if n := statusCounts(csl)[StatusUnknown]; n != 0 {
				t.Fatalf("%d Unknown sequences remain", n)
			}
		})
	}
}

func TestCorrelate_IdenticalIsAllEqual(t *testing.T) {
	csl := correlateBodies(t, paraXML("same text"), paraXML("same text"), testSettings())
	counts := statusCounts(csl)
	if counts[StatusDeleted] != 0 || counts[StatusInserted] != 0 {
		t.Fatalf("identical content produced edits: %v", counts)
	}
	if counts[StatusEqual] == 0 {
		t.Fatal("no Equal sequence produced")
	}
}

func TestCorrelate_PhraseReplacementStaysWordLevel(t *testing.T) {
	csl := correlateBodies(t,
		paraXML("over the lazy dog."),
		paraXML("over the active cat."),
		testSettings())
	if got := resolvedText(csl, StatusDeleted); got != "lazy dog" {
		t.Errorf("deleted text = %q, want %q", got, "lazy dog")
	}
	if got := resolvedText(csl, StatusInserted); got != "active cat" {
		t.Errorf("inserted text = %q, want %q", got, "active cat")
	}
}

func TestCorrelate_RewriteStaysWordLevel(t *testing.T) {
	// the phrases share letter runs ("m", "i", "d") but no whole word;
	// the edit must stay one deletion and one insertion, not shredded
	// character fragments
	csl := correlateBodies(t,
		paraXML("marginal will change"),
		paraXML("modified is different"),
		testSettings())
	if got := resolvedText(csl, StatusDeleted); got != "marginal will change" {
		t.Errorf("deleted text = %q, want the whole old phrase", got)
	}
	if got := resolvedText(csl, StatusInserted); got != "modified is different" {
		t.Errorf("inserted text = %q, want the whole new phrase", got)
	}
}

func TestCorrelate_SingleWordRefinesToCharacters(t *testing.T) {
	csl := correlateBodies(t, paraXML("12,34"), paraXML("12,4"), testSettings())
	if got := resolvedText(csl, StatusDeleted); got != "3" {
		t.Errorf("deleted text = %q, want %q", got, "3")
	}
	if got := resolvedText(csl, StatusInserted); got != "" {
		t.Errorf("inserted text = %q, want none", got)
	}
}

func TestCorrelate_WordPrefixTrimmedAtAtomLevel(t *testing.T) {
	csl := correlateBodies(t, paraXML("Test."), paraXML("st."), testSettings())
	if got := resolvedText(csl, StatusDeleted); got != "Te" {
		t.Errorf("deleted text = %q, want %q", got, "Te")
	}
}

func TestCorrelate_AtomCountStability(t *testing.T) {
	oldBody := paraXML("shared start changed middle shared end")
	newBody := paraXML("shared start different core shared end")
	settings := testSettings()
	oldAtoms, err := atomsFor(oldBody, settings)
	if err != nil {
		t.Fatal(err)
	}
	newAtoms, err := atomsFor(newBody, settings)
	if err != nil {
		t.Fatal(err)
	}
	csl := Correlate(BuildGroups(oldAtoms, settings), BuildGroups(newAtoms, settings), settings)
	resolved := ResolveToAtoms(csl)

	equal, deleted, inserted := 0, 0, 0
	for _, a := range resolved {
		switch a.Status {
		case StatusEqual:
			equal++
		case StatusDeleted:
			deleted++
		case StatusInserted:
			inserted++
		default:
			t.Fatalf("atom with non-terminal status %v", a.Status)
		}
	}
	if equal+inserted != len(newAtoms) {
		t.Errorf("equal+inserted = %d, want %d", equal+inserted, len(newAtoms))
	}
	if equal+deleted != len(oldAtoms) {
		t.Errorf("equal+deleted = %d, want %d", equal+deleted, len(oldAtoms))
	}
	if len(resolved) != equal+deleted+inserted {
		t.Errorf("resolved length %d does not match status sum %d",
			len(resolved), equal+deleted+inserted)
	}
}

func TestCorrelate_DetailThresholdRejectsShortAnchors(t *testing.T) {
	settings := testSettings()
	settings.DetailThreshold = 0.9
	// only one word of six is shared; with a high threshold the anchor is
	// rejected and the edit stays a clean replace
	csl := correlateBodies(t,
		paraXML("alpha beta gamma delta"),
		paraXML("omega beta psi chi"),
		settings)
	counts := statusCounts(csl)
	if counts[StatusUnknown] != 0 {
		t.Fatal("Unknown sequences remain")
	}
	if got := resolvedText(csl, StatusDeleted); got != "alpha beta gamma delta" {
		t.Errorf("deleted text = %q, want the whole old phrase", got)
	}
}

func TestCorrelate_DeletedAtomsAdoptSurvivingParagraph(t *testing.T) {
	csl := correlateBodies(t,
		paraXML("keep this remove that"),
		paraXML("keep this"),
		testSettings())
	resolved := ResolveToAtoms(csl)
	var equalPara, deletedPara string
	for _, a := range resolved {
		if !a.IsText() {
			continue
		}
		for _, anc := range a.Ancestors {
			if anc.Name == "p" {
				if a.Status == StatusEqual {
					equalPara = anc.Unid
				}
				if a.Status == StatusDeleted {
					deletedPara = anc.Unid
				}
			}
		}
	}
	if equalPara == "" || deletedPara == "" {
		t.Fatal("expected both equal and deleted text atoms")
	}
	if equalPara != deletedPara {
		t.Error("deleted text did not adopt the surviving paragraph container")
	}
}
