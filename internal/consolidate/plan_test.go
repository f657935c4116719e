package consolidate

import (
	"testing"

	"datasetdedup/internal/match"
	"datasetdedup/internal/models"
)

func rec(path, content string, phash uint64) *models.ImageRecord {
	return &models.ImageRecord{Path: path, ContentHash: content, PerceptualHash: phash}
}

// group runs both grouping passes the way the pipeline does
func group(records []*models.ImageRecord, threshold int) (exact, perceptual []*models.DuplicateGroup) {
	exact, ungrouped := match.NewExactMatcher().Group(records)
	candidates := ungrouped
	for _, g := range exact {
		candidates = append(candidates, g.Representative)
	}
	perceptual, _ = match.NewPerceptualMatcher(threshold).Group(candidates)
	return exact, perceptual
}

func entryByPath(plan *Plan, path string) *models.FileEntry {
	for _, e := range plan.Entries {
		if e.Path == path {
			return e
		}
	}
	return nil
}

func TestBuildPlan_IdenticalBytes(t *testing.T) {
	records := []*models.ImageRecord{
		rec("/in/b.png", "aaaa", 0),
		rec("/in/a.png", "aaaa", 0),
	}
	exact, perceptual := group(records, 5)
	plan := BuildPlan(records, nil, exact, perceptual)

	a, b := entryByPath(plan, "/in/a.png"), entryByPath(plan, "/in/b.png")
	if a.Disposition != models.DispositionRepresentative || a.Kind != models.KindExact {
		t.Errorf("a = %s, want REPRESENTATIVE(EXACT)", a.Label())
	}
	if b.Disposition != models.DispositionDuplicate || b.Kind != models.KindExact || b.Representative != "/in/a.png" {
		t.Errorf("b = %s -> %s, want DUPLICATE(EXACT) -> /in/a.png", b.Label(), b.Representative)
	}
	if len(plan.Removed) != 1 {
		t.Fatalf("expected exactly one removed entry, got %d", len(plan.Removed))
	}
	if r := plan.Removed[0]; r.Removed != "/in/b.png" || r.Representative != "/in/a.png" || r.Kind != models.KindExact {
		t.Errorf("removed entry = %+v", r)
	}
}

func TestBuildPlan_ExactRepresentativeSubsumed(t *testing.T) {
	records := []*models.ImageRecord{
		rec("/in/m1.png", "same", 0b0000),
		rec("/in/m2.png", "same", 0b0000),
		rec("/in/a.png", "other", 0b0001), // perceptually close, sorts first
	}
	exact, perceptual := group(records, 5)
	if len(exact) != 1 || len(perceptual) != 1 {
		t.Fatalf("expected 1 exact and 1 perceptual group, got %d and %d", len(exact), len(perceptual))
	}
	plan := BuildPlan(records, nil, exact, perceptual)

	tests := []struct {
		path string
		disp models.Disposition
		kind models.GroupKind
		rep  string
		via  string
	}{
		{"/in/a.png", models.DispositionRepresentative, models.KindPerceptual, "", ""},
		{"/in/m1.png", models.DispositionDuplicate, models.KindPerceptual, "/in/a.png", ""},
		{"/in/m2.png", models.DispositionDuplicate, models.KindExact, "/in/a.png", "/in/m1.png"},
	}
	for _, tt := range tests {
		e := entryByPath(plan, tt.path)
		if e.Disposition != tt.disp || e.Kind != tt.kind || e.Representative != tt.rep || e.Via != tt.via {
			t.Errorf("%s = %s rep=%q via=%q; want %s(%s) rep=%q via=%q",
				tt.path, e.Label(), e.Representative, e.Via, tt.disp, tt.kind, tt.rep, tt.via)
		}
	}

	// Every removed file points at a kept file
	kept := make(map[string]bool)
	for _, e := range plan.Kept() {
		kept[e.Path] = true
	}
	for _, r := range plan.Removed {
		if !kept[r.Representative] {
			t.Errorf("%s points at %s which is not kept", r.Removed, r.Representative)
		}
	}
}

func TestBuildPlan_EveryFileOneDisposition(t *testing.T) {
	records := []*models.ImageRecord{
		rec("/in/1.png", "h1", 0x00),
		rec("/in/2.png", "h1", 0x00),
		rec("/in/3.png", "h3", 0x01),
		rec("/in/4.png", "h4", 0xFFFFFFFF00000000),
		rec("/in/5.png", "h5", 0x00000000FFFFFFFF),
	}
	skipped := []models.SkippedFile{
		{Path: "/in/bad.png", Reason: models.SkipDecodeError},
		{Path: "/in/notes.txt", Reason: models.SkipUnsupportedFormat},
	}
	exact, perceptual := group(records, 5)
	plan := BuildPlan(records, skipped, exact, perceptual)

	if len(plan.Entries) != len(records)+len(skipped) {
		t.Fatalf("expected %d entries, got %d", len(records)+len(skipped), len(plan.Entries))
	}
	for i := 1; i < len(plan.Entries); i++ {
		if plan.Entries[i-1].Path >= plan.Entries[i].Path {
			t.Errorf("entries not sorted or not unique at %d", i)
		}
	}

	s := plan.Summary()
	if s.Scanned != 7 || s.Fingerprinted != 5 {
		t.Errorf("scanned/fingerprinted = %d/%d, want 7/5", s.Scanned, s.Fingerprinted)
	}
	if s.Unique != 2 || s.Representatives != 1 || s.Duplicates != 2 {
		t.Errorf("unique/representatives/duplicates = %d/%d/%d, want 2/1/2", s.Unique, s.Representatives, s.Duplicates)
	}
	if s.SkippedTotal() != 2 || s.Skipped[models.SkipDecodeError] != 1 {
		t.Errorf("skips = %v", s.Skipped)
	}
	if s.Status() != models.StatusPartial {
		t.Errorf("status = %s, want partial", s.Status())
	}
}

func TestBuildPlan_RemovedSorted(t *testing.T) {
	records := []*models.ImageRecord{
		rec("/in/z2.png", "z", 0),
		rec("/in/z1.png", "z", 0),
		rec("/in/b3.png", "b", 0xFFFF),
		rec("/in/b2.png", "b", 0xFFFF),
		rec("/in/b1.png", "b", 0xFFFF),
	}
	exact, _ := group(records, 0)
	plan := BuildPlan(records, nil, exact, nil)

	want := []string{"/in/b2.png", "/in/b3.png", "/in/z2.png"}
	if len(plan.Removed) != len(want) {
		t.Fatalf("expected %d removed, got %d", len(want), len(plan.Removed))
	}
	for i, w := range want {
		if plan.Removed[i].Removed != w {
			t.Errorf("removed[%d] = %s, want %s", i, plan.Removed[i].Removed, w)
		}
	}
}
