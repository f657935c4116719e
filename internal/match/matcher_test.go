package match

import (
	"math/rand"
	"testing"

	"datasetdedup/internal/models"
)

func TestSelectRepresentative(t *testing.T) {
	tests := []struct {
		name         string
		members      []string
		expectedKeep string
	}{
		{"already sorted", []string{"a.jpg", "b.jpg"}, "a.jpg"},
		{"reverse order", []string{"z.jpg", "m.jpg", "b.jpg"}, "b.jpg"},
		{"nested paths", []string{"dir/b.png", "dir/a/x.png"}, "dir/a/x.png"},
		{"case sensitive", []string{"a.jpg", "B.jpg"}, "B.jpg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			group := &models.DuplicateGroup{ID: 1}
			for _, p := range tt.members {
				group.Members = append(group.Members, &models.ImageRecord{Path: p})
			}
			SelectRepresentative(group)
			if group.Representative.Path != tt.expectedKeep {
				t.Errorf("expected to keep %s, got %s", tt.expectedKeep, group.Representative.Path)
			}
			if len(group.Removed) != len(tt.members)-1 {
				t.Errorf("expected %d removed, got %d", len(tt.members)-1, len(group.Removed))
			}
			for _, r := range group.Removed {
				if r == group.Representative {
					t.Error("representative must not be in Removed")
				}
			}
		})
	}
}

func TestSelectRepresentative_Idempotent(t *testing.T) {
	group := &models.DuplicateGroup{Members: []*models.ImageRecord{
		{Path: "c.png"}, {Path: "a.png"}, {Path: "b.png"},
	}}
	SelectRepresentative(group)
	first := group.Representative

	SelectRepresentative(group)
	if group.Representative != first {
		t.Errorf("second selection changed representative: %s -> %s", first.Path, group.Representative.Path)
	}
}

func TestBuildGroups(t *testing.T) {
	records := []*models.ImageRecord{
		{Path: "a.jpg"},
		{Path: "b.jpg"},
		{Path: "c.jpg"},
	}

	clusters := [][]*models.ImageRecord{
		{records[1], records[0]}, // group of 2
		{records[2]},             // single (should be ungrouped)
	}

	groups, ungrouped := buildGroups(models.KindPerceptual, clusters)

	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	if groups[0].Representative.Path != "a.jpg" {
		t.Errorf("expected a.jpg to be kept (smallest path), got %s", groups[0].Representative.Path)
	}
	if groups[0].Kind != models.KindPerceptual {
		t.Errorf("kind = %s, want PERCEPTUAL", groups[0].Kind)
	}
	if len(ungrouped) != 1 || ungrouped[0].Path != "c.jpg" {
		t.Errorf("ungrouped = %v, want [c.jpg]", paths(ungrouped))
	}
}

// Shuffled inputs must produce identical groups, ids and representatives.
func TestMatchers_OrderIndependent(t *testing.T) {
	base := generateTestRecords(200)
	for i, r := range base {
		r.ContentHash = string(rune('a' + i%37))
	}

	matchers := map[string]Matcher{
		"exact":      NewExactMatcher(),
		"perceptual": NewPerceptualMatcher(6),
	}

	for name, m := range matchers {
		t.Run(name, func(t *testing.T) {
			want, wantUngrouped := m.Group(base)

			rng := rand.New(rand.NewSource(42))
			for round := 0; round < 5; round++ {
				shuffled := make([]*models.ImageRecord, len(base))
				copy(shuffled, base)
				rng.Shuffle(len(shuffled), func(i, j int) {
					shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
				})

				got, gotUngrouped := m.Group(shuffled)
				if len(got) != len(want) {
					t.Fatalf("round %d: %d groups, want %d", round, len(got), len(want))
				}
				for i := range want {
					if got[i].ID != want[i].ID || got[i].Representative != want[i].Representative {
						t.Errorf("round %d: group %d differs", round, i)
					}
					if !equalPaths(paths(got[i].Members), paths(want[i].Members)) {
						t.Errorf("round %d: group %d members differ", round, i)
					}
				}
				if !equalPaths(paths(gotUngrouped), paths(wantUngrouped)) {
					t.Errorf("round %d: ungrouped differ", round)
				}
			}
		})
	}
}

func equalPaths(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
