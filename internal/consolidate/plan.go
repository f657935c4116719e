package consolidate

import (
	"sort"

	"datasetdedup/internal/models"
)

// Plan assigns a disposition to every scanned file before anything is
// copied. Entries are sorted by path; Removed is sorted by kept path, then
// removed path.
type Plan struct {
	Entries          []*models.FileEntry
	Removed          []models.RemovedEntry
	ExactGroups      []*models.DuplicateGroup
	PerceptualGroups []*models.DuplicateGroup
}

// BuildPlan merges scan results and both grouping passes into dispositions.
//
// Perceptual groups are expected to be built over exact survivors. When an
// exact representative is itself removed by a perceptual group, the members
// it stood for are re-pointed at the perceptual representative and keep
// the exact representative as Via.
func BuildPlan(records []*models.ImageRecord, skipped []models.SkippedFile, exact, perceptual []*models.DuplicateGroup) *Plan {
	byPath := make(map[string]*models.FileEntry, len(records)+len(skipped))

	for _, rec := range records {
		byPath[rec.Path] = &models.FileEntry{
			Path:        rec.Path,
			Disposition: models.DispositionUnique,
			Record:      rec,
		}
	}
	for _, sk := range skipped {
		byPath[sk.Path] = &models.FileEntry{
			Path:        sk.Path,
			Disposition: models.DispositionSkipped,
			Reason:      sk.Reason,
		}
	}

	// exact representative path -> paths it stands for
	standsFor := make(map[string][]string)
	for _, g := range exact {
		markGroup(byPath, g)
		for _, r := range g.Removed {
			standsFor[g.Representative.Path] = append(standsFor[g.Representative.Path], r.Path)
		}
	}

	for _, g := range perceptual {
		markGroup(byPath, g)
		for _, r := range g.Removed {
			for _, p := range standsFor[r.Path] {
				e := byPath[p]
				e.Representative = g.Representative.Path
				e.Via = r.Path
			}
		}
	}

	plan := &Plan{
		Entries:          make([]*models.FileEntry, 0, len(byPath)),
		ExactGroups:      exact,
		PerceptualGroups: perceptual,
	}
	for _, e := range byPath {
		plan.Entries = append(plan.Entries, e)
		if e.Disposition == models.DispositionDuplicate {
			plan.Removed = append(plan.Removed, models.RemovedEntry{
				Removed:        e.Path,
				Representative: e.Representative,
				Kind:           e.Kind,
				Via:            e.Via,
			})
		}
	}

	sort.Slice(plan.Entries, func(i, j int) bool {
		return plan.Entries[i].Path < plan.Entries[j].Path
	})
	sortRemoved(plan.Removed)

	return plan
}

func markGroup(byPath map[string]*models.FileEntry, g *models.DuplicateGroup) {
	rep := byPath[g.Representative.Path]
	rep.Disposition = models.DispositionRepresentative
	rep.Kind = g.Kind
	rep.Representative = ""
	for _, r := range g.Removed {
		e := byPath[r.Path]
		e.Disposition = models.DispositionDuplicate
		e.Kind = g.Kind
		e.Representative = g.Representative.Path
	}
}

func sortRemoved(removed []models.RemovedEntry) {
	sort.Slice(removed, func(i, j int) bool {
		a, b := removed[i], removed[j]
		if a.Representative != b.Representative {
			return a.Representative < b.Representative
		}
		return a.Removed < b.Removed
	})
}

// Kept returns the entries that belong in the consolidated output
func (p *Plan) Kept() []*models.FileEntry {
	var kept []*models.FileEntry
	for _, e := range p.Entries {
		if e.Kept() {
			kept = append(kept, e)
		}
	}
	return kept
}

// Summary counts dispositions and groups
func (p *Plan) Summary() models.RunSummary {
	s := models.RunSummary{
		Scanned:          len(p.Entries),
		ExactGroups:      len(p.ExactGroups),
		PerceptualGroups: len(p.PerceptualGroups),
		Skipped:          make(map[models.SkipReason]int),
	}
	for _, e := range p.Entries {
		if e.Record != nil {
			s.Fingerprinted++
		}
		switch e.Disposition {
		case models.DispositionUnique:
			s.Unique++
		case models.DispositionRepresentative:
			s.Representatives++
		case models.DispositionDuplicate:
			s.Duplicates++
		case models.DispositionSkipped:
			s.Skipped[e.Reason]++
		}
		if e.Kept() && e.OutputName != "" {
			s.Consolidated++
		}
	}
	s.OrphanedGroups = len(p.OrphanedGroups())
	return s
}

// OrphanedGroups returns the groups whose representative ended up skipped,
// so none of their members made it into the output. An exact group whose
// representative was removed by a perceptual group is not orphaned: the
// perceptual representative keeps it.
func (p *Plan) OrphanedGroups() []*models.DuplicateGroup {
	skipped := make(map[string]bool)
	for _, e := range p.Entries {
		if e.Disposition == models.DispositionSkipped {
			skipped[e.Path] = true
		}
	}
	var orphaned []*models.DuplicateGroup
	for _, groups := range [][]*models.DuplicateGroup{p.ExactGroups, p.PerceptualGroups} {
		for _, g := range groups {
			if skipped[g.Representative.Path] {
				orphaned = append(orphaned, g)
			}
		}
	}
	return orphaned
}
