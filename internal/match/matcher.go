package match

import (
	"sort"

	"datasetdedup/internal/models"
)

// Matcher is the interface for duplicate detection strategies.
// Group partitions records into groups of two or more members and the
// records that matched nothing. Output never depends on input order.
type Matcher interface {
	Group(records []*models.ImageRecord) (groups []*models.DuplicateGroup, ungrouped []*models.ImageRecord)
}

// buildGroups turns clusters into DuplicateGroups of the given kind.
// Clusters with fewer than two members are returned as ungrouped.
func buildGroups(kind models.GroupKind, clusters [][]*models.ImageRecord) ([]*models.DuplicateGroup, []*models.ImageRecord) {
	var (
		groups    []*models.DuplicateGroup
		ungrouped []*models.ImageRecord
	)

	for _, members := range clusters {
		if len(members) < 2 {
			ungrouped = append(ungrouped, members...)
			continue
		}
		group := &models.DuplicateGroup{Kind: kind, Members: members}
		SelectRepresentative(group)
		groups = append(groups, group)
	}

	// Sort groups by representative for consistent numbering
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].Representative.Path < groups[j].Representative.Path
	})
	for i, g := range groups {
		g.ID = i + 1
	}

	sortByPath(ungrouped)
	return groups, ungrouped
}

// SelectRepresentative sorts the group members by path and keeps the first.
// Applying it twice yields the same representative.
func SelectRepresentative(group *models.DuplicateGroup) {
	if len(group.Members) == 0 {
		return
	}

	sorted := make([]*models.ImageRecord, len(group.Members))
	copy(sorted, group.Members)
	sortByPath(sorted)

	group.Members = sorted
	group.Representative = sorted[0]
	group.Removed = sorted[1:]
}

func sortByPath(records []*models.ImageRecord) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].Path < records[j].Path
	})
}
