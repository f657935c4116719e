package match

import "datasetdedup/internal/models"

// ExactMatcher finds groups of images with identical content fingerprints
type ExactMatcher struct{}

// NewExactMatcher creates a new ExactMatcher
func NewExactMatcher() *ExactMatcher {
	return &ExactMatcher{}
}

// Group partitions records by content fingerprint
func (m *ExactMatcher) Group(records []*models.ImageRecord) ([]*models.DuplicateGroup, []*models.ImageRecord) {
	if len(records) == 0 {
		return nil, nil
	}

	// Group by content hash, keeping first-seen order of the keys
	byHash := make(map[string][]*models.ImageRecord)
	var keys []string
	for _, rec := range records {
		if _, ok := byHash[rec.ContentHash]; !ok {
			keys = append(keys, rec.ContentHash)
		}
		byHash[rec.ContentHash] = append(byHash[rec.ContentHash], rec)
	}

	clusters := make([][]*models.ImageRecord, 0, len(keys))
	for _, k := range keys {
		clusters = append(clusters, byHash[k])
	}

	return buildGroups(models.KindExact, clusters)
}
