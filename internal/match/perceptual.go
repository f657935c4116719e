package match

import (
	"fmt"

	"datasetdedup/internal/hash"
	"datasetdedup/internal/models"
)

// DefaultThreshold is the default maximum Hamming distance for two images
// to count as perceptual duplicates.
const DefaultThreshold = 5

// ValidateThreshold reports whether t is a usable Hamming threshold
func ValidateThreshold(t int) error {
	if t < 0 || t > maxDistance {
		return fmt.Errorf("perceptual threshold %d out of range [0, %d]", t, maxDistance)
	}
	return nil
}

// PerceptualMatcher finds groups of similar images using perceptual hashing.
//
// Similarity is chained: if a~b and b~c then a, b and c share a group even
// when a and c are further apart than the threshold.
type PerceptualMatcher struct {
	threshold int
}

// NewPerceptualMatcher creates a new PerceptualMatcher. Out-of-range
// thresholds fall back to DefaultThreshold.
func NewPerceptualMatcher(threshold int) *PerceptualMatcher {
	if ValidateThreshold(threshold) != nil {
		threshold = DefaultThreshold
	}
	return &PerceptualMatcher{threshold: threshold}
}

// Group links every pair of records within the threshold and returns the
// connected components. A BK-tree finds neighbours, so the result equals a
// brute-force pairwise comparison without its quadratic cost.
func (m *PerceptualMatcher) Group(records []*models.ImageRecord) ([]*models.DuplicateGroup, []*models.ImageRecord) {
	n := len(records)
	if n == 0 {
		return nil, nil
	}

	uf := newUnionFind(n)
	tree := newBKTree(hash.HammingDistance)

	for i, rec := range records {
		for _, j := range tree.findWithinDistance(rec.PerceptualHash, m.threshold) {
			uf.union(i, j)
		}
		tree.insert(rec.PerceptualHash, i)
	}

	byRoot := make(map[int][]*models.ImageRecord)
	var roots []int
	for i, rec := range records {
		root := uf.find(i)
		if _, ok := byRoot[root]; !ok {
			roots = append(roots, root)
		}
		byRoot[root] = append(byRoot[root], rec)
	}

	clusters := make([][]*models.ImageRecord, 0, len(roots))
	for _, r := range roots {
		clusters = append(clusters, byRoot[r])
	}

	return buildGroups(models.KindPerceptual, clusters)
}

// Threshold returns the configured Hamming threshold
func (m *PerceptualMatcher) Threshold() int {
	return m.threshold
}
