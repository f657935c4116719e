package match

// unionFind tracks connected components over record indices
type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	parent := make([]int, n)
	rank := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	return &unionFind{parent: parent, rank: rank}
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]] // path halving
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(x, y int) {
	px, py := uf.find(x), uf.find(y)
	if px == py {
		return
	}
	// Union by rank
	if uf.rank[px] < uf.rank[py] {
		px, py = py, px
	}
	uf.parent[py] = px
	if uf.rank[px] == uf.rank[py] {
		uf.rank[px]++
	}
}

// maxDistance is the largest Hamming distance between two 64-bit hashes
const maxDistance = 64

// bkTree indexes 64-bit fingerprints under a metric distance so that all
// entries within a radius can be found without comparing every pair.
type bkTree struct {
	root     *bkNode
	distance func(a, b uint64) int
	count    int
}

type bkNode struct {
	hash     uint64
	index    int
	children [maxDistance + 1]*bkNode // indexed by distance to this node
}

func newBKTree(distanceFn func(a, b uint64) int) *bkTree {
	return &bkTree{distance: distanceFn}
}

func (t *bkTree) insert(hash uint64, index int) {
	node := &bkNode{hash: hash, index: index}
	t.count++

	if t.root == nil {
		t.root = node
		return
	}

	current := t.root
	for {
		dist := t.distance(hash, current.hash)
		child := current.children[dist]
		if child == nil {
			current.children[dist] = node
			return
		}
		current = child
	}
}

// findWithinDistance returns the indices of all entries whose distance to
// hash is at most threshold.
func (t *bkTree) findWithinDistance(hash uint64, threshold int) []int {
	if t.root == nil {
		return nil
	}

	var results []int
	stack := []*bkNode{t.root}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		dist := t.distance(hash, node.hash)
		if dist <= threshold {
			results = append(results, node.index)
		}

		// Triangle inequality: only children at distance
		// [dist-threshold, dist+threshold] can hold matches.
		lo := max(dist-threshold, 0)
		hi := min(dist+threshold, maxDistance)
		for d := lo; d <= hi; d++ {
			if child := node.children[d]; child != nil {
				stack = append(stack, child)
			}
		}
	}
	return results
}

func (t *bkTree) size() int {
	return t.count
}
