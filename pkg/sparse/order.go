package sparse

// minDegreeOrder computes a minimum-degree elimination order for the
// undirected graph given by adjacency sets. Each elimination step picks
// an uneliminated vertex of smallest current degree and connects its
// remaining neighbors into a clique, which is where fill-in comes from.
// Returns perm (vertex -> elimination position) and its inverse.
func minDegreeOrder(n int, adj []map[int]bool) (perm, invp []int) {
	perm = make([]int, n)
	invp = make([]int, n)
	eliminated := make([]bool, n)

	// Work on a copy so callers keep their adjacency.
	work := make([]map[int]bool, n)
	for i, s := range adj {
		work[i] = make(map[int]bool, len(s))
		for j := range s {
			work[i][j] = true
		}
	}

	for pos := 0; pos < n; pos++ {
		best, bestDeg := -1, n+1
		for v := 0; v < n; v++ {
			if eliminated[v] {
				continue
			}
			if d := len(work[v]); d < bestDeg {
				best, bestDeg = v, d
			}
		}

		eliminated[best] = true
		perm[best] = pos
		invp[pos] = best

		neighbors := make([]int, 0, len(work[best]))
		for u := range work[best] {
			neighbors = append(neighbors, u)
			delete(work[u], best)
		}
		for a := 0; a < len(neighbors); a++ {
			for b := a + 1; b < len(neighbors); b++ {
				work[neighbors[a]][neighbors[b]] = true
				work[neighbors[b]][neighbors[a]] = true
			}
		}
	}
	return perm, invp
}
