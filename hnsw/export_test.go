package hnsw

// Unlinked counts nodes without any level-0 neighbor.
func (h *Index) Unlinked() int {
	count := 0
	for _, n := range h.nodes {
		if n != nil && len(n.links[0]) == 0 {
			count++
		}
	}
	return count
}
