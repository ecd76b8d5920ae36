// Package cluster implements density-based clustering for embeddings and coordinates.
package cluster

import "SafeMap/internal/domain"

const unassigned = -2

// DBSCAN labels n points. neighbors(i) must return the indices within eps of i,
// excluding i itself; a point is core when it has at least minPts points in its
// neighbourhood counting itself. Clusters are numbered in order of discovery and
// points that belong to no cluster get domain.NoiseCluster.
func DBSCAN(n, minPts int, neighbors func(i int) []int) []int {
	labels := make([]int, n)
	adjacency := make([][]int, n)
	core := make([]bool, n)
	for i := 0; i < n; i++ {
		labels[i] = unassigned
		adjacency[i] = neighbors(i)
		core[i] = len(adjacency[i])+1 >= minPts
	}

	next := 0
	for i := 0; i < n; i++ {
		if labels[i] != unassigned || !core[i] {
			continue
		}

		labels[i] = next
		queue := []int{i}
		for len(queue) > 0 {
			p := queue[0]
			queue = queue[1:]
			for _, q := range adjacency[p] {
				if labels[q] != unassigned {
					continue
				}
				labels[q] = next
				if core[q] {
					queue = append(queue, q)
				}
			}
		}
		next++
	}

	for i := range labels {
		if labels[i] == unassigned {
			labels[i] = domain.NoiseCluster
		}
	}
	return labels
}

// Count returns the number of distinct non-noise labels.
func Count(labels []int) int {
	seen := make(map[int]struct{})
	for _, l := range labels {
		if l != domain.NoiseCluster {
			seen[l] = struct{}{}
		}
	}
	return len(seen)
}
