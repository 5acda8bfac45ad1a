package game

// bestGrouping returns the largest number of clips that agree with the
// truth under any one-to-one relabelling of zones. counts[z][c] is the
// number of clips the player put in zone z whose true zone is c.
func bestGrouping(counts [][]int) int {
	n := len(counts)
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}

	best := 0
	var permute func(k int)
	permute = func(k int) {
		if k == n {
			total := 0
			for z, c := range perm {
				total += counts[z][c]
			}
			best = max(best, total)
			return
		}
		for i := k; i < n; i++ {
			perm[k], perm[i] = perm[i], perm[k]
			permute(k + 1)
			perm[k], perm[i] = perm[i], perm[k]
		}
	}
	permute(0)
	return best
}
