/*
package slice maps unordered pairs of particle subsets onto a dense
index space.

Every pair of subsets {i, j}, including a subset paired with itself,
owns one interaction channel ("slice"). Slices are numbered so that
the pair with the larger member J and smaller member I gets index
J*(J+1)/2 + I, packing the lower triangle of the subset matrix row by
row. The map is a bijection between unordered pairs of [0, S) and
[0, S*(S+1)/2).
*/
package slice

// Count returns the number of slices for the given number of subsets.
func Count(subsets int) int {
	return subsets * (subsets + 1) / 2
}

// Index returns the slice index of the unordered pair {i, j}.
func Index(i, j int) int {
	if i > j {
		i, j = j, i
	}
	return j*(j+1)/2 + i
}

// Diagonal returns the slice index of the pair {s, s}.
func Diagonal(s int) int {
	return s * (s + 3) / 2
}

// Unpack returns the subset pair (i, j) of a slice index, with i <= j.
func Unpack(idx int) (i, j int) {
	j = 0
	for Count(j+1) <= idx {
		j++
	}
	return idx - j*(j+1)/2, j
}
