package playback

// nextIndex returns the index after current in a circular queue of n tracks.
// With shuffle, a uniformly random index other than current is chosen when n > 1.
func nextIndex(current, n int, shuffle bool, intn func(int) int) int {
	if shuffle && n > 1 {
		i := intn(n - 1)
		if i >= current {
			i++
		}
		return i
	}
	return (current + 1) % n
}

// prevIndex returns the index before current in a circular queue of n tracks.
func prevIndex(current, n int) int {
	return (current - 1 + n) % n
}
