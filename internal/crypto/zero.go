package crypto

// Zero overwrites a byte slice in memory with zeros. Used on passwords and
// keys the moment they are no longer needed.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
