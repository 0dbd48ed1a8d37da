package utils

func CloneMap[K comparable, V any](m map[K]V) map[K]V {
	cloneM := make(map[K]V, len(m))
	for k, v := range m {
		cloneM[k] = v
	}
	return cloneM
}

func UniqueSlice[K comparable](a []K) []K {
	m := make(map[K]bool)
	out := a[:0]
	for _, v := range a {
		if m[v] {
			continue
		}
		m[v] = true
		out = append(out, v)
	}
	return out
}
