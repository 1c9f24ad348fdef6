package utils

// CycleEnumPtr moves *current by direction, wrapping within 0..max
func CycleEnumPtr[T ~int](current *T, direction int, max T) {
	*current = (*current + T(direction)%(max+1) + max + 1) % (max + 1)
}
