package utils

// IsEqual - Returns true if a and b are equal both in size and contents
func IsEqual(a, b []byte) bool {
	lenA := len(a)
	if lenA != len(b) {
		return false
	}

	for i := 0; i < lenA; i++ {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}

// IsPowerOfTwo - Returns true if n is a power of two (1, 2, 4, 8, ...)
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}
