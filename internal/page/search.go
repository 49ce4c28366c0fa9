package page

import "bytes"

// binarySearch finds the index of target in a sorted slice of keys.
//
// Return: int - index of key if found, else the insert position; bool - found
func binarySearch(n int, keyAt func(i int) []byte, target []byte) (int, bool) {
	left, right := 0, n-1
	for left <= right {
		mid := int(uint(left+right) >> 1)
		cmp := bytes.Compare(keyAt(mid), target)
		if cmp == 0 {
			return mid, true
		} else if cmp < 0 {
			left = mid + 1
		} else {
			right = mid - 1
		}
	}
	return left, false
}

// countLessOrEqual returns how many keys are <= target. For branch routing
// this is directly the position of the child to follow: 0 when target sorts
// before every separator, len(keys) when it is >= the last one.
func countLessOrEqual(keys [][]byte, target []byte) int {
	left, right := 0, len(keys)-1
	pos := -1 // last index with keys[i] <= target
	for left <= right {
		mid := int(uint(left+right) >> 1)
		if bytes.Compare(keys[mid], target) <= 0 {
			pos = mid
			left = mid + 1
		} else {
			right = mid - 1
		}
	}
	return pos + 1
}

// strictlyAscending reports whether keys are sorted and unique.
func strictlyAscending(n int, keyAt func(i int) []byte) bool {
	for i := 1; i < n; i++ {
		if bytes.Compare(keyAt(i-1), keyAt(i)) >= 0 {
			return false
		}
	}
	return true
}
