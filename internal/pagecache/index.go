// Row index arithmetic shared by the cache consumers.

package pagecache

// PageOf returns the zero-based page holding the absolute row index.
func PageOf(absolute, pageSize int) int {
	if pageSize <= 0 {
		return 0
	}
	return absolute / pageSize
}

// OffsetOf returns the position of the absolute row index inside its page.
func OffsetOf(absolute, pageSize int) int {
	if pageSize <= 0 {
		return 0
	}
	return absolute % pageSize
}

// FirstRow returns the absolute index of the first row shown on the one-based
// activePage.
func FirstRow(activePage, pageSize int) int {
	return (activePage - 1) * pageSize
}

// ToRelative converts an absolute row index to its position on the one-based
// activePage. It returns -1 when the row is not on that page.
func ToRelative(absolute, activePage, pageSize int) int {
	if absolute < 0 {
		return -1
	}
	relative := absolute - FirstRow(activePage, pageSize)
	if relative >= 0 && relative < pageSize {
		return relative
	}
	return -1
}

// ToAbsolute converts a position on the one-based activePage to an absolute
// row index. Negative input is returned unchanged.
func ToAbsolute(relative, activePage, pageSize int) int {
	if relative < 0 {
		return relative
	}
	return relative + FirstRow(activePage, pageSize)
}
