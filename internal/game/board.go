package game

// Mark is one of the two game symbols. X always moves first.
type Mark string

const (
	MarkX    Mark = "X"
	MarkO    Mark = "O"
	MarkNone Mark = ""
)

// Board is the 9-cell grid, row-major from the top-left.
type Board [9]Mark

// winLines are the 8 winning lines: rows, columns, diagonals.
var winLines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8}, // rows
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8}, // columns
	{0, 4, 8}, {2, 4, 6}, // diagonals
}

// Opponent returns the other symbol.
func Opponent(m Mark) Mark {
	if m == MarkX {
		return MarkO
	}
	return MarkX
}

// Winner scans all 8 lines and returns the winning symbol and line, if any.
func (b *Board) Winner() (Mark, []int) {
	for _, line := range winLines {
		m := b[line[0]]
		if m != MarkNone && m == b[line[1]] && m == b[line[2]] {
			return m, []int{line[0], line[1], line[2]}
		}
	}
	return MarkNone, nil
}

// Full reports whether every cell is occupied.
func (b *Board) Full() bool {
	for _, c := range b {
		if c == MarkNone {
			return false
		}
	}
	return true
}

// Count returns the number of cells holding the given symbol.
func (b *Board) Count(m Mark) int {
	n := 0
	for _, c := range b {
		if c == m {
			n++
		}
	}
	return n
}
