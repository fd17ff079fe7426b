package plinko

// Peg is a fixed obstacle on the board.
type Peg struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Lattice is the triangular peg field: row r holds r+1 pegs centred on the
// board, widest at the bottom. It has no mutation API.
type Lattice struct {
	rows int
	pegs []Peg
}

// NewLattice builds the peg field for a board.
func NewLattice(b Board) *Lattice {
	pegs := make([]Peg, 0, b.Rows*(b.Rows+1)/2)
	for r := 0; r < b.Rows; r++ {
		rowWidth := float64(r) * b.PegSpacing
		start := (b.Width - rowWidth) / 2
		y := b.RowY(r)
		for c := 0; c <= r; c++ {
			pegs = append(pegs, Peg{X: start + float64(c)*b.PegSpacing, Y: y})
		}
	}
	return &Lattice{rows: b.Rows, pegs: pegs}
}

// Len returns the number of pegs, R(R+1)/2.
func (l *Lattice) Len() int {
	return len(l.pegs)
}

// Rows returns the number of peg rows.
func (l *Lattice) Rows() int {
	return l.rows
}

// Pegs returns a copy of every peg in iteration order.
func (l *Lattice) Pegs() []Peg {
	out := make([]Peg, len(l.pegs))
	copy(out, l.pegs)
	return out
}

// Row returns a copy of the pegs in row r, or nil when r is out of range.
func (l *Lattice) Row(r int) []Peg {
	if r < 0 || r >= l.rows {
		return nil
	}
	// rows are stored contiguously: row r starts at r(r+1)/2
	start := r * (r + 1) / 2
	out := make([]Peg, r+1)
	copy(out, l.pegs[start:start+r+1])
	return out
}
