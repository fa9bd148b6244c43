package board

import (
	"fmt"
	"strconv"
	"strings"
)

// Size is the playable width and height of a board. Row and column 0
// hold the coordinate axis labels, so the backing grid is 11x11.
const Size = 10

// Cell states
const (
	Empty = "-"
	Ship  = "S"
	Hit   = "H"
	Miss  = "M"
	Sunk  = "X"
)

// Shot outcomes
const (
	OutcomeHit  = "HIT"
	OutcomeMiss = "MISS"
)

// ShipNames lists the fleet in placement order.
var ShipNames = []string{"carrier", "battleship", "cruiser", "submarine", "destroyer"}

// ShipSizes maps each ship name to its length in cells.
var ShipSizes = map[string]int{
	"carrier":    5,
	"battleship": 4,
	"cruiser":    3,
	"submarine":  3,
	"destroyer":  2,
}

// rowLabels holds the axis labels for column 0.
var rowLabels = []string{"+", "A", "B", "C", "D", "E", "F", "G", "H", "I", "J"}

// Coord is a single cell position, rows and columns 1 to 10.
type Coord struct {
	Row int
	Col int
}

// String renders a Coord in the row_col wire form.
func (c Coord) String() string {
	return strconv.Itoa(c.Row) + "_" + strconv.Itoa(c.Col)
}

// ParseCoord parses the row_col wire form back into a Coord.
func ParseCoord(s string) (Coord, error) {
	parts := strings.Split(s, "_")
	if len(parts) != 2 {
		return Coord{}, fmt.Errorf("invalid coordinate %q", s)
	}
	row, err := strconv.Atoi(parts[0])
	if err != nil {
		return Coord{}, fmt.Errorf("invalid coordinate %q", s)
	}
	col, err := strconv.Atoi(parts[1])
	if err != nil {
		return Coord{}, fmt.Errorf("invalid coordinate %q", s)
	}
	return Coord{Row: row, Col: col}, nil
}

// Placement errors
var (
	ErrUnknownShip   = fmt.Errorf("unknown ship name")
	ErrAlreadyPlaced = fmt.Errorf("ship has already been placed")
	ErrOutOfBounds   = fmt.Errorf("coordinates are outside the board")
	ErrNotAligned    = fmt.Errorf("endpoints are not in the same row or column")
	ErrWrongLength   = fmt.Errorf("endpoints do not match the ship length")
	ErrOverlap       = fmt.Errorf("cells overlap a previously placed ship")
)

// Board is one player's private grid plus their ship placements.
type Board struct {
	grid   [Size + 1][Size + 1]string
	coords map[string][]Coord
	afloat map[string]bool
}

// New returns an empty Board with the axis labels filled in.
func New() *Board {
	b := &Board{
		coords: make(map[string][]Coord, len(ShipNames)),
		afloat: make(map[string]bool, len(ShipNames)),
	}
	for row := 0; row <= Size; row++ {
		for col := 0; col <= Size; col++ {
			b.grid[row][col] = Empty
		}
	}
	for row := 0; row <= Size; row++ {
		b.grid[row][0] = rowLabels[row]
	}
	for col := 1; col <= Size; col++ {
		b.grid[0][col] = strconv.Itoa(col)
	}
	return b
}

// Cell returns the state of a single playable cell.
func (b *Board) Cell(row, col int) string {
	return b.grid[row][col]
}

func inBounds(c Coord) bool {
	return c.Row >= 1 && c.Row <= Size && c.Col >= 1 && c.Col <= Size
}

// PlaceShip validates a ship placement from its two endpoints and, on
// success, claims every cell between them. A failed placement leaves
// the board untouched so the client can retry the same ship.
func (b *Board) PlaceShip(name string, from, to Coord) error {
	size, ok := ShipSizes[name]
	if !ok {
		return ErrUnknownShip
	}
	if _, ok := b.coords[name]; ok {
		return ErrAlreadyPlaced
	}
	if !inBounds(from) || !inBounds(to) {
		return ErrOutOfBounds
	}
	if from.Row != to.Row && from.Col != to.Col {
		return ErrNotAligned
	}

	cells := spanCells(from, to)
	if len(cells) != size {
		return ErrWrongLength
	}
	for _, c := range cells {
		if b.grid[c.Row][c.Col] != Empty {
			return ErrOverlap
		}
	}

	for _, c := range cells {
		b.grid[c.Row][c.Col] = Ship
	}
	b.coords[name] = cells
	b.afloat[name] = true
	return nil
}

// spanCells expands two collinear endpoints into the ordered cell list
// between them, inclusive.
func spanCells(from, to Coord) []Coord {
	var cells []Coord
	if from.Row == to.Row {
		lo, hi := from.Col, to.Col
		if lo > hi {
			lo, hi = hi, lo
		}
		for col := lo; col <= hi; col++ {
			cells = append(cells, Coord{Row: from.Row, Col: col})
		}
		return cells
	}
	lo, hi := from.Row, to.Row
	if lo > hi {
		lo, hi = hi, lo
	}
	for row := lo; row <= hi; row++ {
		cells = append(cells, Coord{Row: row, Col: from.Col})
	}
	return cells
}

// Complete reports whether all 5 ships have been placed.
func (b *Board) Complete() bool {
	return len(b.coords) == len(ShipNames)
}

// ApplyShot resolves an incoming shot. A Ship cell becomes Hit, any
// other cell is overwritten with Miss, so re-firing at a spent cell
// re-applies the same outcome.
func (b *Board) ApplyShot(row, col int) string {
	if b.grid[row][col] == Ship {
		b.grid[row][col] = Hit
		return OutcomeHit
	}
	b.grid[row][col] = Miss
	return OutcomeMiss
}

// SweepSunk scans the afloat ships for one whose cells are all Hit,
// marks it Sunk and returns its name and cells. At most one ship can
// newly sink per shot, so a single sweep is enough.
func (b *Board) SweepSunk() (string, []Coord, bool) {
	for _, name := range ShipNames {
		if !b.afloat[name] {
			continue
		}
		sunk := true
		for _, c := range b.coords[name] {
			if b.grid[c.Row][c.Col] != Hit {
				sunk = false
				break
			}
		}
		if sunk {
			for _, c := range b.coords[name] {
				b.grid[c.Row][c.Col] = Sunk
			}
			b.afloat[name] = false
			return name, b.coords[name], true
		}
	}
	return "", nil, false
}

// AfloatCount returns the number of ships not yet sunk.
func (b *Board) AfloatCount() int {
	count := 0
	for _, up := range b.afloat {
		if up {
			count++
		}
	}
	return count
}

// ShipCoords returns every placed ship's cells in the row_col wire
// form, keyed by ship name.
func (b *Board) ShipCoords() map[string][]string {
	out := make(map[string][]string, len(ShipNames))
	for _, name := range ShipNames {
		cells := make([]string, 0, len(b.coords[name]))
		for _, c := range b.coords[name] {
			cells = append(cells, c.String())
		}
		out[name] = cells
	}
	return out
}

// Render serializes the grid, header row and axis column included,
// cells space-separated and rows newline-joined.
func (b *Board) Render() string {
	rows := make([]string, 0, Size+1)
	for row := 0; row <= Size; row++ {
		rows = append(rows, strings.Join(b.grid[row][:], " "))
	}
	return strings.Join(rows, "\n")
}
