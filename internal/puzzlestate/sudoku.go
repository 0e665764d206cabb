package puzzlestate

import (
	"encoding/json"

	"assessment-service/internal/domain"
	"github.com/pkg/errors"
)

const sudokuSchema = `{
  "type": "object",
  "required": ["grid"],
  "additionalProperties": false,
  "properties": {
    "grid": {
      "type": "array",
      "minItems": 4,
      "maxItems": 9,
      "items": {
        "type": "array",
        "minItems": 4,
        "maxItems": 9,
        "items": {"type": "integer", "minimum": 0, "maximum": 9}
      }
    }
  }
}`

func init() {
	register(domain.PuzzleSudoku, sudokuSchema, decodeSudoku)
}

// Sudoku is a square grid; zero marks an empty cell.
type Sudoku struct {
	Grid [][]int `json:"grid"`
}

func decodeSudoku(raw []byte) (State, error) {
	var s Sudoku
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, errors.Wrap(err, "decode sudoku")
	}
	for _, row := range s.Grid {
		if len(row) != len(s.Grid) {
			return nil, domain.NewValidationError(errors.New("sudoku grid is not square"),
				domain.FieldError{Field: "grid", Error: "every row needs one cell per row"})
		}
	}
	return &s, nil
}

func (s *Sudoku) Type() domain.PuzzleType { return domain.PuzzleSudoku }

func (s *Sudoku) Equal(other State) bool {
	o, ok := other.(*Sudoku)
	if !ok || len(o.Grid) != len(s.Grid) {
		return false
	}
	for r := range s.Grid {
		if len(s.Grid[r]) != len(o.Grid[r]) {
			return false
		}
		for c := range s.Grid[r] {
			if s.Grid[r][c] != o.Grid[r][c] {
				return false
			}
		}
	}
	return true
}

func (s *Sudoku) Solves(solution State) bool { return s.Equal(solution) }

// Reveal fills the first cell, row by row, that differs from the solution.
func (s *Sudoku) Reveal(solution State) (State, Hint, bool) {
	sol, ok := solution.(*Sudoku)
	if !ok || len(sol.Grid) != len(s.Grid) {
		return nil, Hint{}, false
	}
	for r := range s.Grid {
		if len(sol.Grid[r]) != len(s.Grid[r]) {
			return nil, Hint{}, false
		}
		for c := range s.Grid[r] {
			if s.Grid[r][c] == sol.Grid[r][c] {
				continue
			}
			next := s.clone()
			next.Grid[r][c] = sol.Grid[r][c]
			return next, Hint{Row: intPtr(r), Col: intPtr(c), Value: sol.Grid[r][c]}, true
		}
	}
	return nil, Hint{}, false
}

func (s *Sudoku) Encode() (json.RawMessage, error) {
	return json.Marshal(s)
}

func (s *Sudoku) clone() *Sudoku {
	grid := make([][]int, len(s.Grid))
	for r, row := range s.Grid {
		grid[r] = append([]int(nil), row...)
	}
	return &Sudoku{Grid: grid}
}
