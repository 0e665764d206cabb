package puzzlestate

import (
	"encoding/json"
	"testing"

	"assessment-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	sudokuStart    = `{"grid":[[1,0,3,4],[3,4,1,2],[2,1,4,3],[4,3,2,0]]}`
	sudokuSolution = `{"grid":[[1,2,3,4],[3,4,1,2],[2,1,4,3],[4,3,2,1]]}`
)

func TestRoundTripIsSemanticallyEqual(t *testing.T) {
	tests := []struct {
		name string
		typ  domain.PuzzleType
		raw  string
	}{
		{"sudoku", domain.PuzzleSudoku, sudokuStart},
		{"word", domain.PuzzleWord, `{"grid":["CATX","DOGY"],"found":["dog","cat","Cat"]}`},
		{"word empty", domain.PuzzleWord, `{"found":[]}`},
		{"logic", domain.PuzzleLogic, `{"a":1,"b":[true,false],"c":{"d":"x"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first, err := Decode(tt.typ, []byte(tt.raw))
			require.NoError(t, err)
			encoded, err := first.Encode()
			require.NoError(t, err)
			second, err := Decode(tt.typ, encoded)
			require.NoError(t, err)
			assert.True(t, first.Equal(second), "round trip changed %s into %s", tt.raw, encoded)
			assert.Equal(t, tt.typ, second.Type())
		})
	}
}

func TestWordFoundSetIgnoresOrderAndCase(t *testing.T) {
	a, err := Decode(domain.PuzzleWord, []byte(`{"found":["cat","dog"]}`))
	require.NoError(t, err)
	b, err := Decode(domain.PuzzleWord, []byte(`{"found":["DOG"," Cat "]}`))
	require.NoError(t, err)
	assert.True(t, a.Equal(b))
}

func TestValidateRejectsMalformedState(t *testing.T) {
	tests := []struct {
		name string
		typ  domain.PuzzleType
		raw  string
	}{
		{"not json", domain.PuzzleSudoku, `{"grid":`},
		{"cell out of range", domain.PuzzleSudoku, `{"grid":[[1,2,3,10],[1,2,3,4],[1,2,3,4],[1,2,3,4]]}`},
		{"not square", domain.PuzzleSudoku, `{"grid":[[1,2,3,4],[1,2,3,4],[1,2,3,4],[1,2,3,4],[1,2,3,4]]}`},
		{"extra field", domain.PuzzleSudoku, `{"grid":[[1,2,3,4],[1,2,3,4],[1,2,3,4],[1,2,3,4]],"x":1}`},
		{"word missing found", domain.PuzzleWord, `{"grid":["AB"]}`},
		{"logic array", domain.PuzzleLogic, `[1,2]`},
		{"empty", domain.PuzzleLogic, ``},
		{"unknown type", domain.PuzzleType("Chess"), `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.typ, []byte(tt.raw))
			require.Error(t, err)
			assert.Equal(t, domain.KindValidation, domain.KindOf(err), "got %v", err)
		})
	}
}

func TestSolvedAndReveal(t *testing.T) {
	solved, err := Solved(domain.PuzzleSudoku, []byte(sudokuStart), []byte(sudokuSolution))
	require.NoError(t, err)
	assert.False(t, solved)

	next, hint, ok, err := RevealOne(domain.PuzzleSudoku, []byte(sudokuStart), []byte(sudokuSolution))
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, hint.Row)
	assert.Equal(t, 0, *hint.Row)
	assert.Equal(t, 1, *hint.Col)
	assert.Equal(t, 2, hint.Value)

	next, _, ok, err = RevealOne(domain.PuzzleSudoku, next, []byte(sudokuSolution))
	require.NoError(t, err)
	require.True(t, ok)
	solved, err = Solved(domain.PuzzleSudoku, next, []byte(sudokuSolution))
	require.NoError(t, err)
	assert.True(t, solved)

	_, _, ok, err = RevealOne(domain.PuzzleSudoku, next, []byte(sudokuSolution))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWordAndLogicReveal(t *testing.T) {
	next, hint, ok, err := RevealOne(domain.PuzzleWord, []byte(`{"found":["CAT"]}`), []byte(`{"found":["CAT","DOG"]}`))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "DOG", hint.Word)
	solved, err := Solved(domain.PuzzleWord, next, []byte(`{"found":["dog","cat"]}`))
	require.NoError(t, err)
	assert.True(t, solved)

	next, hint, ok, err = RevealOne(domain.PuzzleLogic, []byte(`{"a":"x","b":""}`), []byte(`{"a":"x","b":"y"}`))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "b", hint.Key)
	var values map[string]string
	require.NoError(t, json.Unmarshal(next, &values))
	assert.Equal(t, "y", values["b"])
}

func TestLogicRevealDropsKeysOutsideSolution(t *testing.T) {
	solution := []byte(`{"a":"x"}`)
	current := []byte(`{"a":"x","z":"stray","m":1}`)

	next, hint, ok, err := RevealOne(domain.PuzzleLogic, current, solution)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "m", hint.Key)
	assert.Nil(t, hint.Value)

	next, hint, ok, err = RevealOne(domain.PuzzleLogic, next, solution)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "z", hint.Key)

	solved, err := Solved(domain.PuzzleLogic, next, solution)
	require.NoError(t, err)
	if !solved {
		t.Fatalf("expected state %s to solve after dropping extra keys", next)
	}
	_, _, ok, err = RevealOne(domain.PuzzleLogic, next, solution)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValidateGame(t *testing.T) {
	game := domain.PuzzleGame{
		ID:           "g1",
		Type:         domain.PuzzleSudoku,
		InitialState: json.RawMessage(sudokuStart),
		Solution:     json.RawMessage(sudokuSolution),
	}
	require.NoError(t, ValidateGame(game))

	game.InitialState = json.RawMessage(sudokuSolution)
	assert.Equal(t, domain.KindValidation, domain.KindOf(ValidateGame(game)))

	game.InitialState = json.RawMessage(`{"grid":[[0,0,0,0,0],[0,0,0,0,0],[0,0,0,0,0],[0,0,0,0,0],[0,0,0,0,0]]}`)
	assert.Equal(t, domain.KindValidation, domain.KindOf(ValidateGame(game)))
}
