// Package puzzlestate decodes the per-type puzzle state documents stored on
// games, attempts and moves. Documents are validated against a JSON schema
// for their puzzle type before they are decoded.
package puzzlestate

import (
	"encoding/json"
	"fmt"

	"assessment-service/internal/domain"
	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"
)

// State is a decoded puzzle state.
type State interface {
	Type() domain.PuzzleType
	// Equal reports semantic equality: same grid values, found-word set or key/value map.
	Equal(other State) bool
	// Solves reports whether the state matches the given solution.
	Solves(solution State) bool
	// Reveal copies one element of solution that the state does not match yet.
	Reveal(solution State) (State, Hint, bool)
	Encode() (json.RawMessage, error)
}

// Hint describes the element revealed by a hint.
type Hint struct {
	Row   *int        `json:"row,omitempty"`
	Col   *int        `json:"col,omitempty"`
	Word  string      `json:"word,omitempty"`
	Key   string      `json:"key,omitempty"`
	Value interface{} `json:"value,omitempty"`
}

type variant struct {
	schema *gojsonschema.Schema
	decode func(raw []byte) (State, error)
}

var variants = map[domain.PuzzleType]variant{}

func register(t domain.PuzzleType, schema string, decode func(raw []byte) (State, error)) {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schema))
	if err != nil {
		panic(fmt.Sprintf("puzzlestate: compile %s schema: %v", t, err))
	}
	variants[t] = variant{schema: compiled, decode: decode}
}

// Validate checks raw against the schema of puzzle type t.
func Validate(t domain.PuzzleType, raw []byte) error {
	v, ok := variants[t]
	if !ok {
		return domain.NewValidationError(errors.Errorf("unknown puzzle type %q", t),
			domain.FieldError{Field: "type", Error: "unknown puzzle type"})
	}
	return validateWith(v.schema, raw)
}

// Decode validates raw and decodes it into the variant for t.
func Decode(t domain.PuzzleType, raw []byte) (State, error) {
	if err := Validate(t, raw); err != nil {
		return nil, err
	}
	return variants[t].decode(raw)
}

// Normalize decodes and re-encodes raw, returning the canonical document.
func Normalize(t domain.PuzzleType, raw []byte) (json.RawMessage, error) {
	st, err := Decode(t, raw)
	if err != nil {
		return nil, err
	}
	return st.Encode()
}

// Solved decodes both documents and compares them.
func Solved(t domain.PuzzleType, current, solution []byte) (bool, error) {
	cur, sol, err := decodePair(t, current, solution)
	if err != nil {
		return false, err
	}
	return cur.Solves(sol), nil
}

// RevealOne applies a hint to current. ok is false when nothing is left to reveal.
func RevealOne(t domain.PuzzleType, current, solution []byte) (json.RawMessage, Hint, bool, error) {
	cur, sol, err := decodePair(t, current, solution)
	if err != nil {
		return nil, Hint{}, false, err
	}
	next, hint, ok := cur.Reveal(sol)
	if !ok {
		return nil, Hint{}, false, nil
	}
	raw, err := next.Encode()
	if err != nil {
		return nil, Hint{}, false, err
	}
	return raw, hint, true, nil
}

// ValidateGame checks that a game's initial state and solution are well formed and compatible.
func ValidateGame(g domain.PuzzleGame) error {
	initial, err := Decode(g.Type, g.InitialState)
	if err != nil {
		return errors.Wrap(err, "initialState")
	}
	solution, err := Decode(g.Type, g.Solution)
	if err != nil {
		return errors.Wrap(err, "solution")
	}
	if initial.Solves(solution) {
		return domain.NewValidationError(errors.New("initial state already solves the puzzle"),
			domain.FieldError{Field: "initialState", Error: "must differ from the solution"})
	}
	if _, _, ok := initial.Reveal(solution); !ok {
		return domain.NewValidationError(errors.New("solution is not reachable from the initial state"),
			domain.FieldError{Field: "solution", Error: "does not match the initial state shape"})
	}
	return nil
}

func decodePair(t domain.PuzzleType, current, solution []byte) (State, State, error) {
	cur, err := Decode(t, current)
	if err != nil {
		return nil, nil, err
	}
	sol, err := Decode(t, solution)
	if err != nil {
		return nil, nil, errors.Wrap(err, "decode solution")
	}
	return cur, sol, nil
}

func validateWith(schema *gojsonschema.Schema, raw []byte) error {
	if len(raw) == 0 {
		return domain.NewValidationError(errors.New("empty puzzle state"),
			domain.FieldError{Field: "state", Error: "this field is required"})
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return domain.NewValidationError(errors.Wrap(err, "malformed puzzle state"),
			domain.FieldError{Field: "state", Error: "malformed JSON"})
	}
	if result.Valid() {
		return nil
	}
	fields := make([]domain.FieldError, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		fields = append(fields, domain.FieldError{Field: re.Field(), Error: re.Description()})
	}
	return domain.NewValidationError(errors.New("puzzle state does not match its schema"), fields...)
}

func intPtr(i int) *int { return &i }
