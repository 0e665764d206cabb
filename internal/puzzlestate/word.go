package puzzlestate

import (
	"encoding/json"
	"sort"
	"strings"

	"assessment-service/internal/domain"
	"github.com/pkg/errors"
)

const wordSchema = `{
  "type": "object",
  "required": ["found"],
  "additionalProperties": false,
  "properties": {
    "grid": {"type": "array", "items": {"type": "string"}},
    "found": {
      "type": "array",
      "items": {"type": "string", "minLength": 1, "maxLength": 64}
    }
  }
}`

func init() {
	register(domain.PuzzleWord, wordSchema, decodeWord)
}

// Word is a word-search state: the letter grid and the set of words found so far.
type Word struct {
	Grid  []string `json:"grid,omitempty"`
	Found []string `json:"found"`
}

func decodeWord(raw []byte) (State, error) {
	var w Word
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, errors.Wrap(err, "decode word puzzle")
	}
	w.Found = normalizeWords(w.Found)
	return &w, nil
}

// normalizeWords upper-cases, trims, dedupes and sorts.
func normalizeWords(words []string) []string {
	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, word := range words {
		word = strings.ToUpper(strings.TrimSpace(word))
		if word == "" {
			continue
		}
		if _, dup := seen[word]; dup {
			continue
		}
		seen[word] = struct{}{}
		out = append(out, word)
	}
	sort.Strings(out)
	return out
}

func (w *Word) Type() domain.PuzzleType { return domain.PuzzleWord }

func (w *Word) Equal(other State) bool {
	o, ok := other.(*Word)
	if !ok {
		return false
	}
	return equalStrings(w.Grid, o.Grid) && equalStrings(w.Found, o.Found)
}

// Solves compares found-word sets only; the grid is presentation.
func (w *Word) Solves(solution State) bool {
	sol, ok := solution.(*Word)
	return ok && equalStrings(w.Found, sol.Found)
}

func (w *Word) Reveal(solution State) (State, Hint, bool) {
	sol, ok := solution.(*Word)
	if !ok {
		return nil, Hint{}, false
	}
	have := make(map[string]struct{}, len(w.Found))
	for _, word := range w.Found {
		have[word] = struct{}{}
	}
	for _, word := range sol.Found {
		if _, found := have[word]; found {
			continue
		}
		next := &Word{
			Grid:  append([]string(nil), w.Grid...),
			Found: normalizeWords(append(append([]string(nil), w.Found...), word)),
		}
		return next, Hint{Word: word}, true
	}
	return nil, Hint{}, false
}

func (w *Word) Encode() (json.RawMessage, error) {
	out := *w
	if out.Found == nil {
		out.Found = []string{}
	}
	return json.Marshal(out)
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
