package puzzlestate

import (
	"encoding/json"
	"reflect"
	"sort"

	"assessment-service/internal/domain"
	"github.com/pkg/errors"
)

const logicSchema = `{
  "type": "object",
  "maxProperties": 256
}`

func init() {
	register(domain.PuzzleLogic, logicSchema, decodeLogic)
}

// Logic is a free-form key/value state.
type Logic struct {
	Values map[string]interface{}
}

func decodeLogic(raw []byte) (State, error) {
	values := map[string]interface{}{}
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, errors.Wrap(err, "decode logic puzzle")
	}
	return &Logic{Values: values}, nil
}

func (l *Logic) Type() domain.PuzzleType { return domain.PuzzleLogic }

func (l *Logic) Equal(other State) bool {
	o, ok := other.(*Logic)
	return ok && reflect.DeepEqual(l.Values, o.Values)
}

func (l *Logic) Solves(solution State) bool { return l.Equal(solution) }

// Reveal sets the first key, in key order, whose value differs from the solution.
// Once every solution key matches, it drops the first key the solution lacks;
// that hint carries the key without a value.
func (l *Logic) Reveal(solution State) (State, Hint, bool) {
	sol, ok := solution.(*Logic)
	if !ok {
		return nil, Hint{}, false
	}
	for _, k := range sortedKeys(sol.Values) {
		if cur, present := l.Values[k]; present && reflect.DeepEqual(cur, sol.Values[k]) {
			continue
		}
		next := l.clone()
		next.Values[k] = sol.Values[k]
		return next, Hint{Key: k, Value: sol.Values[k]}, true
	}
	for _, k := range sortedKeys(l.Values) {
		if _, wanted := sol.Values[k]; wanted {
			continue
		}
		next := l.clone()
		delete(next.Values, k)
		return next, Hint{Key: k}, true
	}
	return nil, Hint{}, false
}

func (l *Logic) clone() *Logic {
	next := &Logic{Values: make(map[string]interface{}, len(l.Values)+1)}
	for key, v := range l.Values {
		next.Values[key] = v
	}
	return next
}

func sortedKeys(values map[string]interface{}) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (l *Logic) Encode() (json.RawMessage, error) {
	if l.Values == nil {
		return json.RawMessage(`{}`), nil
	}
	return json.Marshal(l.Values)
}
