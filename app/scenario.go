package app

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/shlex"
)

var ErrUnknownScenario = errors.New("unknown scenario")

// Scenario is one parsed script line: a workload name followed by key=value
// integer arguments, e.g. `prodcon producers=2 items=8`.
type Scenario struct {
	Name string
	Args map[string]int
}

// ParseScenario tokenizes line with shell quoting rules.
func ParseScenario(line string) (Scenario, error) {
	fields, err := shlex.Split(line)
	if err != nil {
		return Scenario{}, fmt.Errorf("scenario %q: %w", line, err)
	}
	if len(fields) == 0 {
		return Scenario{}, fmt.Errorf("scenario %q: empty", line)
	}

	sc := Scenario{Name: fields[0], Args: map[string]int{}}
	if _, ok := workloads[sc.Name]; !ok {
		return Scenario{}, fmt.Errorf("scenario %q: %w", sc.Name, ErrUnknownScenario)
	}
	for _, f := range fields[1:] {
		k, v, ok := strings.Cut(f, "=")
		if !ok || k == "" {
			return Scenario{}, fmt.Errorf("scenario %q: argument %q is not key=value", sc.Name, f)
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Scenario{}, fmt.Errorf("scenario %q: argument %s needs a non-negative integer", sc.Name, k)
		}
		sc.Args[k] = n
	}
	return sc, nil
}

// Int returns the named argument or def when it is absent.
func (sc Scenario) Int(key string, def int) int {
	if v, ok := sc.Args[key]; ok {
		return v
	}
	return def
}

func (sc Scenario) String() string {
	var b strings.Builder
	b.WriteString(sc.Name)
	keys := make([]string, 0, len(sc.Args))
	for k := range sc.Args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%d", k, sc.Args[k])
	}
	return b.String()
}
