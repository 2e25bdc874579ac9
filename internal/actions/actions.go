// Package actions defines the fixed action alphabet and its implication
// hierarchy. Holding a stronger action implies holding the weaker ones, e.g.
// delete implies write which implies read.
package actions

import (
	"errors"
	"fmt"
	"sort"
)

// Action codes used in grants and in the textual permission grammar.
const (
	Read    = "r"
	Write   = "w"
	Update  = "u"
	Delete  = "d"
	Approve = "a"
)

// ErrInvalid indicates an action code outside the alphabet.
var ErrInvalid = errors.New("actions: invalid action code")

// hierarchy maps each action to the actions it directly implies.
var hierarchy = map[string][]string{
	Read:    nil,
	Write:   {Read},
	Update:  {Read},
	Delete:  {Write},
	Approve: {Read},
}

// All returns the full alphabet in sorted order.
func All() []string {
	return []string{Approve, Delete, Read, Update, Write}
}

// Valid reports whether code is part of the alphabet.
func Valid(code string) bool {
	_, ok := hierarchy[code]
	return ok
}

// Expand returns the closure of roots: the roots themselves plus every
// transitively implied action, sorted. Expanding an already expanded set is a
// no-op.
func Expand(roots []string) ([]string, error) {
	expanded := make(map[string]struct{}, len(roots))
	stack := make([]string, 0, len(roots))
	for _, code := range roots {
		if !Valid(code) {
			return nil, fmt.Errorf("%w: %q", ErrInvalid, code)
		}
		if _, ok := expanded[code]; !ok {
			expanded[code] = struct{}{}
			stack = append(stack, code)
		}
	}
	for len(stack) > 0 {
		code := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, implied := range hierarchy[code] {
			if _, ok := expanded[implied]; !ok {
				expanded[implied] = struct{}{}
				stack = append(stack, implied)
			}
		}
	}
	return sorted(expanded), nil
}

// Collapse returns the minimal generating set of actions: any action implied
// by another action in the set is dropped. Expand(Collapse(x)) == Expand(x).
func Collapse(set []string) ([]string, error) {
	present := make(map[string]struct{}, len(set))
	for _, code := range set {
		if !Valid(code) {
			return nil, fmt.Errorf("%w: %q", ErrInvalid, code)
		}
		present[code] = struct{}{}
	}
	roots := make(map[string]struct{}, len(present))
	for code := range present {
		roots[code] = struct{}{}
	}
	for code := range present {
		closure, _ := Expand([]string{code})
		for _, implied := range closure {
			if implied != code {
				delete(roots, implied)
			}
		}
	}
	return sorted(roots), nil
}

// Subtract removes the named actions from a closed set, together with every
// granted action that implies one of them, so nothing removed can be
// re-derived from what remains. Actions only implied by a removed action
// survive: subtracting {w} from {r,w} leaves {r}. Subtracting from a closed
// set yields a closed set.
func Subtract(granted, removed []string) ([]string, error) {
	drop := make(map[string]struct{}, len(removed))
	for _, code := range removed {
		if !Valid(code) {
			return nil, fmt.Errorf("%w: %q", ErrInvalid, code)
		}
		drop[code] = struct{}{}
	}
	remaining := make(map[string]struct{}, len(granted))
	for _, code := range granted {
		closure, err := Expand([]string{code})
		if err != nil {
			return nil, err
		}
		keep := true
		for _, implied := range closure {
			if _, ok := drop[implied]; ok {
				keep = false
				break
			}
		}
		if keep {
			remaining[code] = struct{}{}
		}
	}
	return sorted(remaining), nil
}

// Split breaks a run of single-letter codes ("rw") into its actions.
func Split(run string) ([]string, error) {
	if run == "" {
		return nil, fmt.Errorf("%w: empty run", ErrInvalid)
	}
	out := make([]string, 0, len(run))
	for _, r := range run {
		code := string(r)
		if !Valid(code) {
			return nil, fmt.Errorf("%w: %q", ErrInvalid, code)
		}
		out = append(out, code)
	}
	return out, nil
}

// Contains reports whether every action in required is present in granted.
func Contains(granted, required []string) bool {
	set := make(map[string]struct{}, len(granted))
	for _, code := range granted {
		set[code] = struct{}{}
	}
	for _, code := range required {
		if _, ok := set[code]; !ok {
			return false
		}
	}
	return true
}

// Intersects reports whether at least one candidate action is granted.
func Intersects(granted, candidates []string) bool {
	set := make(map[string]struct{}, len(granted))
	for _, code := range granted {
		set[code] = struct{}{}
	}
	for _, code := range candidates {
		if _, ok := set[code]; ok {
			return true
		}
	}
	return false
}

func sorted(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for code := range set {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}
