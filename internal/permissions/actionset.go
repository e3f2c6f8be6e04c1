package permissions

import (
	"encoding/json"
	"strings"
)

// ActionSet is an immutable set of actions. The zero value is the empty set.
type ActionSet struct {
	bits uint8
}

func actionBit(a Action) uint8 {
	for i, known := range allActions {
		if a == known {
			return 1 << uint(i)
		}
	}
	return 0
}

// NewActionSet builds a set from the given actions. Unknown actions and
// duplicates are dropped.
func NewActionSet(actions ...Action) ActionSet {
	var s ActionSet
	for _, a := range actions {
		s.bits |= actionBit(a)
	}
	return s
}

// Contains reports whether a is in the set.
func (s ActionSet) Contains(a Action) bool {
	bit := actionBit(a)
	return bit != 0 && s.bits&bit != 0
}

// Len returns the number of actions in the set.
func (s ActionSet) Len() int {
	n := 0
	for b := s.bits; b != 0; b &= b - 1 {
		n++
	}
	return n
}

// IsEmpty reports whether the set holds no action.
func (s ActionSet) IsEmpty() bool { return s.bits == 0 }

// Equal reports whether both sets hold the same actions.
func (s ActionSet) Equal(other ActionSet) bool { return s.bits == other.bits }

// Actions returns the members in declaration order. The slice is a fresh copy.
func (s ActionSet) Actions() []Action {
	out := make([]Action, 0, s.Len())
	for i, a := range allActions {
		if s.bits&(1<<uint(i)) != 0 {
			out = append(out, a)
		}
	}
	return out
}

func (s ActionSet) String() string {
	actions := s.Actions()
	parts := make([]string, len(actions))
	for i, a := range actions {
		parts[i] = string(a)
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// MarshalJSON encodes the set as an array of action names.
func (s ActionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Actions())
}
