package incident

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/couchcryptid/disaster-incident-service/internal/domain"
)

const idPrefix = "incident_"

// Sequence hands out incident ids. It is passed explicitly so id assignment
// stays deterministic and testable; it is not safe for concurrent use.
type Sequence struct {
	last int
}

// NewSequence continues numbering after last.
func NewSequence(last int) *Sequence {
	return &Sequence{last: last}
}

// SequenceFor continues after the highest number seen in state, whether it
// comes from LastSequence or from an existing incident id.
func SequenceFor(state domain.State) *Sequence {
	last := state.LastSequence
	for _, inc := range state.Incidents {
		if n, ok := ParseID(inc.ID); ok && n > last {
			last = n
		}
	}
	return NewSequence(last)
}

// Next returns the next unused id.
func (s *Sequence) Next() string {
	s.last++
	return FormatID(s.last)
}

// Last returns the most recently issued number.
func (s *Sequence) Last() int { return s.last }

// FormatID renders incident number n.
func FormatID(n int) string {
	return fmt.Sprintf("%s%d", idPrefix, n)
}

// ParseID extracts the number from an incident id.
func ParseID(id string) (int, bool) {
	rest, ok := strings.CutPrefix(id, idPrefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}
