package assembly

import (
	"fmt"
	"strings"
)

// CircularDependencyError reports a dependency cycle among supply trees.
// Cycle is the tree id sequence from the re-encountered node back to itself.
type CircularDependencyError struct {
	Cycle []string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("circular dependency between supply trees: %s", strings.Join(e.Cycle, " -> "))
}
