package assembly

import (
	"errors"
	"fmt"
	"strings"

	"github.com/notargets/rotdof/field"
	"github.com/notargets/rotdof/rotation"
)

var (
	// ErrBlockShape reports a local block whose size disagrees with its layout
	ErrBlockShape = errors.New("element block shape mismatch")
	// ErrAlreadyApplied reports a second global transform without an Unapply
	ErrAlreadyApplied = errors.New("global constraint transform already applied")
	// ErrNotApplied reports Unapply on a system that was never rotated
	ErrNotApplied = errors.New("global constraint transform not applied")
	// ErrNoNormalField reports rotation of a node before a normal field is set
	ErrNoNormalField = errors.New("normal field is not set")
	// ErrDimensionMismatch reports objects of inconsistent size. Dimension
	// errors from field evaluation and frame construction also match it.
	ErrDimensionMismatch = errors.New("dimension mismatch")
)

// AssemblyError locates a failure in an assembly pass so the driver can report
// the failing element, node and field. Element and Node are -1 when unknown.
type AssemblyError struct {
	Element int
	Node    int
	Field   string
	Err     error
}

func (e *AssemblyError) Error() string {
	var sb strings.Builder
	sb.WriteString("rotated dof assembly")
	if e.Element >= 0 {
		fmt.Fprintf(&sb, ", element %d", e.Element)
	}
	if e.Node >= 0 {
		fmt.Fprintf(&sb, ", node %d", e.Node)
	}
	if e.Field != "" {
		fmt.Fprintf(&sb, ", field %q", e.Field)
	}
	fmt.Fprintf(&sb, ": %v", e.Err)
	return sb.String()
}

func (e *AssemblyError) Unwrap() error { return e.Err }

// withElement attaches an element index to an error, reusing an AssemblyError
// already present in the chain
func withElement(k int, err error) error {
	var ae *AssemblyError
	if errors.As(err, &ae) {
		if ae.Element < 0 {
			ae.Element = k
		}
		return err
	}
	return &AssemblyError{Element: k, Node: -1, Err: err}
}

// asDimensionError lifts the field and rotation dimension sentinels under
// ErrDimensionMismatch, keeping the original in the chain
func asDimensionError(err error) error {
	if errors.Is(err, ErrDimensionMismatch) {
		return err
	}
	if errors.Is(err, field.ErrDimensionMismatch) || errors.Is(err, rotation.ErrDimensionMismatch) {
		return fmt.Errorf("%w: %w", ErrDimensionMismatch, err)
	}
	return err
}
