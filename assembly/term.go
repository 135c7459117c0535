package assembly

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/notargets/rotdof/element"
	"github.com/notargets/rotdof/field"
	"github.com/notargets/rotdof/mesh"
	"github.com/notargets/rotdof/rotation"
)

// Geometry resolves node positions. *mesh.Mesh satisfies it.
type Geometry interface {
	Dimension() int
	Coordinate(node int) []float64
}

// RotationDofTerm is the assembly term that rotates the velocity DOFs of
// selected nodes into a frame built from a normal field and an optional
// radial field. Frames are cached per node until a field or the selection
// changes.
//
// AssembleElement uses a single Applier and must be called from one
// goroutine. Rotation and Precompute are safe for concurrent use, parallel
// passes go through Assembler.
type RotationDofTerm struct {
	name     string
	geom     Geometry
	dim      int
	eps      float64
	logger   *slog.Logger
	selector mesh.NodeSelector
	normal   field.VectorField
	radial   field.VectorField
	cache    *rotation.Cache
	applier  *Applier
	active   *GlobalTransform
}

type Option func(*RotationDofTerm)

// WithTolerance sets the degeneracy threshold used when building frames
func WithTolerance(eps float64) Option {
	return func(t *RotationDofTerm) { t.eps = eps }
}

func WithLogger(l *slog.Logger) Option {
	return func(t *RotationDofTerm) { t.logger = l }
}

// WithSelector restricts rotation to the selected nodes. Without a selector
// every node the term sees is rotated.
func WithSelector(sel mesh.NodeSelector) Option {
	return func(t *RotationDofTerm) { t.selector = sel }
}

func NewRotationDofTerm(name string, geom Geometry, opts ...Option) *RotationDofTerm {
	t := &RotationDofTerm{
		name:    name,
		geom:    geom,
		dim:     geom.Dimension(),
		eps:     rotation.DegenerateTolerance,
		logger:  slog.Default(),
		applier: NewApplier(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.cache = rotation.NewCache(t.buildFrame)
	return t
}

func (t *RotationDofTerm) Name() string { return t.name }

// Dimension is the spatial dimension and the velocity DOFs per node
func (t *RotationDofTerm) Dimension() int { return t.dim }

// SetNormalFunction sets the field defining the constrained direction
func (t *RotationDofTerm) SetNormalFunction(f field.VectorField) {
	t.normal = f
	t.Invalidate()
}

// SetRadialFunction sets the optional field orienting the tangent plane in
// 3D. A nil field reverts to the axis fallback.
func (t *RotationDofTerm) SetRadialFunction(f field.VectorField) {
	t.radial = f
	t.Invalidate()
}

func (t *RotationDofTerm) SetSelector(sel mesh.NodeSelector) {
	t.selector = sel
	t.Invalidate()
}

// Invalidate drops every cached frame
func (t *RotationDofTerm) Invalidate() {
	t.cache.Invalidate()
}

// Selected reports whether node takes part in the rotation
func (t *RotationDofTerm) Selected(node int) bool {
	return t.selector == nil || t.selector.Selected(node)
}

// Rotation returns the frame of node, building and caching it on first use
func (t *RotationDofTerm) Rotation(node int) (*mat.Dense, bool, error) {
	if !t.Selected(node) {
		return nil, false, nil
	}
	R, err := t.cache.GetOrBuild(node)
	if err != nil {
		return nil, false, err
	}
	return R, true, nil
}

func (t *RotationDofTerm) buildFrame(node int) (*mat.Dense, error) {
	if t.normal == nil {
		return nil, &AssemblyError{Element: -1, Node: node, Field: "normal", Err: ErrNoNormalField}
	}
	c := field.NewCoordinate(-1, node, t.geom.Coordinate(node))
	n, err := field.Evaluate("normal", t.normal, c)
	if err != nil {
		return nil, &AssemblyError{Element: -1, Node: node, Field: "normal", Err: asDimensionError(err)}
	}
	var r []float64
	if t.radial != nil {
		if r, err = field.Evaluate("radial", t.radial, c); err != nil {
			return nil, &AssemblyError{Element: -1, Node: node, Field: "radial", Err: asDimensionError(err)}
		}
	}
	R, err := rotation.BuildWithTolerance(n, r, t.dim, t.eps)
	if err != nil {
		name := "normal"
		if errors.Is(err, rotation.ErrDegenerateRadial) {
			name = "radial"
		}
		return nil, &AssemblyError{Element: -1, Node: node, Field: name, Err: asDimensionError(err)}
	}
	return R, nil
}

// Precompute builds the frames of every selected node in nodes, so that a
// following parallel pass only reads the cache
func (t *RotationDofTerm) Precompute(nodes []int) error {
	selected := nodes[:0:0]
	for _, n := range nodes {
		if t.Selected(n) {
			selected = append(selected, n)
		}
	}
	if err := t.cache.Precompute(selected); err != nil {
		return err
	}
	t.logger.Debug("precomputed node frames",
		"term", t.name, "nodes", len(selected), "cached", t.cache.Len())
	return nil
}

// AssembleElement rotates the local block of element k in place
func (t *RotationDofTerm) AssembleElement(k int, inc element.Incidence, block *mat.Dense) error {
	if err := t.applier.Apply(block, inc, t.dim, t); err != nil {
		return withElement(k, err)
	}
	return nil
}

// AssembleElementInto rotates the local block of element k and adds it to g
func (t *RotationDofTerm) AssembleElementInto(g GlobalMatrix, k int, inc element.Incidence, block *mat.Dense) error {
	if err := t.AssembleElement(k, inc, block); err != nil {
		return err
	}
	l := NewLayout(inc, t.dim)
	if err := Scatter(g, block, l, l); err != nil {
		return withElement(k, err)
	}
	return nil
}

// ElementFrames packs the frames of the nodes of inc one after another,
// dim*dim values each, identity for nodes that are not rotated
func (t *RotationDofTerm) ElementFrames(inc element.Incidence) ([]float64, error) {
	d := t.dim
	out := make([]float64, len(inc)*d*d)
	for i, node := range inc {
		slot := out[i*d*d : (i+1)*d*d]
		R, ok, err := t.Rotation(node)
		if err != nil {
			return nil, err
		}
		if !ok {
			for a := 0; a < d; a++ {
				slot[a*d+a] = 1
			}
			continue
		}
		copy(slot, R.RawMatrix().Data)
	}
	return out, nil
}

// GlobalTransform snapshots the cached frames into a transform for the
// assembled system. Call it after every selected node has been assembled or
// precomputed.
func (t *RotationDofTerm) GlobalTransform() (*GlobalTransform, error) {
	if t.normal == nil {
		return nil, ErrNoNormalField
	}
	return NewGlobalTransform(t.cache.Operator(t.dim)), nil
}

// ApplyGlobalConstraint rotates A x = y with the cached frames and returns
// the transform needed to undo it. The term refuses a second rotation until
// the previous transform has been unapplied.
func (t *RotationDofTerm) ApplyGlobalConstraint(A GlobalMatrix, x, y *mat.VecDense) (*GlobalTransform, error) {
	if t.active != nil && t.active.Applied() {
		return nil, fmt.Errorf("term %s: %w", t.name, ErrAlreadyApplied)
	}
	gt, err := t.GlobalTransform()
	if err != nil {
		return nil, err
	}
	if err = gt.Apply(A, x, y); err != nil {
		return nil, fmt.Errorf("term %s: %w", t.name, err)
	}
	t.active = gt
	t.logger.Debug("applied global constraint transform",
		"term", t.name, "rotated_nodes", gt.Operator().Len())
	return gt, nil
}

// Frames exposes the cache for inspection
func (t *RotationDofTerm) Frames() *rotation.Cache { return t.cache }

func (t *RotationDofTerm) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "=== RotationDofTerm %s ===\n", t.name)
	fmt.Fprintf(&sb, "Dimension: %dD\n", t.dim)
	fmt.Fprintf(&sb, "Normal field: %v\n", t.normal != nil)
	fmt.Fprintf(&sb, "Radial field: %v\n", t.radial != nil)
	fmt.Fprintf(&sb, "Selector: %v\n", t.selector != nil)
	fmt.Fprintf(&sb, "Degenerate tolerance: %.1e\n", t.eps)
	fmt.Fprintf(&sb, "Cached frames: %d\n", t.cache.Len())
	return sb.String()
}
