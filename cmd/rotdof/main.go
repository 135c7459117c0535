package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"

	"github.com/notargets/rotdof/assembly"
	"github.com/notargets/rotdof/config"
	"github.com/notargets/rotdof/device"
	"github.com/notargets/rotdof/field"
	"github.com/notargets/rotdof/mesh"
	"github.com/notargets/rotdof/partitions"
	"github.com/notargets/rotdof/rotation"
	"github.com/notargets/rotdof/utils"
)

var (
	meshFile   string
	configFile string
	center     string
	shellTol   float64
	useDevice  bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "rotdof",
		Short:        "rotated velocity dof assembly for free-slip boundaries",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&meshFile, "mesh", "", "Gambit neutral mesh file")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (yaml)")
	rootCmd.PersistentFlags().StringVar(&center, "center", "0,0,0", "center of the spherical shell")
	rootCmd.PersistentFlags().Float64Var(&shellTol, "shell-tol", 1e-6, "radial distance from the outer shell still counted as boundary")
	_ = rootCmd.MarkPersistentFlagRequired("mesh")

	framesCmd := &cobra.Command{
		Use:   "frames",
		Short: "build the node frames of the outer shell and report their quality",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFrames(cmd.OutOrStdout())
		},
	}

	assembleCmd := &cobra.Command{
		Use:   "assemble",
		Short: "assemble a rotated spring stiffness and round trip the global transform",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAssemble(cmd.Context(), cmd.OutOrStdout())
		},
	}
	assembleCmd.Flags().BoolVar(&useDevice, "device", false, "also rotate the element blocks on an OCCA device and compare")

	rootCmd.AddCommand(framesCmd, assembleCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

type setup struct {
	cfg      *config.Config
	logger   *slog.Logger
	mesh     *mesh.Mesh
	selected *mesh.NodeSet
	term     *assembly.RotationDofTerm
}

func load() (*setup, error) {
	cfg := config.DefaultConfig()
	if configFile != "" {
		var err error
		if cfg, err = config.Load(configFile); err != nil {
			return nil, err
		}
	}
	logger, err := config.NewLogger(os.Stderr, cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	c, err := parseCenter(center)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	m, err := mesh.ReadMeshFile(meshFile)
	if err != nil {
		return nil, fmt.Errorf("reading mesh %s: %w", meshFile, err)
	}
	logger.Info("read mesh", "file", meshFile, "vertices", m.NumVertices(),
		"elements", m.NumElements(), "elapsed", time.Since(start))

	selected := outerShell(m, c, shellTol)
	if selected.Len() == 0 {
		return nil, fmt.Errorf("no nodes within %g of the outer shell", shellTol)
	}
	term := assembly.NewRotationDofTerm("free-slip", m,
		assembly.WithSelector(selected),
		assembly.WithTolerance(cfg.Tolerance.Degenerate),
		assembly.WithLogger(logger))
	term.SetNormalFunction(field.Radial(c...))

	return &setup{cfg: cfg, logger: logger, mesh: m, selected: selected, term: term}, nil
}

func parseCenter(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return nil, fmt.Errorf("center %q must have three comma separated components", s)
	}
	c := make([]float64, 3)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("center component %d: %w", i, err)
		}
		c[i] = v
	}
	return c, nil
}

// outerShell selects the nodes whose distance from c is within tol of the
// largest distance in the mesh
func outerShell(m *mesh.Mesh, c []float64, tol float64) *mesh.NodeSet {
	r := make([]float64, m.NumVertices())
	d := make([]float64, len(c))
	for n, x := range m.Vertices {
		floats.SubTo(d, x, c)
		r[n] = floats.Norm(d, 2)
	}
	rmax := floats.Max(r)
	return mesh.SelectNodes(m, func(n int, _ []float64) bool {
		return rmax-r[n] <= tol
	})
}

type framesReport struct {
	Mesh                   string  `yaml:"mesh"`
	Vertices               int     `yaml:"vertices"`
	Elements               int     `yaml:"elements"`
	RotatedNodes           int     `yaml:"rotated_nodes"`
	MaxOrthonormalityError float64 `yaml:"max_orthonormality_error"`
	WithinTolerance        bool    `yaml:"within_tolerance"`
}

func runFrames(w io.Writer) error {
	s, err := load()
	if err != nil {
		return err
	}
	if err = s.term.Precompute(s.selected.Nodes()); err != nil {
		return err
	}
	var worst float64
	cache := s.term.Frames()
	for _, n := range cache.Nodes() {
		R, _ := cache.Lookup(n)
		worst = math.Max(worst, rotation.OrthonormalityError(R))
	}
	return writeYAML(w, framesReport{
		Mesh:                   meshFile,
		Vertices:               s.mesh.NumVertices(),
		Elements:               s.mesh.NumElements(),
		RotatedNodes:           cache.Len(),
		MaxOrthonormalityError: worst,
		WithinTolerance:        worst <= s.cfg.Tolerance.Orthonormal,
	})
}

type assembleReport struct {
	Mesh              string  `yaml:"mesh"`
	DOF               int     `yaml:"dof"`
	RotatedNodes      int     `yaml:"rotated_nodes"`
	Partitions        string  `yaml:"partitions"`
	NonZeros          int     `yaml:"non_zeros"`
	SymmetryError     float64 `yaml:"symmetry_error"`
	RoundTripResidual float64 `yaml:"round_trip_residual"`
	DeviceMaxDiff     float64 `yaml:"device_max_diff,omitempty"`
	DeviceMode        string  `yaml:"device_mode,omitempty"`
}

func runAssemble(ctx context.Context, w io.Writer) error {
	s, err := load()
	if err != nil {
		return err
	}
	strategy, err := s.cfg.Strategy()
	if err != nil {
		return err
	}
	as := assembly.NewAssembler(s.term)
	as.Strategy = strategy
	as.PartitionSize = s.cfg.Assembly.PartitionSize
	as.Workers = s.cfg.Assembly.Workers
	as.Logger = s.logger

	n := s.mesh.NumDOF()
	A := assembly.NewSparseMatrix(n)
	local := assembly.TrussStiffness(s.mesh)
	if err = as.Assemble(ctx, s.mesh, local, A); err != nil {
		return err
	}

	report := assembleReport{
		Mesh:         meshFile,
		DOF:          n,
		RotatedNodes: s.term.Frames().Len(),
		Partitions:   fmt.Sprintf("%s/%d", strategy, s.cfg.Assembly.PartitionSize),
		NonZeros:     A.NNZ(),
	}
	A.DoNonZero(func(i, j int, v float64) {
		report.SymmetryError = math.Max(report.SymmetryError, math.Abs(v-A.At(j, i)))
	})

	y := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		y.SetVec(i, 1)
	}
	gt, err := s.term.ApplyGlobalConstraint(A, nil, y)
	if err != nil {
		return err
	}
	if err = gt.Unapply(); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		report.RoundTripResidual = math.Max(report.RoundTripResidual, math.Abs(y.AtVec(i)-1))
	}

	if useDevice {
		if report.DeviceMode, report.DeviceMaxDiff, err = compareDevice(s, local); err != nil {
			return err
		}
	}
	return writeYAML(w, report)
}

// compareDevice rotates every element block on a device and returns the
// largest difference from the host rotation
func compareDevice(s *setup, local assembly.LocalStiffness) (string, float64, error) {
	npe := s.mesh.MaxNodesPerElement()
	K := s.mesh.NumElements()
	blocks := make([]*mat.Dense, K)
	host := make([]*mat.Dense, K)
	frames := make([][]float64, K)
	applier := assembly.NewApplier()
	for k := 0; k < K; k++ {
		inc := s.mesh.Incidence(k)
		if len(inc) != npe {
			return "", 0, fmt.Errorf("element %d has %d nodes, device rotation needs %d on every element",
				k, len(inc), npe)
		}
		var err error
		if blocks[k], err = local(k, inc); err != nil {
			return "", 0, err
		}
		if frames[k], err = s.term.ElementFrames(inc); err != nil {
			return "", 0, err
		}
		host[k] = mat.DenseCopyOf(blocks[k])
		if err = applier.Apply(host[k], inc, s.mesh.Dimension(), s.term); err != nil {
			return "", 0, err
		}
	}

	dev, err := utils.CreateDevice(s.logger)
	if err != nil {
		return "", 0, err
	}
	defer dev.Free()
	layout, err := (&partitions.PartitionBuilder{
		NumElements:         K,
		TargetPartitionSize: s.cfg.Assembly.PartitionSize,
		Strategy:            partitions.BlockPartition,
	}).BuildPartitions()
	if err != nil {
		return "", 0, err
	}
	br, err := device.NewBlockRotator(dev, layout, s.mesh.Dimension(), npe)
	if err != nil {
		return "", 0, err
	}
	defer br.Free()
	if err = br.Rotate(blocks, frames); err != nil {
		return "", 0, err
	}

	var worst float64
	for k := range blocks {
		var diff mat.Dense
		diff.Sub(blocks[k], host[k])
		worst = math.Max(worst, mat.Norm(&diff, math.Inf(1)))
	}
	return dev.Mode(), worst, nil
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
