package device

import (
	"fmt"
	"strings"
	"unsafe"

	"github.com/notargets/gocca"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/rotdof/partitions"
)

const kernelName = "rotateBlocks"

// kernelBody applies R_block K R_block^T to every element block of a
// partition. Frames are stored per element, NPE row-major DIMxDIM matrices,
// with identity for nodes that are not rotated.
const kernelBody = `
@kernel void rotateBlocks(
	const int_t* K,
	real_t* BLK_global,
	const int_t* BLK_offsets,
	const real_t* FRM_global,
	const int_t* FRM_offsets
) {
	for (int part = 0; part < NPART; ++part; @outer) {
		real_t* BLK = BLK_global + BLK_offsets[part];
		const real_t* FRM = FRM_global + FRM_offsets[part];
		for (int elem = 0; elem < KpartMax; ++elem; @inner) {
			if (elem < K[part]) {
				real_t* blk = BLK + elem*NDOF*NDOF;
				const real_t* frm = FRM + elem*NPE*DIM*DIM;
				real_t tmp[DIM];
				for (int a = 0; a < NPE; ++a) {
					const real_t* R = frm + a*DIM*DIM;
					for (int j = 0; j < NDOF; ++j) {
						for (int i = 0; i < DIM; ++i) {
							real_t s = REAL_ZERO;
							for (int m = 0; m < DIM; ++m) {
								s += R[i*DIM + m]*blk[(a*DIM + m)*NDOF + j];
							}
							tmp[i] = s;
						}
						for (int i = 0; i < DIM; ++i) {
							blk[(a*DIM + i)*NDOF + j] = tmp[i];
						}
					}
				}
				for (int b = 0; b < NPE; ++b) {
					const real_t* R = frm + b*DIM*DIM;
					for (int i = 0; i < NDOF; ++i) {
						for (int c = 0; c < DIM; ++c) {
							real_t s = REAL_ZERO;
							for (int m = 0; m < DIM; ++m) {
								s += blk[i*NDOF + b*DIM + m]*R[c*DIM + m];
							}
							tmp[c] = s;
						}
						for (int c = 0; c < DIM; ++c) {
							blk[i*NDOF + b*DIM + c] = tmp[c];
						}
					}
				}
			}
		}
	}
}
`

// BlockRotator rotates the local blocks of all elements of a partition
// layout on an OCCA device, one @outer iteration per partition and one
// @inner iteration per element. Every element must have the same number of
// nodes.
type BlockRotator struct {
	device *gocca.OCCADevice
	kernel *gocca.OCCAKernel
	layout *partitions.PartitionLayout
	dim    int
	npe    int

	blocks *partitions.PartitionedArray
	frames *partitions.PartitionedArray

	kMem, blkMem, blkOffsets, frmMem, frmOffsets *gocca.OCCAMemory
}

func NewBlockRotator(device *gocca.OCCADevice, layout *partitions.PartitionLayout, dim, nodesPerElement int) (*BlockRotator, error) {
	if dim != 2 && dim != 3 {
		return nil, fmt.Errorf("unsupported dimension %d", dim)
	}
	if layout.TotalElements == 0 {
		return nil, fmt.Errorf("empty partition layout")
	}
	ndof := dim * nodesPerElement
	br := &BlockRotator{
		device: device,
		layout: layout,
		dim:    dim,
		npe:    nodesPerElement,
		blocks: partitions.AllocatePartitionedArray(layout, ndof*ndof),
		frames: partitions.AllocatePartitionedArray(layout, nodesPerElement*dim*dim),
	}

	source := br.preamble() + kernelBody
	var err error
	if device.Mode() == "OpenMP" {
		props := gocca.JsonParse(`{"compiler_flags": "-O3"}`)
		defer props.Free()
		br.kernel, err = device.BuildKernelFromString(source, kernelName, props)
	} else {
		br.kernel, err = device.BuildKernelFromString(source, kernelName, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build kernel %s: %w", kernelName, err)
	}

	k := make([]int64, layout.NumPartitions)
	for i, n := range layout.KCounts() {
		k[i] = int64(n)
	}
	br.kMem = device.Malloc(int64(len(k)*8), unsafe.Pointer(&k[0]), nil)
	br.blkMem, br.blkOffsets = allocate(device, br.blocks)
	br.frmMem, br.frmOffsets = allocate(device, br.frames)
	return br, nil
}

func allocate(device *gocca.OCCADevice, pa *partitions.PartitionedArray) (data, offsets *gocca.OCCAMemory) {
	data = device.Malloc(int64(pa.AllocatedSize*8), unsafe.Pointer(&pa.GlobalData[0]), nil)
	off := make([]int64, len(pa.Offsets))
	for i, o := range pa.Offsets {
		off[i] = int64(o)
	}
	offsets = device.Malloc(int64(len(off)*8), unsafe.Pointer(&off[0]), nil)
	return
}

func (br *BlockRotator) preamble() string {
	var sb strings.Builder
	sb.WriteString("typedef double real_t;\n")
	sb.WriteString("typedef long int_t;\n")
	sb.WriteString("#define REAL_ZERO 0.0\n")
	fmt.Fprintf(&sb, "#define NPART %d\n", br.layout.NumPartitions)
	fmt.Fprintf(&sb, "#define KpartMax %d\n", br.layout.KpartMax)
	fmt.Fprintf(&sb, "#define DIM %d\n", br.dim)
	fmt.Fprintf(&sb, "#define NPE %d\n", br.npe)
	fmt.Fprintf(&sb, "#define NDOF %d\n", br.dim*br.npe)
	return sb.String()
}

// Rotate rotates blocks[k] in place with the packed frames of element k, as
// produced by RotationDofTerm.ElementFrames. Both slices are indexed by
// global element.
func (br *BlockRotator) Rotate(blocks []*mat.Dense, frames [][]float64) error {
	n := br.layout.TotalElements
	if len(blocks) != n || len(frames) != n {
		return fmt.Errorf("layout has %d elements, got %d blocks and %d frame sets",
			n, len(blocks), len(frames))
	}
	ndof := br.dim * br.npe
	for k, b := range blocks {
		if r, c := b.Dims(); r != ndof || c != ndof {
			return fmt.Errorf("element %d block is %dx%d, expected %dx%d", k, r, c, ndof, ndof)
		}
	}

	packed, err := partitions.PackPartitioned(br.layout, ndof*ndof, func(k int) []float64 {
		return mat.DenseCopyOf(blocks[k]).RawMatrix().Data
	})
	if err != nil {
		return err
	}
	copy(br.blocks.GlobalData, packed.GlobalData)
	packed, err = partitions.PackPartitioned(br.layout, br.npe*br.dim*br.dim, func(k int) []float64 {
		return frames[k]
	})
	if err != nil {
		return err
	}
	copy(br.frames.GlobalData, packed.GlobalData)

	bytes := int64(br.blocks.AllocatedSize * 8)
	br.blkMem.CopyFrom(unsafe.Pointer(&br.blocks.GlobalData[0]), bytes)
	br.frmMem.CopyFrom(unsafe.Pointer(&br.frames.GlobalData[0]), int64(br.frames.AllocatedSize*8))

	if err = br.kernel.RunWithArgs(br.kMem, br.blkMem, br.blkOffsets, br.frmMem, br.frmOffsets); err != nil {
		return fmt.Errorf("kernel execution failed: %w", err)
	}
	br.device.Finish()

	br.blkMem.CopyTo(unsafe.Pointer(&br.blocks.GlobalData[0]), bytes)
	partitions.UnpackPartitioned(br.layout, br.blocks, func(k int, values []float64) {
		dst := blocks[k]
		for i := 0; i < ndof; i++ {
			dst.SetRow(i, values[i*ndof:(i+1)*ndof])
		}
	})
	return nil
}

// Free releases the kernel and device memory
func (br *BlockRotator) Free() {
	if br.kernel != nil {
		br.kernel.Free()
	}
	for _, mem := range []*gocca.OCCAMemory{br.kMem, br.blkMem, br.blkOffsets, br.frmMem, br.frmOffsets} {
		if mem != nil {
			mem.Free()
		}
	}
}
