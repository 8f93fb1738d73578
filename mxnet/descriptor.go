package mxnet

import (
	"slices"
	"strings"
)

// DataDesc describes one named input of a model: its shape, layout and
// element type. The layout string assigns a role to each axis ("NCHW",
// "NT", ...); the character 'N' marks the batch axis. A DataDesc with no
// 'N' in its layout has no batch axis.
type DataDesc struct {
	// Name is the input name, unique within a descriptor set.
	Name string

	// Shape holds the extent of each axis, in order.
	Shape []int64

	// Layout assigns one role character per axis, e.g. "NCHW". A layout
	// without 'N' means the input has no batch axis.
	Layout string

	// DType is the element type. The zero value is DTypeFloat32.
	DType DType
}

// BatchAxis returns the index of the batch axis, or -1 if the layout does
// not designate one.
func (d DataDesc) BatchAxis() int {
	return strings.IndexByte(d.Layout, batchAxisMarker)
}

// BatchExtent returns the extent of the batch axis, or 0 if the descriptor
// has no batch axis.
func (d DataDesc) BatchExtent() int64 {
	axis := d.BatchAxis()
	if axis < 0 || axis >= len(d.Shape) {
		return 0
	}
	return d.Shape[axis]
}

// shapeSansBatch returns the shape with the batch axis removed. For a
// descriptor without a batch axis it returns the shape unchanged.
func (d DataDesc) shapeSansBatch() []int64 {
	axis := d.BatchAxis()
	if axis < 0 {
		return slices.Clone(d.Shape)
	}
	return slices.Concat(d.Shape[:axis], d.Shape[axis+1:])
}

// withBatchExtent returns a copy of the descriptor with the batch axis
// extent replaced by extent. Descriptors without a batch axis are returned
// unchanged.
func (d DataDesc) withBatchExtent(extent int64) DataDesc {
	axis := d.BatchAxis()
	if axis < 0 {
		return d
	}
	shape := slices.Clone(d.Shape)
	shape[axis] = extent
	d.Shape = shape
	return d
}

// elementsPerBatch returns the number of elements in one batch element,
// i.e. the product of all non-batch axis extents.
func (d DataDesc) elementsPerBatch() int64 {
	n := int64(1)
	for _, dim := range d.shapeSansBatch() {
		n *= dim
	}
	return n
}

func (d DataDesc) validate() error {
	if d.Name == "" {
		return shapeErrorf("descriptor name must not be empty")
	}
	if len(d.Shape) == 0 {
		return shapeErrorf("descriptor %q has an empty shape", d.Name)
	}
	for i, dim := range d.Shape {
		if dim <= 0 {
			return shapeErrorf("descriptor %q has non-positive extent %d at axis %d", d.Name, dim, i)
		}
	}
	if len(d.Layout) != len(d.Shape) {
		return shapeErrorf("descriptor %q layout %q does not match rank %d", d.Name, d.Layout, len(d.Shape))
	}
	if strings.Count(d.Layout, string(batchAxisMarker)) > 1 {
		return shapeErrorf("descriptor %q layout %q has more than one batch axis", d.Name, d.Layout)
	}
	return nil
}

// normalizeDescriptors validates a descriptor set and canonicalizes it for
// binding: descriptors must have unique names, descriptors that designate a
// batch axis must agree on both the axis index and its extent, and if no
// descriptor designates one, a leading batch axis of extent 1 is prepended
// to every descriptor (layout gains a leading 'N'). The batch axis extent
// of the returned set is always normalized to 1.
//
// It returns the canonical set and the shared batch axis index.
func normalizeDescriptors(descs []DataDesc) ([]DataDesc, int, error) {
	if len(descs) == 0 {
		return nil, 0, shapeErrorf("descriptor set must not be empty")
	}

	names := make(map[string]struct{}, len(descs))
	for _, d := range descs {
		if err := d.validate(); err != nil {
			return nil, 0, err
		}
		if _, dup := names[d.Name]; dup {
			return nil, 0, shapeErrorf("duplicate descriptor name %q", d.Name)
		}
		names[d.Name] = struct{}{}
	}

	batchAxis := -1
	batchExtent := int64(0)
	for _, d := range descs {
		axis := d.BatchAxis()
		if axis < 0 {
			continue
		}
		if batchAxis < 0 {
			batchAxis = axis
			batchExtent = d.Shape[axis]
			continue
		}
		if axis != batchAxis {
			return nil, 0, shapeErrorf("descriptor %q designates batch axis %d, others use axis %d", d.Name, axis, batchAxis)
		}
		if d.Shape[axis] != batchExtent {
			return nil, 0, shapeErrorf("descriptor %q has batch extent %d, others declare %d", d.Name, d.Shape[axis], batchExtent)
		}
	}

	out := make([]DataDesc, len(descs))
	if batchAxis < 0 {
		// No descriptor names a batch axis: prepend one of extent 1 to
		// every input. This changes the logical rank of every input.
		batchAxis = 0
		for i, d := range descs {
			d.Shape = append([]int64{1}, d.Shape...)
			d.Layout = string(batchAxisMarker) + d.Layout
			out[i] = d
		}
		return out, batchAxis, nil
	}

	for i, d := range descs {
		out[i] = d.withBatchExtent(1)
	}
	return out, batchAxis, nil
}
