package kcompile

// Color is the execution role of a node inside a subgraph. Pull nodes form
// an in-tree that is pulled from, push nodes form an out-tree that is pushed
// into, and a computation node is the pivot joining both.
type Color int

const (
	// ColorNone marks a linear node whose role is decided by its neighbors.
	ColorNone Color = iota
	ColorPull
	ColorPush
	ColorComp
	ColorHoff
)

func (c Color) String() string {
	switch c {
	case ColorPull:
		return "pull"
	case ColorPush:
		return "push"
	case ColorComp:
		return "comp"
	case ColorHoff:
		return "handoff"
	default:
		return "none"
	}
}

// nodeColor seeds a node's color from its degree.
func nodeColor(isHandoff bool, in, out int) Color {
	if isHandoff {
		return ColorHoff
	}
	switch {
	case in == 0 && out == 0:
		return ColorNone
	case out == 0:
		return ColorPush
	case in == 0:
		return ColorPull
	case in == 1 && out == 1:
		return ColorNone
	case out == 1:
		return ColorPull
	case in == 1:
		return ColorPush
	default:
		return ColorComp
	}
}

// inferColor derives a colorless endpoint's color from the other endpoint.
// asSrc is true when the colorless node is the edge's source.
//
//	Pull -> Pull
//	Push -> Push
//	Pull -> [Comp] -> Push
//	Push -> [Hoff] -> Pull
func inferColor(neighbor Color, asSrc bool) Color {
	switch neighbor {
	case ColorComp:
		if asSrc {
			return ColorPull
		}
		return ColorPush
	case ColorHoff:
		if asSrc {
			return ColorPush
		}
		return ColorPull
	default:
		return neighbor
	}
}

// canConnect reports whether an edge from a src-colored node to a
// dst-colored node may be internal to a subgraph.
func canConnect(src, dst Color) bool {
	if src == ColorHoff || dst == ColorHoff {
		return false
	}
	switch src {
	case ColorNone:
		return dst == ColorNone
	case ColorPull:
		return dst == ColorPull || dst == ColorComp || dst == ColorPush
	case ColorComp, ColorPush:
		return dst == ColorPush
	}
	return false
}
