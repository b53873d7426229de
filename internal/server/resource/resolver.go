package resource

import (
	"strings"
)

// SplitPath splits a request path into its non-empty segments.
func SplitPath(path string) []string {
	var out []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Reduce resolves segments against table into exactly one resource. Each new
// resource is combined with the top of the stack and the result is combined
// further leftwards; pairs without a combination stay stacked. Anything but a
// single resource at the end is an error.
func Reduce(table []Pattern, segments []string) (Resource, error) {
	var stack []Resource

	for _, seg := range segments {
		next, ok := Match(table, seg)
		if !ok {
			return nil, notFoundPath(seg, "no resource matches this segment")
		}

	combine:
		for len(stack) > 0 {
			top := stack[len(stack)-1]
			out := Combine(top, next)
			switch out.Kind {
			case Combined:
				stack = stack[:len(stack)-1]
				next = out.Resource
			case Incompatible:
				return nil, illegalPath(seg, out.Err.Error())
			default:
				break combine
			}
		}
		stack = append(stack, next)
	}

	switch len(stack) {
	case 0:
		return nil, notFoundPath("", "empty path")
	case 1:
		return stack[0], nil
	}
	return nil, illegalPath(stack[len(stack)-1].URIPart(), "segments remain after reduction")
}
