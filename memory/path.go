package memory

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hupe1980/dialogmesh/core"
)

// segment is one step of a memory path: a map key or a list index.
type segment struct {
	key     string
	index   int
	isIndex bool
}

func (s segment) mapKey() string {
	if s.isIndex {
		return strconv.Itoa(s.index)
	}
	return s.key
}

// parsePath splits a relative path such as `a.b[0]['c d'].e` into segments.
func parsePath(path string) ([]segment, error) {
	var (
		segs []segment
		cur  strings.Builder
	)

	flush := func(allowEmpty bool) error {
		if cur.Len() == 0 {
			if allowEmpty {
				return nil
			}
			return fmt.Errorf("%w: empty segment in %q", core.ErrInvalidPath, path)
		}
		segs = append(segs, segment{key: cur.String()})
		cur.Reset()
		return nil
	}

	for i := 0; i < len(path); i++ {
		c := path[i]
		switch c {
		case '.':
			// A dot directly after a bracket closes nothing new.
			if err := flush(i > 0 && path[i-1] == ']'); err != nil {
				return nil, err
			}
		case '[':
			if err := flush(true); err != nil {
				return nil, err
			}
			end := strings.IndexByte(path[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated bracket in %q", core.ErrInvalidPath, path)
			}
			inner := path[i+1 : i+end]
			if q := len(inner); q >= 2 && (inner[0] == '\'' || inner[0] == '"') {
				if inner[q-1] != inner[0] {
					return nil, fmt.Errorf("%w: unbalanced quote in %q", core.ErrInvalidPath, path)
				}
				segs = append(segs, segment{key: inner[1 : q-1]})
			} else if n, err := strconv.Atoi(inner); err == nil && n >= 0 {
				segs = append(segs, segment{index: n, isIndex: true})
			} else if inner != "" {
				segs = append(segs, segment{key: inner})
			} else {
				return nil, fmt.Errorf("%w: empty brackets in %q", core.ErrInvalidPath, path)
			}
			i += end
		default:
			cur.WriteByte(c)
		}
	}

	if err := flush(len(segs) > 0 && strings.HasSuffix(path, "]")); err != nil {
		return nil, err
	}
	return segs, nil
}

func child(container core.Value, seg segment) (core.Value, bool) {
	if m, ok := container.AsMap(); ok {
		return m.Get(seg.mapKey())
	}
	if l, ok := container.AsList(); ok && seg.isIndex {
		return l.At(seg.index)
	}
	return core.Null(), false
}

func assign(container core.Value, seg segment, v core.Value) error {
	if m, ok := container.AsMap(); ok {
		m.Set(seg.mapKey(), v)
		return nil
	}
	if l, ok := container.AsList(); ok {
		if !seg.isIndex {
			return fmt.Errorf("%w: list index expected, got %q", core.ErrInvalidPath, seg.key)
		}
		if !l.Set(seg.index, v) {
			return fmt.Errorf("%w: index %d out of range", core.ErrInvalidPath, seg.index)
		}
		return nil
	}
	return fmt.Errorf("%w: cannot write through %s", core.ErrInvalidPath, container.Kind())
}

func isContainer(v core.Value) bool {
	return v.Kind() == core.KindMap || v.Kind() == core.KindList
}

// getPath walks segs starting at root.
func getPath(root core.Value, segs []segment) (core.Value, bool) {
	cur := root
	for _, s := range segs {
		next, ok := child(cur, s)
		if !ok {
			return core.Null(), false
		}
		cur = next
	}
	return cur, true
}

// setPath writes v at segs below root, creating ordered maps for missing
// intermediate containers.
func setPath(root core.Value, segs []segment, v core.Value) error {
	if len(segs) == 0 {
		return fmt.Errorf("%w: empty path", core.ErrInvalidPath)
	}
	cur := root
	for _, s := range segs[:len(segs)-1] {
		next, ok := child(cur, s)
		if !ok || next.IsNull() {
			next = core.MapValue(core.NewMap())
			if err := assign(cur, s, next); err != nil {
				return err
			}
		} else if !isContainer(next) {
			return fmt.Errorf("%w: %q holds a %s", core.ErrInvalidPath, s.mapKey(), next.Kind())
		}
		cur = next
	}
	return assign(cur, segs[len(segs)-1], v)
}

// deletePath removes the value at segs. Missing paths are not an error.
func deletePath(root core.Value, segs []segment) error {
	if len(segs) == 0 {
		return fmt.Errorf("%w: empty path", core.ErrInvalidPath)
	}
	parent, ok := getPath(root, segs[:len(segs)-1])
	if !ok {
		return nil
	}
	last := segs[len(segs)-1]
	if m, ok := parent.AsMap(); ok {
		m.Delete(last.mapKey())
		return nil
	}
	if l, ok := parent.AsList(); ok && last.isIndex {
		l.RemoveAt(last.index)
	}
	return nil
}
