package vm

import "github.com/kilnjinja/kiln/value"

// loopRecord tracks one active `{% for %}` loop's iteration state, backing
// the `loop` namespace spec.md names (index/index0/first/last/length/
// revindex/revindex0/previtem/nextitem/cycle/depth) and the break/continue
// targets BREAK/CONTINUE jump to.
type loopRecord struct {
	items    []value.Value
	pos      int // index of the item about to be yielded
	iterated bool
	depth    int // nesting depth, for the `loop.depth`/`loop.depth0` fields of recursive loops
	targets  []string
}

func (l *loopRecord) exhausted() bool { return l.pos >= len(l.items) }

// next advances the loop, returning the current item(s) to bind.
func (l *loopRecord) next() value.Value {
	v := l.items[l.pos]
	l.pos++
	l.iterated = true
	return v
}

// namespace builds the `loop` variable visible inside the loop body.
func (l *loopRecord) namespace() value.Value {
	d := value.NewDict()
	idx0 := l.pos - 1
	n := len(l.items)
	d.Set("index", value.Int(int64(idx0+1)))
	d.Set("index0", value.Int(int64(idx0)))
	d.Set("revindex", value.Int(int64(n-idx0)))
	d.Set("revindex0", value.Int(int64(n-idx0-1)))
	d.Set("first", value.Bool(idx0 == 0))
	d.Set("last", value.Bool(idx0 == n-1))
	d.Set("length", value.Int(int64(n)))
	d.Set("depth", value.Int(int64(l.depth+1)))
	d.Set("depth0", value.Int(int64(l.depth)))
	if idx0 > 0 {
		d.Set("previtem", l.items[idx0-1])
	} else {
		d.Set("previtem", value.FromUndefined(value.NewUndefined("loop.previtem", value.PolicyLenient)))
	}
	if idx0 < n-1 {
		d.Set("nextitem", l.items[idx0+1])
	} else {
		d.Set("nextitem", value.FromUndefined(value.NewUndefined("loop.nextitem", value.PolicyLenient)))
	}
	pos := idx0
	cycle := &value.Callable{
		Name: "cycle", Kind: value.CallableFunction,
		Native: func(args []value.Value, _ map[string]value.Value) (value.Value, error) {
			if len(args) == 0 {
				return value.Null, nil
			}
			return args[pos%len(args)], nil
		},
	}
	d.Set("cycle", value.FromCallable(cycle))
	return value.FromDict(d)
}
