package value

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// gobWire is Value's on-the-wire shape, used only by compiler.Bytecode's
// MarshalBinary/UnmarshalBinary (bytecodecache's on-disk bucket format,
// spec.md §4.8). Compiler.addConst never folds anything but a literal
// null/bool/int/float/string into a Bytecode's constant pool, so that is all
// GobEncode needs to round-trip.
type gobWire struct {
	Kind Kind
	B    bool
	I    int64
	F    float64
	S    string
}

func (v Value) GobEncode() ([]byte, error) {
	switch v.kind {
	case KindNull, KindUndefined, KindBool, KindInt, KindFloat, KindString, KindMarkup:
	default:
		return nil, fmt.Errorf("value: %s is not serializable as a compiled constant", v.kind)
	}
	var buf bytes.Buffer
	w := gobWire{Kind: v.kind, B: v.b, I: v.i, F: v.f, S: v.s}
	if err := gob.NewEncoder(&buf).Encode(&w); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v *Value) GobDecode(data []byte) error {
	var w gobWire
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&w); err != nil {
		return err
	}
	v.kind, v.b, v.i, v.f, v.s = w.Kind, w.B, w.I, w.F, w.S
	return nil
}
