package vm

import (
	"github.com/kilnjinja/kiln/compiler"
	"github.com/kilnjinja/kiln/value"
)

// Render compiles templateName through host, resolves its `{% extends %}`
// chain if it has one, and runs the root template's body with vars bound
// into the root scope — the entry point environment.go's GetTemplate/Render
// methods call, since blockChain/blockIdx are unexported VM fields and only
// this package can populate them from a resolved inheritance chain.
func Render(host Host, templateName string, vars map[string]value.Value) (string, error) {
	bc, err := host.Compile(templateName)
	if err != nil {
		return "", err
	}

	chain := []*compiler.Bytecode{bc}
	cur := bc
	for {
		parentName, ok, err := extendsTarget(host, templateName, cur)
		if err != nil {
			return "", err
		}
		if !ok {
			break
		}
		parent, err := host.Compile(parentName)
		if err != nil {
			return "", err
		}
		chain = append(chain, parent)
		cur = parent
	}

	v := New(host, templateName)
	v.Globals(vars)
	if len(chain) > 1 {
		v.blockChain = map[string][]*compiler.BlockDef{}
		for _, b := range chain {
			for _, blk := range b.Blocks {
				v.blockChain[blk.Name] = append(v.blockChain[blk.Name], blk)
			}
		}
	}
	return v.Run(chain[len(chain)-1])
}

// extendsTarget resolves cur's extends target, if any: a constant name from
// the string pool, or — for `{% extends some_expr %}` — by evaluating
// ExtendsInstr against a scratch VM bound to the same host.
func extendsTarget(host Host, templateName string, cur *compiler.Bytecode) (string, bool, error) {
	if cur.Extends >= 0 {
		return cur.Strings[cur.Extends], true, nil
	}
	if len(cur.ExtendsInstr) == 0 {
		return "", false, nil
	}
	scratch := New(host, templateName)
	if err := scratch.exec(cur, cur.ExtendsInstr); err != nil {
		return "", false, err
	}
	return value.ToDisplayString(scratch.pop()), true, nil
}
