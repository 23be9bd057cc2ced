// Package compiler turns an optimized ast.Template into a Bytecode object
// for the vm package, per spec.md §4.4. Opcode dispatch is modeled on the
// generic fetch-decode-switch idiom found across other_examples' stack
// machines; pool/instruction layout is grounded on the teacher's
// runtime/evaluator.go call sites (the set of operations it performs while
// walking the AST becomes the opcode set here, since neither teacher
// compiles to bytecode — this package is net new per spec.md §4.4).
package compiler

// Op enumerates the bytecode instruction set from spec.md §4.4.
type Op uint8

const (
	OpLoadConst  Op = iota // operand: const pool index
	OpLoadString           // operand: string pool index
	OpLoadVar              // operand: name pool index
	OpStoreVar             // operand: name pool index
	OpOutput               // operand: n values to pop
	OpBinOp                // operand: BinOpKind
	OpUnOp                 // operand: UnaryOpKind
	OpCmp                  // A: number of chain links N; B: index into Bytecode.CompareChains; stack holds [first, right1..rightN], consumed, bool pushed
	OpCall                 // A: arg count (stack already holds callee then args); B: index into Bytecode.ArgNames, or -1 if purely positional
	OpFilter                // A: name pool index; B: extra-arg count (stack holds [target, arg1..argN]); C: index into Bytecode.ArgNames, or -1
	OpTest                  // A: name pool index; B: extra-arg count (stack holds [target, arg1..argN]); C: index into Bytecode.ArgNames, or -1; `is not` compiles as TEST followed by UN_OP NOT
	OpGetattr               // operand: name pool index
	OpGetitem
	OpSlice
	OpJump
	OpJumpIfFalse
	OpJumpIfTrue
	OpJumpIfFalseNoPop // `and`'s short-circuit: if TOS is falsy, leave it and jump; else pop and fall through
	OpJumpIfTrueNoPop  // `or`'s short-circuit: if TOS is truthy, leave it and jump; else pop and fall through
	OpForIter          // operand: jump target on exhaustion
	OpPushScope
	OpPopScope
	OpEnterLoop // operands: A = first target name's name pool index, B = target count (tuple unpacking), C = 1 if recursive; pushes loop var record
	OpExitLoop
	OpMakeList  // operand: n
	OpMakeDict  // operand: n entries (2n stack values)
	OpMakeTuple // operand: n
	OpInclude   // pops the template name off the stack; operand A: flag bits (1 ignore missing, 2 with context, 4 only)
	OpExtends   // operand: string pool index
	OpBlockRef  // operand: name pool index
	OpMacroDef  // operand: index into Bytecode.Macros
	OpCallerCapture
	OpBreak    // operand: jump target past the enclosing loop (and its else-body)
	OpContinue // operand: jump target back to the enclosing loop's FOR_ITER
	OpDup
	OpPop
	OpImportModule // pops the template name off the stack; operand A: 1 for with-context; pushes the imported template's export namespace
	OpSetattr      // stack holds [value, target]; pops target then value, sets target.Name = value (A: name pool index); namespaces are the only mutable attribute target per spec.md's namespace() builtin
	OpCaptureStart // pushes a fresh output buffer, for block-form set / filter-block / call-block bodies
	OpCaptureEnd   // pops the active output buffer and pushes its contents as a string value
	OpLoadUndefined // operand: name pool index; pushes a fresh Undefined carrying that name under the environment's policy
	OpAutoescapeEnter // pops a bool off the value stack, saves the current autoescape flag, and sets it to the popped value
	OpAutoescapeExit  // restores the autoescape flag saved by the matching OpAutoescapeEnter
	OpEnd
)

var opNames = map[Op]string{
	OpLoadConst: "LOAD_CONST", OpLoadString: "LOAD_STRING", OpLoadVar: "LOAD_VAR",
	OpStoreVar: "STORE_VAR", OpOutput: "OUTPUT", OpBinOp: "BIN_OP", OpUnOp: "UN_OP",
	OpCmp: "CMP", OpCall: "CALL", OpFilter: "FILTER", OpTest: "TEST",
	OpGetattr: "GETATTR", OpGetitem: "GETITEM", OpSlice: "SLICE",
	OpJump: "JUMP", OpJumpIfFalse: "JUMP_IF_FALSE", OpJumpIfTrue: "JUMP_IF_TRUE",
	OpJumpIfFalseNoPop: "JUMP_IF_FALSE_NOPOP", OpJumpIfTrueNoPop: "JUMP_IF_TRUE_NOPOP",
	OpForIter:          "FOR_ITER", OpPushScope: "PUSH_SCOPE", OpPopScope: "POP_SCOPE",
	OpEnterLoop: "ENTER_LOOP", OpExitLoop: "EXIT_LOOP",
	OpMakeList: "MAKE_LIST", OpMakeDict: "MAKE_DICT", OpMakeTuple: "MAKE_TUPLE",
	OpInclude: "INCLUDE", OpExtends: "EXTENDS", OpBlockRef: "BLOCK_REF",
	OpMacroDef: "MACRO_DEF", OpCallerCapture: "CALLER_CAPTURE",
	OpBreak: "BREAK", OpContinue: "CONTINUE", OpDup: "DUP", OpPop: "POP",
	OpImportModule: "IMPORT_MODULE", OpSetattr: "SETATTR",
	OpCaptureStart: "CAPTURE_START", OpCaptureEnd: "CAPTURE_END",
	OpLoadUndefined: "LOAD_UNDEFINED",
	OpAutoescapeEnter: "AUTOESCAPE_ENTER", OpAutoescapeExit: "AUTOESCAPE_EXIT", OpEnd: "END",
}

func (op Op) String() string {
	if n, ok := opNames[op]; ok {
		return n
	}
	return "UNKNOWN"
}

// Instr is one bytecode instruction: an opcode plus up to three small
// integer operands (pool indices, jump offsets, or packed flags) and the
// source line it was compiled from, per spec.md §4.4 "every instruction
// records the source line for error reporting."
type Instr struct {
	Op   Op
	A, B, C int32
	Line int
}
