package classfile

import "github.com/panbanda/relocate/pkg/reference"

// Opcode is a JVM instruction opcode. Short forms (iload_0, ldc_w, goto_w
// and friends) are folded into their general form by decoders.
type Opcode uint8

const (
	NOP Opcode = iota
	ACONST_NULL
	ICONST_M1
	ICONST_0
	ICONST_1
	ICONST_2
	ICONST_3
	ICONST_4
	ICONST_5
	LCONST_0
	LCONST_1
	FCONST_0
	FCONST_1
	FCONST_2
	DCONST_0
	DCONST_1
	BIPUSH
	SIPUSH
	LDC
)

const (
	ILOAD Opcode = 21 + iota
	LLOAD
	FLOAD
	DLOAD
	ALOAD
)

const (
	IALOAD Opcode = 46 + iota
	LALOAD
	FALOAD
	DALOAD
	AALOAD
	BALOAD
	CALOAD
	SALOAD
	ISTORE
	LSTORE
	FSTORE
	DSTORE
	ASTORE
)

const (
	IASTORE Opcode = 79 + iota
	LASTORE
	FASTORE
	DASTORE
	AASTORE
	BASTORE
	CASTORE
	SASTORE
	POP
	POP2
	DUP
	DUP_X1
	DUP_X2
	DUP2
	DUP2_X1
	DUP2_X2
	SWAP
	IADD
	LADD
	FADD
	DADD
	ISUB
	LSUB
	FSUB
	DSUB
	IMUL
	LMUL
	FMUL
	DMUL
	IDIV
	LDIV
	FDIV
	DDIV
	IREM
	LREM
	FREM
	DREM
	INEG
	LNEG
	FNEG
	DNEG
	ISHL
	LSHL
	ISHR
	LSHR
	IUSHR
	LUSHR
	IAND
	LAND
	IOR
	LOR
	IXOR
	LXOR
	IINC
	I2L
	I2F
	I2D
	L2I
	L2F
	L2D
	F2I
	F2L
	F2D
	D2I
	D2L
	D2F
	I2B
	I2C
	I2S
	LCMP
	FCMPL
	FCMPG
	DCMPL
	DCMPG
	IFEQ
	IFNE
	IFLT
	IFGE
	IFGT
	IFLE
	IF_ICMPEQ
	IF_ICMPNE
	IF_ICMPLT
	IF_ICMPGE
	IF_ICMPGT
	IF_ICMPLE
	IF_ACMPEQ
	IF_ACMPNE
	GOTO
	JSR
	RET
	TABLESWITCH
	LOOKUPSWITCH
	IRETURN
	LRETURN
	FRETURN
	DRETURN
	ARETURN
	RETURN
	GETSTATIC
	PUTSTATIC
	GETFIELD
	PUTFIELD
	INVOKEVIRTUAL
	INVOKESPECIAL
	INVOKESTATIC
	INVOKEINTERFACE
	INVOKEDYNAMIC
	NEW
	NEWARRAY
	ANEWARRAY
	ARRAYLENGTH
	ATHROW
	CHECKCAST
	INSTANCEOF
	MONITORENTER
	MONITOREXIT
	_ // wide
	MULTIANEWARRAY
	IFNULL
	IFNONNULL
)

var opcodeNames = map[Opcode]string{
	NOP: "nop", ACONST_NULL: "aconst_null", ICONST_M1: "iconst_m1", ICONST_0: "iconst_0",
	ICONST_1: "iconst_1", ICONST_2: "iconst_2", ICONST_3: "iconst_3", ICONST_4: "iconst_4",
	ICONST_5: "iconst_5", LCONST_0: "lconst_0", LCONST_1: "lconst_1", FCONST_0: "fconst_0",
	FCONST_1: "fconst_1", FCONST_2: "fconst_2", DCONST_0: "dconst_0", DCONST_1: "dconst_1",
	BIPUSH: "bipush", SIPUSH: "sipush", LDC: "ldc",
	ILOAD: "iload", LLOAD: "lload", FLOAD: "fload", DLOAD: "dload", ALOAD: "aload",
	IALOAD: "iaload", LALOAD: "laload", FALOAD: "faload", DALOAD: "daload", AALOAD: "aaload",
	BALOAD: "baload", CALOAD: "caload", SALOAD: "saload",
	ISTORE: "istore", LSTORE: "lstore", FSTORE: "fstore", DSTORE: "dstore", ASTORE: "astore",
	IASTORE: "iastore", LASTORE: "lastore", FASTORE: "fastore", DASTORE: "dastore",
	AASTORE: "aastore", BASTORE: "bastore", CASTORE: "castore", SASTORE: "sastore",
	POP: "pop", POP2: "pop2", DUP: "dup", DUP_X1: "dup_x1", DUP_X2: "dup_x2", DUP2: "dup2",
	DUP2_X1: "dup2_x1", DUP2_X2: "dup2_x2", SWAP: "swap",
	IADD: "iadd", LADD: "ladd", FADD: "fadd", DADD: "dadd", ISUB: "isub", LSUB: "lsub",
	FSUB: "fsub", DSUB: "dsub", IMUL: "imul", LMUL: "lmul", FMUL: "fmul", DMUL: "dmul",
	IDIV: "idiv", LDIV: "ldiv", FDIV: "fdiv", DDIV: "ddiv", IREM: "irem", LREM: "lrem",
	FREM: "frem", DREM: "drem", INEG: "ineg", LNEG: "lneg", FNEG: "fneg", DNEG: "dneg",
	ISHL: "ishl", LSHL: "lshl", ISHR: "ishr", LSHR: "lshr", IUSHR: "iushr", LUSHR: "lushr",
	IAND: "iand", LAND: "land", IOR: "ior", LOR: "lor", IXOR: "ixor", LXOR: "lxor",
	IINC: "iinc", I2L: "i2l", I2F: "i2f", I2D: "i2d", L2I: "l2i", L2F: "l2f", L2D: "l2d",
	F2I: "f2i", F2L: "f2l", F2D: "f2d", D2I: "d2i", D2L: "d2l", D2F: "d2f",
	I2B: "i2b", I2C: "i2c", I2S: "i2s", LCMP: "lcmp", FCMPL: "fcmpl", FCMPG: "fcmpg",
	DCMPL: "dcmpl", DCMPG: "dcmpg",
	IFEQ: "ifeq", IFNE: "ifne", IFLT: "iflt", IFGE: "ifge", IFGT: "ifgt", IFLE: "ifle",
	IF_ICMPEQ: "if_icmpeq", IF_ICMPNE: "if_icmpne", IF_ICMPLT: "if_icmplt",
	IF_ICMPGE: "if_icmpge", IF_ICMPGT: "if_icmpgt", IF_ICMPLE: "if_icmple",
	IF_ACMPEQ: "if_acmpeq", IF_ACMPNE: "if_acmpne", GOTO: "goto", JSR: "jsr", RET: "ret",
	TABLESWITCH: "tableswitch", LOOKUPSWITCH: "lookupswitch",
	IRETURN: "ireturn", LRETURN: "lreturn", FRETURN: "freturn", DRETURN: "dreturn",
	ARETURN: "areturn", RETURN: "return",
	GETSTATIC: "getstatic", PUTSTATIC: "putstatic", GETFIELD: "getfield", PUTFIELD: "putfield",
	INVOKEVIRTUAL: "invokevirtual", INVOKESPECIAL: "invokespecial",
	INVOKESTATIC: "invokestatic", INVOKEINTERFACE: "invokeinterface",
	INVOKEDYNAMIC: "invokedynamic", NEW: "new", NEWARRAY: "newarray", ANEWARRAY: "anewarray",
	ARRAYLENGTH: "arraylength", ATHROW: "athrow", CHECKCAST: "checkcast",
	INSTANCEOF: "instanceof", MONITORENTER: "monitorenter", MONITOREXIT: "monitorexit",
	MULTIANEWARRAY: "multianewarray", IFNULL: "ifnull", IFNONNULL: "ifnonnull",
}

var opcodesByName = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opcodeNames))
	for op, name := range opcodeNames {
		m[name] = op
	}
	return m
}()

func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return "invalid"
}

// ParseOpcode looks an opcode up by mnemonic.
func ParseOpcode(name string) (Opcode, bool) {
	op, ok := opcodesByName[name]
	return op, ok
}

// IsJump reports whether op transfers control to Insn.Target.
func (op Opcode) IsJump() bool {
	return (op >= IFEQ && op <= JSR) || op == IFNULL || op == IFNONNULL
}

// EndsBlock reports whether control never falls through op.
func (op Opcode) EndsBlock() bool {
	switch op {
	case GOTO, RET, TABLESWITCH, LOOKUPSWITCH, ATHROW,
		IRETURN, LRETURN, FRETURN, DRETURN, ARETURN, RETURN:
		return true
	}
	return false
}

// Label names a position in an instruction list.
type Label string

// Insn is one instruction. Which operand fields are meaningful depends on Op.
type Insn struct {
	Op     Opcode
	Labels []Label
	Frame  *Frame

	// Var is the local slot of load, store, ret and iinc.
	Var int
	// Operand is the immediate of bipush, sipush and newarray, the increment
	// of iinc, or the dimension count of multianewarray.
	Operand int
	// Type is the operand of new, anewarray, checkcast, instanceof and
	// multianewarray: an internal name or an array descriptor.
	Type      string
	Field     reference.FieldRef
	Method    reference.MethodRef
	Interface bool
	Dynamic   *Dynamic
	Const     Constant
	Target    Label
	Targets   []Label
	Keys      []int
	Default   Label
}

// TryCatch is an exception table entry.
type TryCatch struct {
	Start, End, Handler Label
	Type                string // empty for finally
	Annotations         Annotations
}

// LocalVariable is a LocalVariableTable entry merged with its
// LocalVariableTypeTable signature.
type LocalVariable struct {
	Name       string
	Descriptor string
	Signature  string
	Index      int
	Start, End Label
}

// Code is a method body.
type Code struct {
	MaxStack  int
	MaxLocals int
	Insns     []Insn
	TryCatch  []TryCatch
	Locals    []LocalVariable
	// LocalAnnotations holds local variable type annotations.
	LocalAnnotations Annotations
}

// FrameKind is the stack map frame type.
type FrameKind uint8

const (
	FrameFull FrameKind = iota
	FrameSame
	FrameSame1
	FrameAppend
	FrameChop
)

// VerificationKind is the verification_type_info tag.
type VerificationKind uint8

const (
	VTop VerificationKind = iota
	VInteger
	VFloat
	VDouble
	VLong
	VNull
	VUninitializedThis
	VObject
	VUninitialized
)

// VerificationType is a frame slot. Class is set for VObject.
type VerificationType struct {
	Kind  VerificationKind
	Class string
}

// IsWide reports whether the slot holds a long or double.
func (v VerificationType) IsWide() bool { return v.Kind == VLong || v.Kind == VDouble }

// Frame is a stack map frame attached to the instruction it describes.
type Frame struct {
	Kind   FrameKind
	Locals []VerificationType
	Stack  []VerificationType
	// Chop is the number of locals removed by a chop frame.
	Chop int
}
