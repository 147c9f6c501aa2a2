package extract

import (
	"strings"

	"github.com/panbanda/relocate/pkg/classfile"
	"github.com/panbanda/relocate/pkg/diagnostic"
	"github.com/panbanda/relocate/pkg/reference"
)

// The reflection heuristic runs a small abstract interpreter over a method
// body. It tracks int, string and class constants and short constant
// arrays through the operand stack and locals, and turns recognised
// reflective lookups into references. Anything it cannot follow becomes an
// unknown value; an inconsistent stack abandons the method.

type valueKind uint8

const (
	valTop valueKind = iota
	valUnknown
	valUnknownWide
	valNull
	valInt
	valLong
	valString
	valClass
	valArray
)

// maxTrackedArray bounds the arrays the interpreter materialises.
const maxTrackedArray = 100

type value struct {
	kind valueKind
	num  int64
	str  string // string constant, or the descriptor of a class constant
	arr  *array
}

type array struct {
	elems []value
}

var (
	top         = value{kind: valTop}
	unknown     = value{kind: valUnknown}
	unknownWide = value{kind: valUnknownWide}
	null        = value{kind: valNull}
)

func intValue(n int64) value { return value{kind: valInt, num: n} }

func (v value) wide() bool { return v.kind == valUnknownWide || v.kind == valLong }

// widen forgets the constant but keeps the slot width.
func (v value) widen() value {
	switch {
	case v.kind == valTop:
		return top
	case v.wide():
		return unknownWide
	}
	return unknown
}

func unknownFor(wide bool) value {
	if wide {
		return unknownWide
	}
	return unknown
}

// unknownOfDesc returns the unknown value of a field type descriptor.
func unknownOfDesc(desc string) value {
	return unknownFor(desc == "J" || desc == "D")
}

func constantValue(k classfile.Constant) value {
	switch k.Kind {
	case classfile.ConstInt:
		return intValue(k.Int)
	case classfile.ConstLong:
		return value{kind: valLong, num: k.Int}
	case classfile.ConstString:
		return value{kind: valString, str: k.String}
	case classfile.ConstClass:
		return value{kind: valClass, str: k.Descriptor}
	}
	return unknownFor(k.IsWide())
}

type frame struct {
	locals []value
	stack  []value
}

func (f *frame) clone() *frame {
	copies := make(map[*array]*array)
	cp := func(v value) value {
		if v.arr == nil {
			return v
		}
		n, ok := copies[v.arr]
		if !ok {
			n = &array{elems: append([]value(nil), v.arr.elems...)}
			copies[v.arr] = n
		}
		v.arr = n
		return v
	}
	out := &frame{
		locals: make([]value, len(f.locals)),
		stack:  make([]value, len(f.stack)),
	}
	for i, v := range f.locals {
		out.locals[i] = cp(v)
	}
	for i, v := range f.stack {
		out.stack[i] = cp(v)
	}
	return out
}

func (f *frame) widenAll() {
	for i := range f.locals {
		f.locals[i] = f.locals[i].widen()
	}
	for i := range f.stack {
		f.stack[i] = f.stack[i].widen()
	}
}

type interpreter struct {
	c         *collector
	loc       diagnostic.Location
	maxLocals int

	cur       *frame
	atLabel   map[classfile.Label]*frame
	backJumps map[classfile.Label]bool
	// declared mirrors the locals of the stack map frames seen so far.
	declared []classfile.VerificationType
	failed   bool
}

func detectReflection(c *collector, m *classfile.Method) {
	in := &interpreter{
		c:         c,
		loc:       m.Location(),
		maxLocals: m.Code.MaxLocals,
		atLabel:   make(map[classfile.Label]*frame),
		backJumps: backJumpTargets(m.Code.Insns),
	}
	in.declared = initialLocals(m)
	in.cur = &frame{locals: in.expand(in.declared)}

	for i := range m.Code.Insns {
		insn := &m.Code.Insns[i]
		in.enter(insn)
		if in.failed {
			return
		}
		if in.cur == nil {
			continue
		}
		in.step(insn)
		if in.failed {
			return
		}
	}
}

func jumpTargets(insn *classfile.Insn) []classfile.Label {
	switch {
	case insn.Op.IsJump():
		return []classfile.Label{insn.Target}
	case insn.Op == classfile.TABLESWITCH || insn.Op == classfile.LOOKUPSWITCH:
		return append([]classfile.Label{insn.Default}, insn.Targets...)
	}
	return nil
}

// backJumpTargets returns the labels some later instruction jumps back to.
func backJumpTargets(insns []classfile.Insn) map[classfile.Label]bool {
	defined := make(map[classfile.Label]bool)
	back := make(map[classfile.Label]bool)
	for i := range insns {
		for _, l := range insns[i].Labels {
			defined[l] = true
		}
		for _, t := range jumpTargets(&insns[i]) {
			if defined[t] {
				back[t] = true
			}
		}
	}
	return back
}

func initialLocals(m *classfile.Method) []classfile.VerificationType {
	var out []classfile.VerificationType
	if !m.IsStatic() {
		out = append(out, classfile.VerificationType{Kind: classfile.VObject, Class: m.Owner})
	}
	md, _ := reference.ParseMethodDescriptor(m.Descriptor)
	for _, p := range md.Params {
		switch p {
		case "J":
			out = append(out, classfile.VerificationType{Kind: classfile.VLong})
		case "D":
			out = append(out, classfile.VerificationType{Kind: classfile.VDouble})
		default:
			out = append(out, classfile.VerificationType{Kind: classfile.VInteger})
		}
	}
	return out
}

// expand turns verification types into local slots padded to max_locals.
func (in *interpreter) expand(types []classfile.VerificationType) []value {
	var out []value
	for _, t := range types {
		switch {
		case t.Kind == classfile.VTop:
			out = append(out, top)
		case t.IsWide():
			out = append(out, unknownWide, top)
		default:
			out = append(out, unknown)
		}
	}
	for len(out) < in.maxLocals {
		out = append(out, top)
	}
	return out
}

func stackOf(types []classfile.VerificationType) []value {
	out := make([]value, 0, len(types))
	for _, t := range types {
		out = append(out, unknownFor(t.IsWide()))
	}
	return out
}

// enter merges the frames recorded for the instruction's labels, applies its
// stack map frame, and widens values that a back edge may change.
func (in *interpreter) enter(insn *classfile.Insn) {
	for _, l := range insn.Labels {
		saved, ok := in.atLabel[l]
		if !ok {
			continue
		}
		if in.cur == nil {
			in.cur = saved.clone()
		} else {
			in.merge(in.cur, saved)
		}
	}
	if insn.Frame != nil {
		in.applyFrame(insn.Frame)
	}
	if in.cur == nil {
		return
	}
	for _, l := range insn.Labels {
		if in.backJumps[l] {
			in.cur.widenAll()
			break
		}
	}
}

func (in *interpreter) applyFrame(f *classfile.Frame) {
	switch f.Kind {
	case classfile.FrameFull:
		in.declared = append([]classfile.VerificationType(nil), f.Locals...)
	case classfile.FrameAppend:
		in.declared = append(in.declared, f.Locals...)
	case classfile.FrameChop:
		n := len(in.declared) - f.Chop
		if n < 0 {
			n = 0
		}
		in.declared = in.declared[:n]
	}

	var stack []classfile.VerificationType
	if f.Kind == classfile.FrameFull || f.Kind == classfile.FrameSame1 {
		stack = f.Stack
	}
	if in.cur == nil {
		in.cur = &frame{locals: in.expand(in.declared), stack: stackOf(stack)}
		return
	}
	if len(in.cur.stack) != len(stack) {
		in.failed = true
		return
	}
	for i, t := range stack {
		if in.cur.stack[i].wide() != t.IsWide() {
			in.failed = true
			return
		}
	}
}

func (in *interpreter) merge(into, from *frame) {
	if len(into.stack) != len(from.stack) {
		in.failed = true
		return
	}
	for i := range into.stack {
		a, b := into.stack[i], from.stack[i]
		if a == b {
			continue
		}
		if a.wide() != b.wide() {
			in.failed = true
			return
		}
		into.stack[i] = a.widen()
	}
	for len(into.locals) < len(from.locals) {
		into.locals = append(into.locals, top)
	}
	for i := range into.locals {
		b := top
		if i < len(from.locals) {
			b = from.locals[i]
		}
		a := into.locals[i]
		switch {
		case a == b:
		case a.kind == valTop || b.kind == valTop || a.wide() != b.wide():
			into.locals[i] = top
		default:
			into.locals[i] = a.widen()
		}
	}
}

func (in *interpreter) branch(l classfile.Label) {
	if saved, ok := in.atLabel[l]; ok {
		in.merge(saved, in.cur)
		return
	}
	in.atLabel[l] = in.cur.clone()
}

func (in *interpreter) push(vs ...value) {
	in.cur.stack = append(in.cur.stack, vs...)
}

func (in *interpreter) pop() value {
	s := in.cur.stack
	if len(s) == 0 {
		in.failed = true
		return unknown
	}
	v := s[len(s)-1]
	in.cur.stack = s[:len(s)-1]
	return v
}

func (in *interpreter) popN(n int) {
	for i := 0; i < n; i++ {
		in.pop()
	}
}

// pop1 pops a category 1 value.
func (in *interpreter) pop1() value {
	v := in.pop()
	if v.wide() {
		in.failed = true
	}
	return v
}

// pop2 pops two words: one wide value or two narrow ones, bottom first.
func (in *interpreter) pop2() []value {
	v1 := in.pop()
	if v1.wide() {
		return []value{v1}
	}
	v2 := in.pop1()
	return []value{v2, v1}
}

func (in *interpreter) load(index int, wide bool) value {
	if index < 0 {
		in.failed = true
		return unknownFor(wide)
	}
	if index < len(in.cur.locals) {
		if v := in.cur.locals[index]; v.kind != valTop && v.wide() == wide {
			return v
		}
	}
	return unknownFor(wide)
}

func (in *interpreter) store(index int, v value) {
	if index < 0 {
		in.failed = true
		return
	}
	need := index + 1
	if v.wide() {
		need++
	}
	for len(in.cur.locals) < need {
		in.cur.locals = append(in.cur.locals, top)
	}
	if index > 0 && in.cur.locals[index-1].wide() {
		in.cur.locals[index-1] = top
	}
	in.cur.locals[index] = v
	if v.wide() {
		in.cur.locals[index+1] = top
	}
}

func (in *interpreter) newArray(count value, zero value) value {
	if count.kind != valInt || count.num < 0 || count.num > maxTrackedArray {
		return unknown
	}
	elems := make([]value, count.num)
	for i := range elems {
		elems[i] = zero
	}
	return value{kind: valArray, arr: &array{elems: elems}}
}

func arrayIndex(arr, index value) (int, bool) {
	if arr.kind != valArray || index.kind != valInt {
		return 0, false
	}
	if index.num < 0 || index.num >= int64(len(arr.arr.elems)) {
		return 0, false
	}
	return int(index.num), true
}

// newarray element types
const (
	tFloat  = 6
	tDouble = 7
	tLong   = 11
)

// conversionIsWide is indexed by op - I2L.
var conversionIsWide = [...]bool{
	true, false, true, // i2l i2f i2d
	false, false, true, // l2i l2f l2d
	false, true, true, // f2i f2l f2d
	false, true, false, // d2i d2l d2f
	false, false, false, // i2b i2c i2s
}

func (in *interpreter) step(insn *classfile.Insn) {
	op := insn.Op
	switch {
	case op == classfile.NOP:
	case op == classfile.ACONST_NULL:
		in.push(null)
	case op >= classfile.ICONST_M1 && op <= classfile.ICONST_5:
		in.push(intValue(int64(op) - int64(classfile.ICONST_0)))
	case op == classfile.LCONST_0 || op == classfile.LCONST_1:
		in.push(value{kind: valLong, num: int64(op - classfile.LCONST_0)})
	case op >= classfile.FCONST_0 && op <= classfile.FCONST_2:
		in.push(unknown)
	case op == classfile.DCONST_0 || op == classfile.DCONST_1:
		in.push(unknownWide)
	case op == classfile.BIPUSH || op == classfile.SIPUSH:
		in.push(intValue(int64(insn.Operand)))
	case op == classfile.LDC:
		in.push(constantValue(insn.Const))

	case op >= classfile.ILOAD && op <= classfile.ALOAD:
		in.push(in.load(insn.Var, op == classfile.LLOAD || op == classfile.DLOAD))
	case op >= classfile.ISTORE && op <= classfile.ASTORE:
		in.store(insn.Var, in.pop())
	case op >= classfile.IALOAD && op <= classfile.SALOAD:
		index, arr := in.pop(), in.pop()
		if i, ok := arrayIndex(arr, index); ok {
			in.push(arr.arr.elems[i])
		} else {
			in.push(unknownFor(op == classfile.LALOAD || op == classfile.DALOAD))
		}
	case op >= classfile.IASTORE && op <= classfile.SASTORE:
		v, index, arr := in.pop(), in.pop(), in.pop()
		if i, ok := arrayIndex(arr, index); ok {
			arr.arr.elems[i] = v
		}

	case op >= classfile.POP && op <= classfile.SWAP:
		in.stackOp(op)

	case op >= classfile.IADD && op <= classfile.DREM:
		in.popN(2)
		in.push(unknownFor((op-classfile.IADD)%2 == 1))
	case op >= classfile.INEG && op <= classfile.DNEG:
		in.pop()
		in.push(unknownFor((op-classfile.INEG)%2 == 1))
	case op >= classfile.ISHL && op <= classfile.LUSHR:
		in.popN(2)
		in.push(unknownFor((op-classfile.ISHL)%2 == 1))
	case op >= classfile.IAND && op <= classfile.LXOR:
		in.popN(2)
		in.push(unknownFor((op-classfile.IAND)%2 == 1))
	case op == classfile.IINC:
		in.store(insn.Var, unknown)
	case op >= classfile.I2L && op <= classfile.I2S:
		in.pop()
		in.push(unknownFor(conversionIsWide[op-classfile.I2L]))
	case op >= classfile.LCMP && op <= classfile.DCMPG:
		in.popN(2)
		in.push(unknown)

	case op >= classfile.IFEQ && op <= classfile.IFLE, op == classfile.IFNULL, op == classfile.IFNONNULL:
		in.pop()
		in.branch(insn.Target)
	case op >= classfile.IF_ICMPEQ && op <= classfile.IF_ACMPNE:
		in.popN(2)
		in.branch(insn.Target)
	case op == classfile.GOTO:
		in.branch(insn.Target)
		in.cur = nil
	case op == classfile.JSR:
		in.push(unknown)
		in.branch(insn.Target)
		in.cur = nil
	case op == classfile.TABLESWITCH || op == classfile.LOOKUPSWITCH:
		in.pop()
		for _, l := range jumpTargets(insn) {
			in.branch(l)
		}
		in.cur = nil
	case op == classfile.RET, op == classfile.ATHROW, op >= classfile.IRETURN && op <= classfile.RETURN:
		in.cur = nil

	case op == classfile.GETSTATIC:
		if v, ok := primitiveType(insn.Field); ok {
			in.push(v)
		} else {
			in.push(unknownOfDesc(insn.Field.Descriptor))
		}
	case op == classfile.PUTSTATIC:
		in.pop()
	case op == classfile.GETFIELD:
		in.pop()
		in.push(unknownOfDesc(insn.Field.Descriptor))
	case op == classfile.PUTFIELD:
		in.popN(2)
	case op >= classfile.INVOKEVIRTUAL && op <= classfile.INVOKEINTERFACE:
		in.invoke(insn)
	case op == classfile.INVOKEDYNAMIC:
		if insn.Dynamic == nil {
			in.failed = true
			return
		}
		md, err := reference.ParseMethodDescriptor(insn.Dynamic.Descriptor)
		if err != nil {
			in.failed = true
			return
		}
		in.popN(len(md.Params))
		if md.Return != "V" {
			in.push(unknownOfDesc(md.Return))
		}

	case op == classfile.NEW:
		in.push(unknown)
	case op == classfile.NEWARRAY:
		zero := intValue(0)
		switch insn.Operand {
		case tFloat:
			zero = unknown
		case tDouble:
			zero = unknownWide
		case tLong:
			zero = value{kind: valLong}
		}
		in.push(in.newArray(in.pop(), zero))
	case op == classfile.ANEWARRAY:
		in.push(in.newArray(in.pop(), null))
	case op == classfile.ARRAYLENGTH:
		if arr := in.pop(); arr.kind == valArray {
			in.push(intValue(int64(len(arr.arr.elems))))
		} else {
			in.push(unknown)
		}
	case op == classfile.CHECKCAST:
	case op == classfile.INSTANCEOF:
		in.pop()
		in.push(unknown)
	case op == classfile.MONITORENTER || op == classfile.MONITOREXIT:
		in.pop()
	case op == classfile.MULTIANEWARRAY:
		in.popN(insn.Operand)
		in.push(unknown)
	default:
		in.failed = true
	}
}

func (in *interpreter) stackOp(op classfile.Opcode) {
	switch op {
	case classfile.POP:
		in.pop1()
	case classfile.POP2:
		in.pop2()
	case classfile.DUP:
		v := in.pop1()
		in.push(v, v)
	case classfile.DUP_X1:
		v1, v2 := in.pop1(), in.pop1()
		in.push(v1, v2, v1)
	case classfile.DUP_X2:
		v1 := in.pop1()
		g2 := in.pop2()
		in.push(v1)
		in.push(g2...)
		in.push(v1)
	case classfile.DUP2:
		g := in.pop2()
		in.push(g...)
		in.push(g...)
	case classfile.DUP2_X1:
		g1 := in.pop2()
		v2 := in.pop1()
		in.push(g1...)
		in.push(v2)
		in.push(g1...)
	case classfile.DUP2_X2:
		g1 := in.pop2()
		g2 := in.pop2()
		in.push(g1...)
		in.push(g2...)
		in.push(g1...)
	case classfile.SWAP:
		v1, v2 := in.pop1(), in.pop1()
		in.push(v1, v2)
	}
}

func (in *interpreter) invoke(insn *classfile.Insn) {
	md, err := reference.ParseMethodDescriptor(insn.Method.Descriptor)
	if err != nil {
		in.failed = true
		return
	}
	args := make([]value, len(md.Params))
	for i := len(args) - 1; i >= 0; i-- {
		args[i] = in.pop()
	}
	self := unknown
	if insn.Op != classfile.INVOKESTATIC {
		self = in.pop()
	}
	if in.failed {
		return
	}
	result, ok := in.reflect(insn.Method, self, args)
	if md.Return == "V" {
		return
	}
	if !ok {
		result = unknownOfDesc(md.Return)
	}
	in.push(result)
}

var boxTypes = map[string]string{
	"java/lang/Void":      "V",
	"java/lang/Integer":   "I",
	"java/lang/Long":      "J",
	"java/lang/Float":     "F",
	"java/lang/Double":    "D",
	"java/lang/Byte":      "B",
	"java/lang/Character": "C",
	"java/lang/Short":     "S",
	"java/lang/Boolean":   "Z",
}

// primitiveType recognises Integer.TYPE and friends.
func primitiveType(f reference.FieldRef) (value, bool) {
	if f.Name != "TYPE" || f.Descriptor != "Ljava/lang/Class;" {
		return value{}, false
	}
	desc, ok := boxTypes[f.Owner]
	if !ok {
		return value{}, false
	}
	return value{kind: valClass, str: desc}, true
}

const (
	sigForName           = "forName(Ljava/lang/String;)Ljava/lang/Class;"
	sigForNameLoader     = "forName(Ljava/lang/String;ZLjava/lang/ClassLoader;)Ljava/lang/Class;"
	sigForNameModule     = "forName(Ljava/lang/Module;Ljava/lang/String;)Ljava/lang/Class;"
	sigLoadClass         = "loadClass(Ljava/lang/String;)Ljava/lang/Class;"
	sigLoadClassResolve  = "loadClass(Ljava/lang/String;Z)Ljava/lang/Class;"
	sigGetField          = "getField(Ljava/lang/String;)Ljava/lang/reflect/Field;"
	sigGetDeclaredField  = "getDeclaredField(Ljava/lang/String;)Ljava/lang/reflect/Field;"
	sigGetMethod         = "getMethod(Ljava/lang/String;[Ljava/lang/Class;)Ljava/lang/reflect/Method;"
	sigGetDeclaredMethod = "getDeclaredMethod(Ljava/lang/String;[Ljava/lang/Class;)Ljava/lang/reflect/Method;"
)

// reflect handles a recognised reflective call and returns the value it
// produces, if known.
func (in *interpreter) reflect(m reference.MethodRef, self value, args []value) (value, bool) {
	sig := m.Name + m.Descriptor
	switch m.Owner {
	case "java/lang/ClassLoader":
		switch sig {
		case sigLoadClass, sigLoadClassResolve:
			return in.resolveClass(args[0])
		}
	case "java/lang/Class":
		switch sig {
		case sigForName, sigForNameLoader:
			return in.resolveClass(args[0])
		case sigForNameModule:
			return in.resolveClass(args[1])
		case sigGetField, sigGetDeclaredField:
			in.resolveField(self, args[0])
		case sigGetMethod, sigGetDeclaredMethod:
			in.resolveMethod(self, args[0], args[1])
		}
	}
	return value{}, false
}

func (in *interpreter) resolveClass(name value) (value, bool) {
	if name.kind != valString {
		in.c.report(diagnostic.UnresolvableReflectionClass.New(in.loc))
		return value{}, false
	}
	internal := reference.InternalName(name.str)
	desc := internal
	if !strings.HasPrefix(internal, "[") {
		desc = "L" + internal + ";"
	}
	if ref, ok := reference.TypeOf(desc); ok {
		in.c.add(ref)
	}
	return value{kind: valClass, str: desc}, true
}

// classOwner returns the internal name of a non-array class constant.
func classOwner(v value) (string, bool) {
	if v.kind != valClass || !strings.HasPrefix(v.str, "L") {
		return "", false
	}
	ref, ok := reference.TypeOf(v.str)
	return ref.Name, ok
}

func (in *interpreter) resolveField(self, name value) {
	owner, ok := classOwner(self)
	if !ok || name.kind != valString {
		in.c.report(diagnostic.UnresolvableReflectionField.New(in.loc))
		return
	}
	in.c.add(reference.PartialField(owner, name.str))
}

func (in *interpreter) resolveMethod(self, name, params value) {
	owner, ok := classOwner(self)
	if !ok || name.kind != valString || params.kind != valArray {
		in.c.report(diagnostic.UnresolvableReflectionMethod.New(in.loc))
		return
	}
	var desc strings.Builder
	for _, p := range params.arr.elems {
		if p.kind != valClass {
			in.c.report(diagnostic.UnresolvableReflectionMethod.New(in.loc))
			return
		}
		desc.WriteString(p.str)
	}
	in.c.add(reference.PartialMethod(owner, name.str, desc.String()))
}
