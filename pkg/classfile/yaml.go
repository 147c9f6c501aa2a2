package classfile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"

	"github.com/panbanda/relocate/pkg/reference"
)

// YAMLExtension is the suffix of YAML class dumps inside containers.
const YAMLExtension = ".class.yaml"

// YAMLDecoder reads classes from a YAML dump format that mirrors the class
// file structure. Dumps are validated against a JSON schema first.
type YAMLDecoder struct {
	schema *jsonschema.Schema
}

// NewYAMLDecoder compiles the dump schema.
func NewYAMLDecoder() (*YAMLDecoder, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(classSchema))
	if err != nil {
		return nil, fmt.Errorf("parse class schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("classfile.schema.json", doc); err != nil {
		return nil, fmt.Errorf("add class schema: %w", err)
	}
	sch, err := c.Compile("classfile.schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile class schema: %w", err)
	}
	return &YAMLDecoder{schema: sch}, nil
}

// Extension implements Decoder.
func (d *YAMLDecoder) Extension() string { return YAMLExtension }

// Decode implements Decoder.
func (d *YAMLDecoder) Decode(data []byte, opts DecodeOptions) (*ClassFile, error) {
	if err := d.validate(data); err != nil {
		return nil, err
	}
	var yc yamlClass
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	cf, err := yc.build(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: class %s: %v", ErrMalformed, yc.Name, err)
	}
	return cf.Link(), nil
}

func (d *YAMLDecoder) validate(data []byte) error {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	js, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(js))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := d.schema.Validate(inst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

var accessNames = map[string]int{
	"public": AccPublic, "private": AccPrivate, "protected": AccProtected,
	"static": AccStatic, "final": AccFinal, "super": 0x0020, "synchronized": 0x0020,
	"volatile": 0x0040, "bridge": 0x0040, "transient": AccVarargs, "varargs": AccVarargs,
	"native": AccNative, "interface": AccInterface, "abstract": AccAbstract,
	"strict": 0x0800, "synthetic": AccSynthetic, "annotation": 0x2000,
	"enum": AccEnum, "module": 0x8000, "record": AccRecord,
}

func parseAccess(names []string) int {
	acc := 0
	for _, n := range names {
		acc |= accessNames[n]
	}
	return acc
}

type yamlClass struct {
	Version             int                   `yaml:"version"`
	Access              []string              `yaml:"access"`
	Name                string                `yaml:"name"`
	Super               string                `yaml:"super"`
	Interfaces          []string              `yaml:"interfaces"`
	Signature           string                `yaml:"signature"`
	OuterClass          string                `yaml:"outer_class"`
	NestHost            string                `yaml:"nest_host"`
	NestMembers         []string              `yaml:"nest_members"`
	PermittedSubclasses []string              `yaml:"permitted_subclasses"`
	InnerClasses        []yamlInnerClass      `yaml:"inner_classes"`
	Annotations         yamlAnnotations       `yaml:"annotations"`
	RecordComponents    []yamlRecordComponent `yaml:"record_components"`
	Fields              []yamlField           `yaml:"fields"`
	Methods             []yamlMethod          `yaml:"methods"`
}

type yamlInnerClass struct {
	Name   string   `yaml:"name"`
	Outer  string   `yaml:"outer"`
	Simple string   `yaml:"simple"`
	Access []string `yaml:"access"`
}

type yamlAnnotations struct {
	Visible       []yamlAnnotation `yaml:"visible"`
	Invisible     []yamlAnnotation `yaml:"invisible"`
	VisibleType   []yamlAnnotation `yaml:"visible_type"`
	InvisibleType []yamlAnnotation `yaml:"invisible_type"`
}

type yamlAnnotation struct {
	Type   string        `yaml:"type"`
	Values []yamlElement `yaml:"values"`
}

type yamlElement struct {
	Name      string `yaml:"name"`
	yamlValue `yaml:",inline"`
}

type yamlValue struct {
	Int        *int64          `yaml:"int"`
	Long       *int64          `yaml:"long"`
	Float      *float64        `yaml:"float"`
	Double     *float64        `yaml:"double"`
	Bool       *bool           `yaml:"bool"`
	String     *string         `yaml:"string"`
	Enum       string          `yaml:"enum"`
	Constant   string          `yaml:"constant"`
	Class      string          `yaml:"class"`
	Annotation *yamlAnnotation `yaml:"annotation"`
	Array      *[]yamlValue    `yaml:"array"`
}

type yamlRecordComponent struct {
	Name        string          `yaml:"name"`
	Descriptor  string          `yaml:"descriptor"`
	Signature   string          `yaml:"signature"`
	Annotations yamlAnnotations `yaml:"annotations"`
}

type yamlField struct {
	Access      []string        `yaml:"access"`
	Name        string          `yaml:"name"`
	Descriptor  string          `yaml:"descriptor"`
	Signature   string          `yaml:"signature"`
	Value       *yamlConstant   `yaml:"value"`
	Annotations yamlAnnotations `yaml:"annotations"`
}

type yamlParameterAnnotations struct {
	Visible   [][]yamlAnnotation `yaml:"visible"`
	Invisible [][]yamlAnnotation `yaml:"invisible"`
}

type yamlMethod struct {
	Access               []string                 `yaml:"access"`
	Name                 string                   `yaml:"name"`
	Descriptor           string                   `yaml:"descriptor"`
	Signature            string                   `yaml:"signature"`
	Exceptions           []string                 `yaml:"exceptions"`
	AnnotationDefault    *yamlValue               `yaml:"annotation_default"`
	Annotations          yamlAnnotations          `yaml:"annotations"`
	ParameterAnnotations yamlParameterAnnotations `yaml:"parameter_annotations"`
	Code                 *yamlCode                `yaml:"code"`
}

type yamlCode struct {
	MaxStack         int             `yaml:"max_stack"`
	MaxLocals        int             `yaml:"max_locals"`
	Insns            []yamlInsn      `yaml:"insns"`
	TryCatch         []yamlTryCatch  `yaml:"try_catch"`
	Locals           []yamlLocal     `yaml:"locals"`
	LocalAnnotations yamlAnnotations `yaml:"local_annotations"`
}

type yamlTryCatch struct {
	Start       string          `yaml:"start"`
	End         string          `yaml:"end"`
	Handler     string          `yaml:"handler"`
	Type        string          `yaml:"type"`
	Annotations yamlAnnotations `yaml:"annotations"`
}

type yamlLocal struct {
	Name       string `yaml:"name"`
	Descriptor string `yaml:"descriptor"`
	Signature  string `yaml:"signature"`
	Index      int    `yaml:"index"`
	Start      string `yaml:"start"`
	End        string `yaml:"end"`
}

type yamlFrame struct {
	Kind   string   `yaml:"kind"`
	Locals []string `yaml:"locals"`
	Stack  []string `yaml:"stack"`
	Chop   int      `yaml:"chop"`
}

type yamlInsn struct {
	Label     string        `yaml:"label"`
	Frame     *yamlFrame    `yaml:"frame"`
	Op        string        `yaml:"op"`
	Var       int           `yaml:"var"`
	Operand   int           `yaml:"operand"`
	Type      string        `yaml:"type"`
	Field     string        `yaml:"field"`
	Method    string        `yaml:"method"`
	Interface bool          `yaml:"interface"`
	Indy      *yamlDynamic  `yaml:"indy"`
	Const     *yamlConstant `yaml:"const"`
	Target    string        `yaml:"target"`
	Targets   []string      `yaml:"targets"`
	Keys      []int         `yaml:"keys"`
	Default   string        `yaml:"default"`
}

type yamlHandle struct {
	Kind      string `yaml:"kind"`
	Ref       string `yaml:"ref"`
	Interface bool   `yaml:"interface"`
}

type yamlDynamic struct {
	Name       string         `yaml:"name"`
	Descriptor string         `yaml:"descriptor"`
	Bootstrap  yamlHandle     `yaml:"bootstrap"`
	Args       []yamlConstant `yaml:"args"`
}

type yamlConstant struct {
	Int        *int64       `yaml:"int"`
	Long       *int64       `yaml:"long"`
	Float      *float64     `yaml:"float"`
	Double     *float64     `yaml:"double"`
	String     *string      `yaml:"string"`
	Class      string       `yaml:"class"`
	MethodType string       `yaml:"method_type"`
	Handle     *yamlHandle  `yaml:"handle"`
	Dynamic    *yamlDynamic `yaml:"dynamic"`
}

func (yc *yamlClass) build(opts DecodeOptions) (*ClassFile, error) {
	cf := &ClassFile{
		Version:             yc.Version,
		Access:              parseAccess(yc.Access),
		Name:                reference.InternalName(yc.Name),
		Super:               yc.Super,
		Interfaces:          yc.Interfaces,
		Signature:           yc.Signature,
		OuterClass:          yc.OuterClass,
		NestHost:            yc.NestHost,
		NestMembers:         yc.NestMembers,
		PermittedSubclasses: yc.PermittedSubclasses,
		Annotations:         yc.Annotations.build(),
	}
	for _, ic := range yc.InnerClasses {
		cf.InnerClasses = append(cf.InnerClasses, InnerClass{
			Name: ic.Name, Outer: ic.Outer, Simple: ic.Simple, Access: parseAccess(ic.Access),
		})
	}
	if len(yc.RecordComponents) > 0 {
		cf.Access |= AccRecord
	}
	for _, rc := range yc.RecordComponents {
		cf.RecordComponents = append(cf.RecordComponents, &RecordComponent{
			Name:        rc.Name,
			Descriptor:  rc.Descriptor,
			Signature:   rc.Signature,
			Annotations: rc.Annotations.build(),
		})
	}
	for _, f := range yc.Fields {
		field := &Field{
			Access:      parseAccess(f.Access),
			Name:        f.Name,
			Descriptor:  f.Descriptor,
			Signature:   f.Signature,
			Annotations: f.Annotations.build(),
		}
		if f.Value != nil {
			c, err := f.Value.build()
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", f.Name, err)
			}
			field.Value = &c
		}
		cf.Fields = append(cf.Fields, field)
	}
	for _, m := range yc.Methods {
		method, err := m.build(opts)
		if err != nil {
			return nil, fmt.Errorf("method %s%s: %w", m.Name, m.Descriptor, err)
		}
		cf.Methods = append(cf.Methods, method)
	}
	return cf, nil
}

func (ya yamlAnnotations) build() Annotations {
	return Annotations{
		Visible:       buildAnnotations(ya.Visible),
		Invisible:     buildAnnotations(ya.Invisible),
		VisibleType:   buildAnnotations(ya.VisibleType),
		InvisibleType: buildAnnotations(ya.InvisibleType),
	}
}

func buildAnnotations(in []yamlAnnotation) []Annotation {
	if len(in) == 0 {
		return nil
	}
	out := make([]Annotation, len(in))
	for i, a := range in {
		out[i] = a.build()
	}
	return out
}

func (ya yamlAnnotation) build() Annotation {
	a := Annotation{Descriptor: ya.Type}
	for _, e := range ya.Values {
		a.Elements = append(a.Elements, Element{Name: e.Name, Value: e.yamlValue.build()})
	}
	return a
}

func (yv yamlValue) build() AnnotationValue {
	switch {
	case yv.Int != nil:
		return AnnotationValue{Kind: ValueConst, Const: *yv.Int}
	case yv.Long != nil:
		return AnnotationValue{Kind: ValueConst, Const: *yv.Long}
	case yv.Float != nil:
		return AnnotationValue{Kind: ValueConst, Const: *yv.Float}
	case yv.Double != nil:
		return AnnotationValue{Kind: ValueConst, Const: *yv.Double}
	case yv.Bool != nil:
		return AnnotationValue{Kind: ValueConst, Const: *yv.Bool}
	case yv.String != nil:
		return AnnotationValue{Kind: ValueConst, Const: *yv.String}
	case yv.Enum != "":
		return AnnotationValue{Kind: ValueEnum, Descriptor: yv.Enum, Name: yv.Constant}
	case yv.Class != "":
		return AnnotationValue{Kind: ValueClass, Descriptor: yv.Class}
	case yv.Annotation != nil:
		a := yv.Annotation.build()
		return AnnotationValue{Kind: ValueAnnotation, Annotation: &a}
	case yv.Array != nil:
		v := AnnotationValue{Kind: ValueArray, Array: []AnnotationValue{}}
		for _, item := range *yv.Array {
			v.Array = append(v.Array, item.build())
		}
		return v
	}
	return AnnotationValue{Kind: ValueConst}
}

func (ym yamlMethod) build(opts DecodeOptions) (*Method, error) {
	m := &Method{
		Access:      parseAccess(ym.Access),
		Name:        ym.Name,
		Descriptor:  ym.Descriptor,
		Signature:   ym.Signature,
		Exceptions:  ym.Exceptions,
		Annotations: ym.Annotations.build(),
	}
	if ym.AnnotationDefault != nil {
		v := ym.AnnotationDefault.build()
		m.AnnotationDefault = &v
	}
	for _, ps := range ym.ParameterAnnotations.Visible {
		m.VisibleParameterAnnotations = append(m.VisibleParameterAnnotations, buildAnnotations(ps))
	}
	for _, ps := range ym.ParameterAnnotations.Invisible {
		m.InvisibleParameterAnnotations = append(m.InvisibleParameterAnnotations, buildAnnotations(ps))
	}
	if ym.Code == nil || opts.SkipCode {
		return m, nil
	}
	code, err := ym.Code.build()
	if err != nil {
		return nil, err
	}
	m.Code = code
	return m, nil
}

func (yc *yamlCode) build() (*Code, error) {
	code := &Code{
		MaxStack:         yc.MaxStack,
		MaxLocals:        yc.MaxLocals,
		LocalAnnotations: yc.LocalAnnotations.build(),
	}
	for _, tc := range yc.TryCatch {
		code.TryCatch = append(code.TryCatch, TryCatch{
			Start: Label(tc.Start), End: Label(tc.End), Handler: Label(tc.Handler),
			Type: tc.Type, Annotations: tc.Annotations.build(),
		})
	}
	for _, l := range yc.Locals {
		code.Locals = append(code.Locals, LocalVariable{
			Name: l.Name, Descriptor: l.Descriptor, Signature: l.Signature,
			Index: l.Index, Start: Label(l.Start), End: Label(l.End),
		})
	}

	var pendingLabels []Label
	var pendingFrame *Frame
	for i, yi := range yc.Insns {
		if yi.Label != "" {
			pendingLabels = append(pendingLabels, Label(yi.Label))
		}
		if yi.Frame != nil {
			f, err := yi.Frame.build()
			if err != nil {
				return nil, fmt.Errorf("insn %d: %w", i, err)
			}
			pendingFrame = f
		}
		if yi.Op == "" {
			continue
		}
		insn, err := yi.build()
		if err != nil {
			return nil, fmt.Errorf("insn %d: %w", i, err)
		}
		insn.Labels, insn.Frame = pendingLabels, pendingFrame
		pendingLabels, pendingFrame = nil, nil
		code.Insns = append(code.Insns, insn)
	}
	if len(pendingLabels) > 0 {
		// labels after the last instruction mark the end of the code
		code.Insns = append(code.Insns, Insn{Op: NOP, Labels: pendingLabels})
	}
	return code, nil
}

var verificationNames = map[string]VerificationKind{
	"top": VTop, "int": VInteger, "float": VFloat, "double": VDouble, "long": VLong,
	"null": VNull, "this": VUninitializedThis, "uninitialized": VUninitialized,
}

func buildVerificationTypes(names []string) []VerificationType {
	var out []VerificationType
	for _, n := range names {
		if k, ok := verificationNames[n]; ok {
			out = append(out, VerificationType{Kind: k})
			continue
		}
		out = append(out, VerificationType{Kind: VObject, Class: n})
	}
	return out
}

func (yf *yamlFrame) build() (*Frame, error) {
	f := &Frame{
		Locals: buildVerificationTypes(yf.Locals),
		Stack:  buildVerificationTypes(yf.Stack),
		Chop:   yf.Chop,
	}
	switch yf.Kind {
	case "full":
		f.Kind = FrameFull
	case "same":
		f.Kind = FrameSame
	case "same1":
		f.Kind = FrameSame1
	case "append":
		f.Kind = FrameAppend
	case "chop":
		f.Kind = FrameChop
	default:
		return nil, fmt.Errorf("unknown frame kind %q", yf.Kind)
	}
	return f, nil
}

func (yi yamlInsn) build() (Insn, error) {
	op, ok := ParseOpcode(yi.Op)
	if !ok {
		return Insn{}, fmt.Errorf("unknown opcode %q", yi.Op)
	}
	insn := Insn{
		Op:        op,
		Var:       yi.Var,
		Operand:   yi.Operand,
		Type:      yi.Type,
		Interface: yi.Interface,
		Target:    Label(yi.Target),
		Keys:      yi.Keys,
		Default:   Label(yi.Default),
	}
	for _, t := range yi.Targets {
		insn.Targets = append(insn.Targets, Label(t))
	}
	switch op {
	case GETSTATIC, PUTSTATIC, GETFIELD, PUTFIELD:
		owner, name, desc, err := splitMember(yi.Field)
		if err != nil {
			return Insn{}, err
		}
		insn.Field = reference.FieldRef{Owner: owner, Name: name, Descriptor: desc}
	case INVOKEVIRTUAL, INVOKESPECIAL, INVOKESTATIC, INVOKEINTERFACE:
		owner, name, desc, err := splitMember(yi.Method)
		if err != nil {
			return Insn{}, err
		}
		insn.Method = reference.MethodRef{Owner: owner, Name: name, Descriptor: desc}
		if op == INVOKEINTERFACE {
			insn.Interface = true
		}
	case INVOKEDYNAMIC:
		if yi.Indy == nil {
			return Insn{}, fmt.Errorf("invokedynamic without indy")
		}
		d, err := yi.Indy.build()
		if err != nil {
			return Insn{}, err
		}
		insn.Dynamic = d
	case LDC:
		if yi.Const == nil {
			return Insn{}, fmt.Errorf("ldc without const")
		}
		c, err := yi.Const.build()
		if err != nil {
			return Insn{}, err
		}
		insn.Const = c
	case NEW, ANEWARRAY, CHECKCAST, INSTANCEOF, MULTIANEWARRAY:
		if yi.Type == "" {
			return Insn{}, fmt.Errorf("%s without type", op)
		}
	}
	if op.IsJump() && yi.Target == "" {
		return Insn{}, fmt.Errorf("%s without target", op)
	}
	return insn, nil
}

// splitMember parses "owner.name:descriptor".
func splitMember(s string) (owner, name, desc string, err error) {
	member, desc, ok := strings.Cut(s, ":")
	dot := strings.LastIndexByte(member, '.')
	if !ok || dot <= 0 || dot == len(member)-1 || desc == "" {
		return "", "", "", fmt.Errorf("bad member reference %q, want owner.name:descriptor", s)
	}
	return member[:dot], member[dot+1:], desc, nil
}

var handleKinds = map[string]HandleKind{
	"getfield": HandleGetField, "getstatic": HandleGetStatic,
	"putfield": HandlePutField, "putstatic": HandlePutStatic,
	"invokevirtual": HandleInvokeVirtual, "invokestatic": HandleInvokeStatic,
	"invokespecial": HandleInvokeSpecial, "newinvokespecial": HandleNewInvokeSpecial,
	"invokeinterface": HandleInvokeInterface,
}

func (yh yamlHandle) build() (Handle, error) {
	kind, ok := handleKinds[yh.Kind]
	if !ok {
		return Handle{}, fmt.Errorf("unknown handle kind %q", yh.Kind)
	}
	owner, name, desc, err := splitMember(yh.Ref)
	if err != nil {
		return Handle{}, err
	}
	return Handle{Kind: kind, Owner: owner, Name: name, Descriptor: desc, Interface: yh.Interface}, nil
}

func (yd *yamlDynamic) build() (*Dynamic, error) {
	bsm, err := yd.Bootstrap.build()
	if err != nil {
		return nil, err
	}
	d := &Dynamic{Name: yd.Name, Descriptor: yd.Descriptor, Bootstrap: bsm}
	for _, a := range yd.Args {
		c, err := a.build()
		if err != nil {
			return nil, err
		}
		d.Args = append(d.Args, c)
	}
	return d, nil
}

func (yc yamlConstant) build() (Constant, error) {
	switch {
	case yc.Int != nil:
		return Constant{Kind: ConstInt, Int: *yc.Int}, nil
	case yc.Long != nil:
		return Constant{Kind: ConstLong, Int: *yc.Long}, nil
	case yc.Float != nil:
		return Constant{Kind: ConstFloat, Float: *yc.Float}, nil
	case yc.Double != nil:
		return Constant{Kind: ConstDouble, Float: *yc.Double}, nil
	case yc.String != nil:
		return Constant{Kind: ConstString, String: *yc.String}, nil
	case yc.Class != "":
		return Constant{Kind: ConstClass, Descriptor: classDescriptor(yc.Class)}, nil
	case yc.MethodType != "":
		return Constant{Kind: ConstMethodType, Descriptor: yc.MethodType}, nil
	case yc.Handle != nil:
		h, err := yc.Handle.build()
		if err != nil {
			return Constant{}, err
		}
		return Constant{Kind: ConstHandle, Handle: &h}, nil
	case yc.Dynamic != nil:
		d, err := yc.Dynamic.build()
		if err != nil {
			return Constant{}, err
		}
		return Constant{Kind: ConstDynamic, Descriptor: d.Descriptor, Dynamic: d}, nil
	}
	return Constant{}, fmt.Errorf("empty constant")
}

// classDescriptor accepts either an internal name or a descriptor.
func classDescriptor(s string) string {
	if strings.HasPrefix(s, "[") || (strings.HasPrefix(s, "L") && strings.HasSuffix(s, ";")) {
		return s
	}
	if len(s) == 1 && strings.Contains("BCDFIJSZV", s) {
		return s
	}
	return "L" + s + ";"
}
