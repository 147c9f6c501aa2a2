package classfile

import "errors"

// ErrMalformed is wrapped by decoders for input they cannot understand.
var ErrMalformed = errors.New("malformed class")

// DecodeOptions controls how much of a class a decoder materialises.
type DecodeOptions struct {
	// SkipCode drops method bodies. Library classes are loaded this way.
	SkipCode bool
}

// Decoder turns the bytes of one class entry into a ClassFile. The binary
// class-file codec lives outside this module; any format works as long as
// the result is linked (see ClassFile.Link).
type Decoder interface {
	// Extension is the file suffix of class entries, e.g. ".class".
	Extension() string
	Decode(data []byte, opts DecodeOptions) (*ClassFile, error)
}
