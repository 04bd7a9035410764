package scene

import (
	"github.com/pkg/errors"
)

// Errors returned by Context operations. All of them leave the Context
// unchanged.
var (
	ErrInvalidFieldType         = errors.New("invalid field type")
	ErrLengthMismatch           = errors.New("field length mismatch")
	ErrMissingVertices          = errors.New("primitive has no vertices")
	ErrDuplicateName            = errors.New("duplicate primitive name")
	ErrNameTooLong              = errors.New("primitive name too long")
	ErrUnknownPrimitive         = errors.New("unknown primitive")
	ErrUnsupportedPrimitiveKind = errors.New("unsupported primitive kind")
	ErrIndexOutOfRange          = errors.New("index out of range")
	ErrInvalidBias              = errors.New("index bias must be 0 or 1")
)
