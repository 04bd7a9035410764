package scene

import (
	"github.com/pkg/errors"

	"github.com/meshstream/meshstream/geometry"
)

// FieldToken is one converted field, staged for AddPrimitive or
// UpdatePrimitive. Tokens are immutable and may be reused.
type FieldToken struct {
	kind   geometry.Kind
	role   geometry.Role
	floats []float32
	ints   []int32
	colors []uint8
}

// Kind returns the primitive kind the token was staged for
func (t FieldToken) Kind() geometry.Kind {
	return t.kind
}

// Role returns the field role
func (t FieldToken) Role() geometry.Role {
	return t.role
}

// Len returns the number of scalar values in the token
func (t FieldToken) Len() int {
	return len(t.floats) + len(t.ints) + len(t.colors)
}

// SetPrimitiveField converts the first count values of data into the
// canonical representation for role. Data must be a slice of one of the
// numeric types listed in geometry.NumType; use geometry.DecodeRaw for raw
// byte buffers.
func SetPrimitiveField(kind geometry.Kind, role geometry.Role, data interface{}, count int) (FieldToken, error) {
	tok := FieldToken{kind: kind, role: role}
	if !kind.Valid() {
		return tok, errors.Wrapf(ErrInvalidFieldType, "unknown kind %d", kind)
	}
	numType, err := geometry.TypeOf(data)
	if err != nil {
		return tok, errors.Wrap(ErrInvalidFieldType, err.Error())
	}
	if count < 0 || count > geometry.Len(data) {
		return tok, errors.Wrapf(ErrLengthMismatch, "%s: count %d with %d values supplied",
			role, count, geometry.Len(data))
	}
	if count%role.Arity(kind) != 0 {
		return tok, errors.Wrapf(ErrLengthMismatch, "%s: count %d is not a multiple of %d",
			role, count, role.Arity(kind))
	}

	switch role {
	case geometry.RoleVertices, geometry.RoleNormals:
		tok.floats, err = geometry.ToFloat32(data, count)
	case geometry.RoleColors:
		tok.colors, err = geometry.ToColor(data, count)
	case geometry.RoleIndices, geometry.RolePointIndices, geometry.RoleLineIndices:
		if !numType.IsInteger() {
			return tok, errors.Wrapf(ErrInvalidFieldType, "%s must be an integer type, got %s", role, numType)
		}
		if role == geometry.RoleLineIndices && kind != geometry.Triangle {
			return tok, errors.Wrapf(ErrInvalidFieldType, "%s are only supported on triangle primitives", role)
		}
		if role == geometry.RolePointIndices && kind == geometry.Point {
			return tok, errors.Wrapf(ErrInvalidFieldType, "%s are not supported on point primitives, use %s",
				role, geometry.RoleIndices)
		}
		tok.ints, err = geometry.ToInt32(data, count)
	default:
		return tok, errors.Wrapf(ErrInvalidFieldType, "role %s cannot be set", role)
	}
	if err != nil {
		return tok, errors.Wrap(ErrInvalidFieldType, err.Error())
	}
	return tok, nil
}

// MustField is like SetPrimitiveField, but panics on error.
// It is intended for static geometry in tests and demos.
func MustField(kind geometry.Kind, role geometry.Role, data interface{}) FieldToken {
	tok, err := SetPrimitiveField(kind, role, data, geometry.Len(data))
	if err != nil {
		panic(err)
	}
	return tok
}
