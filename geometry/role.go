package geometry

import (
	"fmt"
)

// Role is the semantic role of a primitive field
type Role uint8

const (
	RoleVertices Role = iota + 1
	RoleIndices
	RoleColors
	RoleNormals
	RolePointIndices
	RoleLineIndices
	// End cap geometry is derived, it cannot be staged by callers
	RoleEndCapVertices
	RoleEndCapNormals
)

// Roles lists the roles in wire order
var Roles = []Role{
	RoleVertices,
	RoleIndices,
	RoleColors,
	RoleNormals,
	RolePointIndices,
	RoleLineIndices,
	RoleEndCapVertices,
	RoleEndCapNormals,
}

var roleNames = map[Role]string{
	RoleVertices:       "vertices",
	RoleIndices:        "indices",
	RoleColors:         "colors",
	RoleNormals:        "normals",
	RolePointIndices:   "point-indices",
	RoleLineIndices:    "line-indices",
	RoleEndCapVertices: "endcap-vertices",
	RoleEndCapNormals:  "endcap-normals",
}

func (r Role) String() string {
	if s, ok := roleNames[r]; ok {
		return s
	}
	return fmt.Sprintf("Role(%d)", uint8(r))
}

// IsIndex reports if the role holds connectivity indices
func (r Role) IsIndex() bool {
	return r == RoleIndices || r == RolePointIndices || r == RoleLineIndices
}

// Arity returns the number of scalars per element of the role for a kind
func (r Role) Arity(kind Kind) int {
	switch r {
	case RoleIndices:
		return kind.Arity()
	case RolePointIndices:
		return 1
	case RoleLineIndices:
		return 2
	}
	return 3
}
