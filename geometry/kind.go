package geometry

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Kind is the primitive type of a drawable object
type Kind uint8

const (
	Point Kind = iota + 1
	Line
	Triangle
)

var kindNames = map[Kind]string{
	Point:    "point",
	Line:     "line",
	Triangle: "triangle",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Arity returns the number of indices that make up one primitive of this kind
func (k Kind) Arity() int {
	switch k {
	case Line:
		return 2
	case Triangle:
		return 3
	}
	return 1
}

// Valid reports if k is a known kind
func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// ParseKind parses a kind name as used in config files
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == s || name+"s" == s {
			return k, nil
		}
	}
	return 0, errors.Errorf("unknown primitive kind %q", s)
}
