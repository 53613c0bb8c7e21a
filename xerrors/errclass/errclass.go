// Package errclass classifies errors by severity.
package errclass

import (
	"github.com/zircuit-labs/zkr-go-sched/xerrors"
)

// Class is a severity bucket for an error. Higher values are more severe;
// a joined error reports the highest class of its children.
type Class int

const (
	Nil     Class = -1
	Unknown Class = 0

	Transient  Class = 100
	Persistent Class = 110

	Panic Class = 900
)

// String implements the stringer interface.
func (c Class) String() string {
	switch c {
	case Nil:
		return "nil"
	case Transient:
		return "transient"
	case Persistent:
		return "persistent"
	case Panic:
		return "panic"
	default:
		return "unknown"
	}
}

// WrapAs attaches the given class to err.
func WrapAs(err error, class Class) error {
	if err == nil {
		return nil
	}
	return xerrors.Extend(class, err)
}

// GetClass returns the class of err, or the highest class for joined errors.
func GetClass(err error) Class {
	if err == nil {
		return Nil
	}

	highest := Nil
	for _, child := range xerrors.Unjoin(err) {
		class, ok := xerrors.Extract[Class](child)
		switch {
		case ok && class > highest:
			highest = class
		case !ok && highest < Unknown:
			highest = Unknown
		}
	}
	return highest
}
