package core

import (
	"reflect"

	"github.com/encodeous/fibbing/state"
)

func moduleName[T state.NyModule]() string {
	return reflect.TypeFor[T]().String()
}

func Get[T state.NyModule](s *state.State) T {
	return s.Modules[moduleName[T]()].(T)
}
