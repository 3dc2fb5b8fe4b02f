// Package reflector derives stable type names for values crossing a fiber or
// process boundary. Names are cached per reflect.Type.
package reflector

import (
	"reflect"
	"sync"
)

// maxCacheSize bounds the cache; it is cleared when exceeded.
const maxCacheSize = 1024

var (
	muCache sync.RWMutex
	cache   = make(map[reflect.Type]TypeInfo)
)

// Named lets a message type choose its own wire name.
type Named interface {
	MsgType() string
}

// TypeInfo holds metadata about a reflected type.
type TypeInfo struct {
	Name string       // "pkg/path.TypeName", or the MsgType() override
	Type reflect.Type // element type; pointers are unwrapped
}

// TypeInfoOf returns TypeInfo for the dynamic type of x.
func TypeInfoOf(x any) TypeInfo {
	return TypeInfoForType(reflect.TypeOf(x))
}

// TypeInfoFor returns TypeInfo for type parameter T.
func TypeInfoFor[T any]() TypeInfo {
	return TypeInfoForType(reflect.TypeFor[T]())
}

// TypeInfoForType returns TypeInfo for t. For pointer types the element type
// is described, so T and *T share one name.
func TypeInfoForType(t reflect.Type) TypeInfo {
	if t == nil {
		return TypeInfo{}
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	muCache.RLock()
	ti, ok := cache[t]
	muCache.RUnlock()
	if ok {
		return ti
	}

	ti = TypeInfo{Name: nameOf(t), Type: t}

	muCache.Lock()
	if existing, ok := cache[t]; ok {
		muCache.Unlock()
		return existing
	}
	if len(cache) >= maxCacheSize {
		cache = make(map[reflect.Type]TypeInfo)
	}
	cache[t] = ti
	muCache.Unlock()

	return ti
}

// Name is shorthand for TypeInfoOf(x).Name.
func Name(x any) string { return TypeInfoOf(x).Name }

// NameFor is shorthand for TypeInfoFor[T]().Name.
func NameFor[T any]() string { return TypeInfoFor[T]().Name }

var namedType = reflect.TypeFor[Named]()

func nameOf(t reflect.Type) string {
	// MsgType may be declared on the value or the pointer receiver.
	switch {
	case t.Implements(namedType):
		return reflect.Zero(t).Interface().(Named).MsgType()
	case reflect.PointerTo(t).Implements(namedType):
		return reflect.New(t).Interface().(Named).MsgType()
	}
	return t.PkgPath() + "." + t.Name()
}
