package domain

import "reflect"

// BuildKey identifies a construction request: a type, optionally qualified by a name.
// Two keys with equal (Type, Name) address the same build target.
type BuildKey struct {
	Type reflect.Type
	Name string
}

// NewBuildKey returns the key for t qualified by name.
func NewBuildKey(t reflect.Type, name string) BuildKey {
	return BuildKey{Type: t, Name: name}
}

// KeyFor returns the build key for T qualified by name.
func KeyFor[T any](name string) BuildKey {
	return BuildKey{Type: reflect.TypeFor[T](), Name: name}
}

// TypeKey returns the type-only key used as lookup fallback.
func (k BuildKey) TypeKey() BuildKey {
	return BuildKey{Type: k.Type}
}

// IsTypeOnly reports whether the key carries no name.
func (k BuildKey) IsTypeOnly() bool {
	return k.Name == ""
}

// String renders the key as "pkg.Type" or "pkg.Type[name]".
func (k BuildKey) String() string {
	typeName := "<nil>"
	if k.Type != nil {
		typeName = k.Type.String()
	}
	if k.Name == "" {
		return typeName
	}
	return typeName + "[" + k.Name + "]"
}
