package interception

import (
	"reflect"

	"github.com/polisai/polis-intercept/pkg/domain"
)

// AllAdditionalInterfaces unions the interfaces required by behaviors with the
// explicit extras. Order is first occurrence, behaviors first; nil entries are skipped.
func AllAdditionalInterfaces(behaviors []domain.Behavior, extra []reflect.Type) []reflect.Type {
	seen := make(map[reflect.Type]struct{})
	var out []reflect.Type
	add := func(t reflect.Type) {
		if t == nil {
			return
		}
		if _, dup := seen[t]; dup {
			return
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}

	for _, b := range behaviors {
		for _, t := range b.RequiredInterfaces() {
			add(t)
		}
	}
	for _, t := range extra {
		add(t)
	}
	return out
}
