// Package registry keeps track of the available capture backends.
//
// Backend packages register a factory from their init(), so importing a
// backend package is what makes it selectable.
package registry

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/xaionaro-go/proctap/pkg/proctap/types"
)

type BackendFactory interface {
	NewBackend() (types.Backend, error)
}

type backendFactoryWithPriority struct {
	Priority int
	BackendFactory
}

var backendFactoryRegistry = map[reflect.Type]backendFactoryWithPriority{}

func RegisterBackendFactory(
	priority int,
	backendFactory BackendFactory,
) {
	t := reflect.ValueOf(backendFactory).Type()
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if _, ok := backendFactoryRegistry[t]; ok {
		panic(fmt.Errorf("there is already registered a factory of Backend of type %v", t))
	}
	backendFactoryRegistry[t] = backendFactoryWithPriority{
		Priority:       priority,
		BackendFactory: backendFactory,
	}
}

// BackendFactories returns the registered factories, the highest
// priority first.
func BackendFactories() []BackendFactory {
	var factoriesWithPriorities []backendFactoryWithPriority
	for _, factory := range backendFactoryRegistry {
		factoriesWithPriorities = append(factoriesWithPriorities, factory)
	}
	sort.Slice(factoriesWithPriorities, func(i, j int) bool {
		return factoriesWithPriorities[i].Priority > factoriesWithPriorities[j].Priority
	})

	var factories []BackendFactory
	for _, factory := range factoriesWithPriorities {
		factories = append(factories, factory.BackendFactory)
	}

	return factories
}
