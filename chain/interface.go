package chain

import "fmt"

// StageBuilder constructs a stage of type T from its raw step config.
// rawConfig is typically a map[string]any decoded from YAML; it is up to
// each builder to interpret it.
type StageBuilder[T any] func(rawConfig map[string]any) (T, error)

// Interface is a compile-time registry of named stage builders for a single
// stage type T. It replaces the dynamic module-import mechanism of the
// original implementation: every builder this broker can construct is
// registered explicitly, in Go source, before any configured chain is built.
type Interface[T any] struct {
	name     string
	builders map[string]StageBuilder[T]
}

// NewInterface returns an empty, named interface. Call Register for every
// stage kind it should be able to build.
func NewInterface[T any](name string) *Interface[T] {
	return &Interface[T]{name: name, builders: make(map[string]StageBuilder[T])}
}

// Name returns the interface's name (the API it serves, e.g. "gsecret").
func (iface *Interface[T]) Name() string {
	return iface.name
}

// Register binds a stage kind name to the builder that constructs it. It is
// an error to register the same kind twice.
func (iface *Interface[T]) Register(kind string, builder StageBuilder[T]) error {
	if _, exists := iface.builders[kind]; exists {
		return fmt.Errorf("interface %q: stage kind %q already registered", iface.name, kind)
	}
	iface.builders[kind] = builder
	return nil
}

// Build constructs the stage named kind from rawConfig.
func (iface *Interface[T]) Build(kind string, rawConfig map[string]any) (T, error) {
	var zero T
	builder, ok := iface.builders[kind]
	if !ok {
		return zero, fmt.Errorf("interface %q: no stage registered for kind %q", iface.name, kind)
	}
	return builder(rawConfig)
}

// Kinds returns the registered stage kind names.
func (iface *Interface[T]) Kinds() []string {
	kinds := make([]string, 0, len(iface.builders))
	for k := range iface.builders {
		kinds = append(kinds, k)
	}
	return kinds
}
