package transformer

// registry is the set of output paths written during one pass: resources and
// synthesised directories (without their trailing '/'). Class files are not
// registered. A registry never outlives its pass.
type registry map[string]struct{}

func (r registry) add(name string) {
	r[name] = struct{}{}
}

func (r registry) has(name string) bool {
	_, ok := r[name]
	return ok
}
