package reactive

// registry is the explicit component arena: handle id -> registration,
// plus a reverse index for idempotency checks. Lifecycle removal is
// explicit; nothing here relies on weak references or finalizers.
type registry struct {
	byID        map[string]*registration
	byComponent map[Component]string
}

// registration is one registered component: its handle, the component
// itself, and the watcher bindings routed to it. Destroyed at
// unregistration, at which point the component holds no listeners and is
// eligible for collection.
type registration struct {
	id        string
	component Component
	bindings  []binding
}

type binding struct {
	watch   string
	watcher Watcher
}

func newRegistry() *registry {
	return &registry{
		byID:        make(map[string]*registration),
		byComponent: make(map[Component]string),
	}
}

func (r *registry) lookup(c Component) (*registration, bool) {
	id, ok := r.byComponent[c]
	if !ok {
		return nil, false
	}
	return r.byID[id], true
}

func (r *registry) lookupID(id string) (*registration, bool) {
	reg, ok := r.byID[id]
	return reg, ok
}

func (r *registry) add(reg *registration) {
	r.byID[reg.id] = reg
	r.byComponent[reg.component] = reg.id
}

func (r *registry) remove(reg *registration) {
	delete(r.byID, reg.id)
	delete(r.byComponent, reg.component)
}
