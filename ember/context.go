package ember

// MemberLookup is a host-registered capability set contributing read-only
// members (values or functions) to a context's name resolution.
type MemberLookup interface {
	MemberByName(name string, mask TypeFlags) (Value, bool)
}

// SetFlags control how SetMemberByName stores a value.
type SetFlags uint8

const (
	// SetCreate defines the variable if it does not exist yet.
	SetCreate SetFlags = 1 << iota
	// SetOnlyCreate defines the variable but never overwrites an existing one.
	SetOnlyCreate
	// SetGlobal forces storage in the scripting domain regardless of scope.
	SetGlobal
)

// ExecutionContext is one scope in the resolution hierarchy: it owns indexed
// argument slots and named local variables, chains to a main context for
// instance scoping and to the domain for globals, and carries pluggable
// lookups. Name resolution order is fixed: local, then main, then lookups,
// then domain.
type ExecutionContext struct {
	domain  *Domain
	main    *ExecutionContext // nil when this context is itself a main context
	vars    map[string]Value
	slots   []Value
	lookups []MemberLookup

	// thread coordination lives on the main context
	running []*Thread
	queued  []*Thread
}

// NewContext creates a main context bound to a domain.
func NewContext(domain *Domain) *ExecutionContext {
	return &ExecutionContext{domain: domain, vars: make(map[string]Value)}
}

// newCallContext creates a per-call local scope chained to this context's
// main context.
func (c *ExecutionContext) newCallContext() *ExecutionContext {
	return &ExecutionContext{domain: c.domain, main: c.mainContext(), vars: make(map[string]Value)}
}

func (c *ExecutionContext) mainContext() *ExecutionContext {
	if c.main != nil {
		return c.main
	}
	return c
}

// Domain returns the global scripting domain this context chains to.
func (c *ExecutionContext) Domain() *Domain { return c.domain }

// RegisterLookup appends a member lookup, consulted after local and main
// scope but before the domain.
func (c *ExecutionContext) RegisterLookup(l MemberLookup) {
	c.lookups = append(c.lookups, l)
}

// MemberByName resolves a name in the fixed scope order, restricted to
// values matching mask.
func (c *ExecutionContext) MemberByName(name string, mask TypeFlags) (Value, bool) {
	if v, ok := c.vars[name]; ok && v.Matches(mask|TypeNull|TypeError) {
		return v, true
	}
	if c.main != nil {
		if v, ok := c.main.MemberByName(name, mask); ok {
			return v, true
		}
	}
	for _, l := range c.lookups {
		if v, ok := l.MemberByName(name, mask); ok {
			return v, true
		}
	}
	if c.main == nil && c.domain != nil {
		if v, ok := c.domain.MemberByName(name, mask); ok {
			return v, true
		}
	}
	return Value{}, false
}

// SetMemberByName stores a value under name according to flags. Without
// SetCreate the name must already exist somewhere in the chain.
func (c *ExecutionContext) SetMemberByName(name string, v Value, flags SetFlags) *ScriptError {
	if flags&SetGlobal != 0 {
		return c.domain.SetGlobal(name, v, flags)
	}
	if _, exists := c.vars[name]; exists {
		if flags&SetOnlyCreate != 0 {
			return nil // existing value wins
		}
		c.vars[name] = v
		return nil
	}
	// declarations create in the local scope, shadowing any binding
	// further up the chain
	if flags&(SetCreate|SetOnlyCreate) != 0 {
		c.vars[name] = v
		return nil
	}
	// assignment to a name defined further up the chain
	if c.main != nil {
		if _, ok := c.main.MemberByName(name, MaskAny); ok {
			return c.main.SetMemberByName(name, v, flags)
		}
	} else if c.domain != nil {
		if c.domain.HasGlobal(name) {
			return c.domain.SetGlobal(name, v, 0)
		}
	}
	return newScriptError(ErrNotFound, "variable %q is not declared", name)
}

// MemberAtIndex returns a positional argument slot.
func (c *ExecutionContext) MemberAtIndex(i int) Value {
	if i < 0 || i >= len(c.slots) {
		return NewAnnotatedNull("no argument")
	}
	return c.slots[i]
}

// NumIndexedMembers returns the number of positional argument slots.
func (c *ExecutionContext) NumIndexedMembers() int { return len(c.slots) }

func (c *ExecutionContext) appendIndexedMember(v Value) {
	c.slots = append(c.slots, v)
}

// ClearVars drops all local variables and argument slots, as done between
// independent runs unless the caller asks to keep variables.
func (c *ExecutionContext) ClearVars() {
	c.vars = make(map[string]Value)
	c.slots = nil
}

// LocalNames returns the names of all local variables, for inspection.
func (c *ExecutionContext) LocalNames() []string {
	names := make([]string, 0, len(c.vars))
	for name := range c.vars {
		names = append(names, name)
	}
	return names
}
