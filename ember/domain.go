package ember

import "io"

// Domain is the process-wide global scope shared by all contexts: global
// variables plus globally registered native functions. It is constructed
// once and handed to every context; the single-threaded scheduling
// discipline is its only guard, so all access must happen from the event
// loop (or from one goroutine in synchronous use).
type Domain struct {
	globals  map[string]Value
	builtins map[string]*BuiltinDef
	loop     *Loop
	output   io.Writer
}

// NewDomain creates an empty domain with the standard function library
// registered.
func NewDomain(loop *Loop, output io.Writer) *Domain {
	d := &Domain{
		globals:  make(map[string]Value),
		builtins: make(map[string]*BuiltinDef),
		loop:     loop,
		output:   output,
	}
	registerStandardFunctions(d)
	return d
}

// Loop returns the event loop threads on this domain schedule with; nil in
// purely synchronous setups.
func (d *Domain) Loop() *Loop { return d.loop }

// RegisterFunction makes a native function visible to every context.
func (d *Domain) RegisterFunction(def *BuiltinDef) {
	d.builtins[def.Name] = def
}

// MemberByName resolves globals and registered functions.
func (d *Domain) MemberByName(name string, mask TypeFlags) (Value, bool) {
	if v, ok := d.globals[name]; ok && v.Matches(mask|TypeNull|TypeError) {
		return v, true
	}
	if mask&TypeExecutable != 0 {
		if def, ok := d.builtins[name]; ok {
			return NewExecutableValue(&Executable{name: def.Name, builtin: def}), true
		}
	}
	return Value{}, false
}

// HasGlobal reports whether a global variable exists.
func (d *Domain) HasGlobal(name string) bool {
	_, ok := d.globals[name]
	return ok
}

// SetGlobal stores a global variable.
func (d *Domain) SetGlobal(name string, v Value, flags SetFlags) *ScriptError {
	if _, exists := d.globals[name]; exists && flags&SetOnlyCreate != 0 {
		return nil
	}
	d.globals[name] = v
	return nil
}

// ClearGlobals drops all global variables, keeping registered functions.
func (d *Domain) ClearGlobals() {
	d.globals = make(map[string]Value)
}

// GlobalNames returns the names of all global variables.
func (d *Domain) GlobalNames() []string {
	names := make([]string, 0, len(d.globals))
	for name := range d.globals {
		names = append(names, name)
	}
	return names
}

// FunctionNames returns the names of all registered native functions.
func (d *Domain) FunctionNames() []string {
	names := make([]string, 0, len(d.builtins))
	for name := range d.builtins {
		names = append(names, name)
	}
	return names
}
