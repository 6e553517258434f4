package script

// Context is the ordered set of bindings injected into one execution.
// It is assembled by the caller before each run and is not shared between
// runs. The zero value is not usable; call NewContext.
type Context struct {
	names  []string
	values map[string]any
}

// NewContext creates an empty context.
func NewContext() *Context {
	return &Context{values: make(map[string]any)}
}

// Set binds name to value. Rebinding a name keeps its original position.
func (c *Context) Set(name string, value any) {
	if _, exists := c.values[name]; !exists {
		c.names = append(c.names, name)
	}
	c.values[name] = value
}

// Get returns the value bound to name.
func (c *Context) Get(name string) (any, bool) {
	v, ok := c.values[name]
	return v, ok
}

// Delete removes a binding.
func (c *Context) Delete(name string) {
	if _, exists := c.values[name]; !exists {
		return
	}
	delete(c.values, name)
	for i, n := range c.names {
		if n == name {
			c.names = append(c.names[:i], c.names[i+1:]...)
			break
		}
	}
}

// Names returns binding names in insertion order.
func (c *Context) Names() []string {
	return append([]string(nil), c.names...)
}

// Len returns the number of bindings.
func (c *Context) Len() int {
	return len(c.names)
}

// Each calls fn for every binding in insertion order.
func (c *Context) Each(fn func(name string, value any)) {
	for _, n := range c.names {
		fn(n, c.values[n])
	}
}

// Clone returns a shallow copy.
func (c *Context) Clone() *Context {
	out := NewContext()
	c.Each(out.Set)
	return out
}
