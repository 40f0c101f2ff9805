package registry

// Contributions is everything collected from the contribution sources, in
// scan order. Fragment order is the merge order: AddBinding queues the
// binding's own fragment at the point the binding was scanned.
type Contributions struct {
	Contracts []Contract
	Bindings  []Binding
	Fragments []Fragment
}

// AddContract appends a contract declaration.
func (c *Contributions) AddContract(ct Contract) {
	c.Contracts = append(c.Contracts, ct)
}

// AddBinding appends a binding and, when present, its fragment.
func (c *Contributions) AddBinding(b Binding) {
	c.Bindings = append(c.Bindings, b)
	if f, ok := b.Fragment(); ok {
		c.Fragments = append(c.Fragments, f)
	}
}

// AddFragment appends a standalone configuration fragment.
func (c *Contributions) AddFragment(f Fragment) {
	c.Fragments = append(c.Fragments, f)
}

// Append adds everything from other after the current contents.
func (c *Contributions) Append(other Contributions) {
	c.Contracts = append(c.Contracts, other.Contracts...)
	c.Bindings = append(c.Bindings, other.Bindings...)
	c.Fragments = append(c.Fragments, other.Fragments...)
}

// Empty reports whether nothing was contributed.
func (c Contributions) Empty() bool {
	return len(c.Contracts) == 0 && len(c.Bindings) == 0 && len(c.Fragments) == 0
}

// Declared reports whether a contract with id was declared.
func (c Contributions) Declared(id string) bool {
	for _, ct := range c.Contracts {
		if ct.ID() == id {
			return true
		}
	}
	return false
}
