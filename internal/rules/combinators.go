package rules

// All builds the one-level "all" (AND) combinator: matches only if every
// child rule matches. No nesting of combinators is permitted by spec
// §4.4, so children here are expected to be leaf template/builtin rules.
func All(name string, children ...Rule) Rule {
	return &combinator{name: name, children: children, and: true}
}

// Any builds the one-level "any" (OR) combinator.
func Any(name string, children ...Rule) Rule {
	return &combinator{name: name, children: children, and: false}
}

type combinator struct {
	name     string
	children []Rule
	and      bool
}

func (c *combinator) Name() string { return c.name }

// PrefetchCapable is conservative: the combinator can only be trusted
// pre-fetch if every child can be, regardless of AND/OR — a child that
// needs enrichment makes the combined verdict untrustworthy either way.
func (c *combinator) PrefetchCapable() bool {
	for _, child := range c.children {
		if !child.PrefetchCapable() {
			return false
		}
	}
	return true
}

func (c *combinator) Evaluate(ctx *Context) bool {
	if c.and {
		for _, child := range c.children {
			if !child.Evaluate(ctx) {
				return false
			}
		}
		return true
	}
	for _, child := range c.children {
		if child.Evaluate(ctx) {
			return true
		}
	}
	return false
}
