package expr

// Children returns the direct sub-expressions of e.
func Children(e Expr) []Expr {
	switch n := e.(type) {
	case *Unary:
		return []Expr{n.Operand}
	case *Binary:
		return []Expr{n.Left, n.Right}
	case *Cast:
		return []Expr{n.Arg}
	case *Alias:
		return []Expr{n.Arg}
	case *Call:
		return n.Args
	case *Agg:
		return []Expr{n.Arg}
	case *Window:
		return []Expr{n.Arg}
	default:
		return nil
	}
}

// withChildren returns a copy of e with its sub-expressions replaced.
func withChildren(e Expr, kids []Expr) Expr {
	switch n := e.(type) {
	case *Unary:
		return &Unary{Op: n.Op, Operand: kids[0]}
	case *Binary:
		return &Binary{Left: kids[0], Op: n.Op, Right: kids[1]}
	case *Cast:
		return &Cast{Arg: kids[0], To: n.To}
	case *Alias:
		return &Alias{Arg: kids[0], Name: n.Name}
	case *Call:
		return &Call{Fn: n.Fn, Args: kids}
	case *Agg:
		return &Agg{Fn: n.Fn, Arg: kids[0]}
	case *Window:
		out := *n
		out.Arg = kids[0]
		return &out
	default:
		return e
	}
}

// Transform rewrites e bottom-up: fn sees every node after its children
// have been rewritten.
func Transform(e Expr, fn func(Expr) Expr) Expr {
	kids := Children(e)
	if len(kids) > 0 {
		rewritten := make([]Expr, len(kids))
		for i, k := range kids {
			rewritten[i] = Transform(k, fn)
		}
		e = withChildren(e, rewritten)
	}
	return fn(e)
}

// Walk calls fn for e and every sub-expression, parents first, until fn
// returns false.
func Walk(e Expr, fn func(Expr) bool) {
	if !fn(e) {
		return
	}
	for _, k := range Children(e) {
		Walk(k, fn)
	}
}

// Columns returns the column names e reads, in first-reference order.
func Columns(e Expr) []string {
	var names []string
	seen := make(map[string]bool)
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	Walk(e, func(n Expr) bool {
		switch x := n.(type) {
		case *Column:
			add(x.Name)
		case *Window:
			for _, p := range x.PartitionBy {
				add(p)
			}
		}
		return true
	})
	return names
}

// OutputName is the column name an expression produces: the alias, the
// referenced column, or the name of its leftmost input.
func OutputName(e Expr) string {
	switch n := e.(type) {
	case *Column:
		return n.Name
	case *Alias:
		return n.Name
	case *Literal:
		return "literal"
	case *Binary:
		return OutputName(n.Left)
	default:
		if kids := Children(e); len(kids) > 0 {
			return OutputName(kids[0])
		}
		return e.String()
	}
}

// IsRowWise reports whether every output row of e depends only on the same
// input row. Aggregations and window functions are not row-wise.
func IsRowWise(e Expr) bool {
	rowWise := true
	Walk(e, func(n Expr) bool {
		switch n.(type) {
		case *Agg, *Window:
			rowWise = false
		}
		return rowWise
	})
	return rowWise
}

// HasAggregation reports whether e contains an aggregation.
func HasAggregation(e Expr) bool {
	found := false
	Walk(e, func(n Expr) bool {
		if _, ok := n.(*Agg); ok {
			found = true
		}
		return !found
	})
	return found
}

// Rename rewrites column references through mapping, including window
// partitions. Names absent from mapping are kept.
func Rename(e Expr, mapping map[string]string) Expr {
	return Transform(e, func(n Expr) Expr {
		switch x := n.(type) {
		case *Column:
			if to, ok := mapping[x.Name]; ok {
				return &Column{Name: to}
			}
		case *Window:
			if len(x.PartitionBy) == 0 {
				return x
			}
			out := *x
			out.PartitionBy = make([]string, len(x.PartitionBy))
			for i, p := range x.PartitionBy {
				if to, ok := mapping[p]; ok {
					p = to
				}
				out.PartitionBy[i] = p
			}
			return &out
		}
		return n
	})
}
