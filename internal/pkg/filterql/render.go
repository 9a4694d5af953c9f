package filterql

// Render converts a predicate tree into the query document understood by
// Mongo-style executors. Equality is implicit ({field: value}); every other
// operator becomes {field: {"$op": value}}.
func Render(n Node) map[string]any {
	switch n := n.(type) {
	case Comparison:
		if n.Op == OpEq {
			return map[string]any{n.Field: n.Value.Native()}
		}
		return map[string]any{n.Field: map[string]any{"$" + string(n.Op): n.Value.Native()}}
	case Existence:
		return map[string]any{n.Field: map[string]any{"$exists": true}}
	case Logical:
		key := "$" + string(n.Op)
		if n.Op == OpNot {
			return map[string]any{key: Render(n.Operands[0])}
		}
		operands := make([]any, len(n.Operands))
		for i, o := range n.Operands {
			operands[i] = Render(o)
		}
		return map[string]any{key: operands}
	default:
		return map[string]any{}
	}
}
