package filter

import "strings"

// Node is one element of a filter expression: an optional clause and the
// logic operator joining it to the following node. Logic is empty on the
// last node.
type Node struct {
	Clause *Clause
	Logic  LogicOperator
}

// Expression is the parsed form of a filter string, an ordered list of
// nodes. It is built once and not modified afterwards.
type Expression struct {
	Raw   string
	Nodes []Node
}

// ParseExpression scans a normalized filter string left to right. An
// underscore starts a candidate logic token ("_and_", "_or_"); when it does
// not form one it is kept as a literal character of the current clause.
// An empty filter yields a single node without a clause.
func ParseExpression(raw string) *Expression {
	expr := &Expression{Raw: raw, Nodes: []Node{{}}}

	var word strings.Builder
	for i := 0; i < len(raw); {
		if raw[i] == '_' {
			if end := strings.IndexByte(raw[i+1:], '_'); end >= 0 {
				token := raw[i : i+end+2]
				if logic, ok := logicFromToken(token); ok {
					last := &expr.Nodes[len(expr.Nodes)-1]
					last.Clause = ParseClause(word.String())
					last.Logic = logic
					expr.Nodes = append(expr.Nodes, Node{})
					word.Reset()
					i += len(token)
					continue
				}
			}
		}
		word.WriteByte(raw[i])
		i++
	}

	expr.Nodes[len(expr.Nodes)-1].Clause = ParseClause(word.String())
	return expr
}

func logicFromToken(token string) (LogicOperator, bool) {
	for _, sp := range logicSpellings {
		if strings.EqualFold(token, sp.token) {
			return sp.op, true
		}
	}
	return "", false
}

// Clauses returns the non-nil clauses in order.
func (e *Expression) Clauses() []*Clause {
	clauses := make([]*Clause, 0, len(e.Nodes))
	for _, n := range e.Nodes {
		if n.Clause != nil {
			clauses = append(clauses, n.Clause)
		}
	}
	return clauses
}

// Empty reports whether the expression carries no clause at all.
func (e *Expression) Empty() bool {
	return len(e.Clauses()) == 0
}
