package filter

import (
	"fmt"
	"strings"
)

// Clause is one field/operator/value unit of a filter. Operator is empty
// when the text carried no recognizable operator token.
type Clause struct {
	Field    string
	Operator Operator
	Value    string
}

func (c *Clause) String() string {
	return fmt.Sprintf("%s%s%s", c.Field, c.Operator.Pipe(), c.Value)
}

// ParseClause splits a normalized clause at its first pipe operator token.
// Blank input returns nil. It never fails; a clause without a known
// operator is returned with an empty Operator and rejected by the compiler.
func ParseClause(text string) *Clause {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	for i := 0; i < len(text); i++ {
		if text[i] != '|' {
			continue
		}
		end := strings.IndexByte(text[i+1:], '|')
		if end < 0 {
			break
		}
		token := text[i : i+end+2]
		if op, ok := operatorFromPipe(token); ok {
			return &Clause{
				Field:    strings.TrimSpace(text[:i]),
				Operator: op,
				Value:    strings.TrimSpace(text[i+len(token):]),
			}
		}
	}

	return &Clause{Field: strings.TrimSpace(text)}
}

// operatorFromPipe accepts the short code ("|lk|") or the operator name
// ("|like|") between pipes.
func operatorFromPipe(token string) (Operator, bool) {
	if len(token) < 3 {
		return "", false
	}
	inner := token[1 : len(token)-1]
	for _, sp := range operatorSpellings {
		if strings.EqualFold(inner, sp.code) || strings.EqualFold(inner, string(sp.op)) {
			return sp.op, true
		}
	}
	return "", false
}
