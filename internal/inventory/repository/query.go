package repository

import (
	"strconv"
	"strings"
)

// whereClause accumulates AND-ed conditions with positional arguments
type whereClause struct {
	conds []string
	args  []any
}

// add appends a condition; each "?" in cond is replaced by the next $n
func (w *whereClause) add(cond string, args ...any) {
	for _, a := range args {
		w.args = append(w.args, a)
		cond = strings.Replace(cond, "?", "$"+strconv.Itoa(len(w.args)), 1)
	}
	w.conds = append(w.conds, cond)
}

func (w *whereClause) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// page appends LIMIT/OFFSET placeholders and returns the full argument list
func (w *whereClause) page(limit, offset int) (string, []any) {
	args := append(append([]any{}, w.args...), limit, offset)
	n := len(args)
	return " LIMIT $" + strconv.Itoa(n-1) + " OFFSET $" + strconv.Itoa(n), args
}

// escapeLike escapes LIKE wildcards in user input
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
