package repository

import (
	"fmt"
	"strings"
)

// multiRowInsert builds "INSERT INTO t (cols) VALUES (?,..),(?,..)" for n rows.
func multiRowInsert(table string, cols []string, n int, row func(i int) []interface{}) (string, []interface{}) {
	ph := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"
	values := make([]string, n)
	args := make([]interface{}, 0, n*len(cols))
	for i := 0; i < n; i++ {
		values[i] = ph
		args = append(args, row(i)...)
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", table, strings.Join(cols, ", "), strings.Join(values, ", "))
	return q, args
}

func joinCols(cols []string) string { return strings.Join(cols, ", ") }
