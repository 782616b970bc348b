package domain

// Column describes one column of a result table.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Table is one tabular result set returned by the query capability. Row
// values are pass-through payloads; this core never interprets them.
type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// QueryResult is the full response of one executed query.
type QueryResult struct {
	Tables []Table `json:"tables"`
}

// RowCount returns the total number of rows across all tables.
func (r *QueryResult) RowCount() int {
	n := 0
	for _, t := range r.Tables {
		n += len(t.Rows)
	}
	return n
}
