package store

import (
	"fmt"
	"time"
)

// ProcessSummary counts the diagnostic records of one process within a
// window.
type ProcessSummary struct {
	Process  string
	Infos    int
	Errors   int
	LastSeen time.Time
}

// Summarize groups records since the given time by process. Records that
// belong to no process (supervisor-level faults) are reported under "".
func (d *DB) Summarize(since time.Time) ([]ProcessSummary, error) {
	rows, err := d.db.Query(`
		SELECT COALESCE(process, ''),
			SUM(CASE WHEN level = 'info' THEN 1 ELSE 0 END),
			SUM(CASE WHEN level = 'error' THEN 1 ELSE 0 END),
			MAX(timestamp)
		FROM records
		WHERE timestamp >= ?
		GROUP BY COALESCE(process, '')
		ORDER BY COALESCE(process, '')`,
		since.UTC().Format(tsLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("summarizing records: %w", err)
	}
	defer rows.Close()

	var out []ProcessSummary
	for rows.Next() {
		var s ProcessSummary
		var last string
		if err := rows.Scan(&s.Process, &s.Infos, &s.Errors, &last); err != nil {
			return nil, fmt.Errorf("scanning summary row: %w", err)
		}
		s.LastSeen, _ = time.Parse(time.RFC3339Nano, last)
		out = append(out, s)
	}
	return out, rows.Err()
}
