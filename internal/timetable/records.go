package timetable

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// MaxRecordSize bounds a single input line.
const MaxRecordSize = 1 << 20

// ScanRecords splits r into records, one per non-blank line. Trailing
// carriage returns are dropped; tabs inside a record are kept.
func ScanRecords(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxRecordSize)

	var records []string
	line := 0
	for scanner.Scan() {
		line++
		record := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(record) == "" {
			continue
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return records, fmt.Errorf("failed to read record after line %d: %w", line, err)
	}
	return records, nil
}
