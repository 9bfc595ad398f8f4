package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// ParseCSV reads candidate rows from CSV input. The first record is the
// header; recognized columns are first_name, last_name, email, linkedin_url,
// country, current_job_title and current_employer, in any order. Unknown
// columns are ignored so exports with extra fields still load.
func ParseCSV(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	cols := map[string]int{}
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := cols["first_name"]; !ok {
		return nil, fmt.Errorf("CSV header missing first_name column")
	}

	field := func(record []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var rows []Row
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record: %w", err)
		}
		rows = append(rows, Row{
			FirstName:       field(record, "first_name"),
			LastName:        field(record, "last_name"),
			Email:           field(record, "email"),
			LinkedInURL:     field(record, "linkedin_url"),
			Country:         field(record, "country"),
			CurrentJobTitle: field(record, "current_job_title"),
			CurrentEmployer: field(record, "current_employer"),
		})
	}

	return rows, nil
}
