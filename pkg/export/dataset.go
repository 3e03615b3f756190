package export

import "fmt"

// Dataset is tabular export content. Rows are positional and must have the
// same length as Headers.
type Dataset struct {
	Title   string
	Headers []string
	Rows    [][]string
	// Footer lines are printed under the table in documents that support them.
	Footer []string
}

func (d Dataset) validate(format string) error {
	if len(d.Headers) == 0 {
		return fmt.Errorf("%s requires at least one header", format)
	}
	for i, row := range d.Rows {
		if len(row) != len(d.Headers) {
			return fmt.Errorf("%s row %d has %d columns, want %d", format, i+1, len(row), len(d.Headers))
		}
	}
	return nil
}
