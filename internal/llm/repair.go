package llm

// RepairOverflow fixes the row-wrapping artifact where a logical row's
// trailing text (a label or unit) lands on its own visually separate
// line in the source markup. Rows are scanned top to bottom:
//
//   - a row with zero non-null cells is dropped;
//   - a row with one or two non-null cells, all of them textual, that
//     follows a retained row is folded into it - each non-null value is
//     string-concatenated into the same column of the preceding row;
//   - every other row is kept as-is.
//
// The 2-cell/all-text cutoff is deliberate: multi-value or numeric short
// rows are genuine data, short all-text rows are wrapped continuations.
func RepairOverflow(csvText, nullToken string) (string, error) {
	header, rows, err := parseTable(csvText)
	if err != nil {
		return "", err
	}

	var out [][]string
	for _, row := range rows {
		var nonNull []int
		for i, cell := range row {
			if !isNull(cell, nullToken) {
				nonNull = append(nonNull, i)
			}
		}

		switch {
		case len(nonNull) == 0:
			continue
		case len(nonNull) <= 2 && allTextual(row, nonNull) && len(out) > 0:
			prev := out[len(out)-1]
			for _, i := range nonNull {
				if isNull(prev[i], nullToken) {
					prev[i] = row[i]
				} else {
					prev[i] += row[i]
				}
			}
		default:
			out = append(out, append([]string(nil), row...))
		}
	}

	return writeTable(header, out, nullToken), nil
}

func allTextual(row []string, indices []int) bool {
	for _, i := range indices {
		if isNumeric(row[i]) {
			return false
		}
	}
	return true
}
