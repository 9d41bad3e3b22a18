package similarity

// Composite scores how alike two corrections are, comparing their original
// values and their corrected values pairwise. Numeric comparison is tried
// first and date second: for tabular fields (amounts, dates) those signals
// are far more discriminating than raw edit distance, so they take priority
// whenever both pairs qualify. Plain text averaging is the fallback.
func Composite(origA, corrA, origB, corrB string) float64 {
	no := Numeric(origA, origB)
	nc := Numeric(corrA, corrB)
	if no.IsNumeric && nc.IsNumeric {
		return (no.Similarity + nc.Similarity) / 2
	}

	do := Date(origA, origB)
	dc := Date(corrA, corrB)
	if do.IsDate && dc.IsDate {
		return (do.Similarity + dc.Similarity) / 2
	}

	return (Text(origA, origB) + Text(corrA, corrB)) / 2
}
