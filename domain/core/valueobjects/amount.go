package valueobjects

// Amount is the source value of a production or reserves fact.
//
// Source spreadsheets mix numbers with sentinels such as "NA", "Large" or
// "Withheld", so an Amount is either Numeric (a positive decimal) or
// NonNumeric (the raw text kept verbatim). Callers branch on Numeric().
type Amount struct {
	raw     string
	value   Decimal
	numeric bool
}

// ParseAmount classifies a raw amount string.
//
// After removing every '.' the remainder must be non-empty ASCII digits, the
// raw text must parse as a decimal, and the value must be non-zero. Anything
// else is NonNumeric.
func ParseAmount(raw string) Amount {
	if !digitsOnly(raw) {
		return NonNumericAmount(raw)
	}
	d, err := NewDecimal(raw)
	if err != nil || d.IsZero() {
		return NonNumericAmount(raw)
	}
	return Amount{raw: raw, value: d, numeric: true}
}

// NumericAmount wraps an already-parsed decimal
func NumericAmount(d Decimal) Amount {
	return Amount{raw: d.String(), value: d, numeric: !d.IsZero() && d.Sign() > 0}
}

// NonNumericAmount keeps a sentinel string
func NonNumericAmount(raw string) Amount {
	return Amount{raw: raw}
}

// Numeric returns the parsed value and true for numeric amounts
func (a Amount) Numeric() (Decimal, bool) {
	if !a.numeric {
		return Decimal{}, false
	}
	return a.value, true
}

// IsNumeric reports whether the amount parsed
func (a Amount) IsNumeric() bool {
	return a.numeric
}

// Raw returns the original text
func (a Amount) Raw() string {
	return a.raw
}

// String returns the original text
func (a Amount) String() string {
	return a.raw
}

func digitsOnly(raw string) bool {
	n := 0
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c == '.' {
			continue
		}
		if c < '0' || c > '9' {
			return false
		}
		n++
	}
	return n > 0
}
