package models

// Verdict tags a ValidationOutcome.
type Verdict int

const (
	Passed Verdict = iota
	BlockedLong
	BlockedShort
	BlockedBoth
)

func (v Verdict) String() string {
	switch v {
	case BlockedLong:
		return "blocked_long"
	case BlockedShort:
		return "blocked_short"
	case BlockedBoth:
		return "blocked_both"
	}
	return "passed"
}

// ValidationOutcome is built only through the constructors below, so a
// blocked direction always carries a reason and a passing one never does.
type ValidationOutcome struct {
	verdict     Verdict
	reasonLong  string
	reasonShort string
}

func Pass() ValidationOutcome { return ValidationOutcome{} }

func BlockLong(reason string) ValidationOutcome {
	return ValidationOutcome{verdict: BlockedLong, reasonLong: reason}
}

func BlockShort(reason string) ValidationOutcome {
	return ValidationOutcome{verdict: BlockedShort, reasonShort: reason}
}

// BlockBoth blocks both directions with the same text.
func BlockBoth(reason string) ValidationOutcome {
	return ValidationOutcome{verdict: BlockedBoth, reasonLong: reason, reasonShort: reason}
}

// BlockEach blocks both directions with direction-specific text.
func BlockEach(longReason, shortReason string) ValidationOutcome {
	return ValidationOutcome{verdict: BlockedBoth, reasonLong: longReason, reasonShort: shortReason}
}

// Block blocks a single direction.
func Block(d Direction, reason string) ValidationOutcome {
	switch d {
	case Long:
		return BlockLong(reason)
	case Short:
		return BlockShort(reason)
	}
	return BlockBoth(reason)
}

func (o ValidationOutcome) Verdict() Verdict    { return o.verdict }
func (o ValidationOutcome) Passed() bool        { return o.verdict == Passed }
func (o ValidationOutcome) ReasonLong() string  { return o.reasonLong }
func (o ValidationOutcome) ReasonShort() string { return o.reasonShort }

func (o ValidationOutcome) Blocks(d Direction) bool {
	switch d {
	case Long:
		return o.verdict == BlockedLong || o.verdict == BlockedBoth
	case Short:
		return o.verdict == BlockedShort || o.verdict == BlockedBoth
	}
	return o.verdict != Passed
}

func (o ValidationOutcome) Reason(d Direction) string {
	if d == Short {
		return o.reasonShort
	}
	return o.reasonLong
}

// Merge keeps the first reason recorded for each direction.
func (o ValidationOutcome) Merge(next ValidationOutcome) ValidationOutcome {
	out := o
	if next.Blocks(Long) && !out.Blocks(Long) {
		out.reasonLong = next.reasonLong
	}
	if next.Blocks(Short) && !out.Blocks(Short) {
		out.reasonShort = next.reasonShort
	}
	switch {
	case out.reasonLong != "" && out.reasonShort != "":
		out.verdict = BlockedBoth
	case out.reasonLong != "":
		out.verdict = BlockedLong
	case out.reasonShort != "":
		out.verdict = BlockedShort
	default:
		out.verdict = Passed
	}
	return out
}

// ValidationInput is what every rule sees for one ticker.
type ValidationInput struct {
	Ticker       string
	Metrics      TrendMetrics
	Quote        *QuoteSnapshot
	Bars         []Bar
	CurrentPrice float64
}
