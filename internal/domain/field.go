package domain

// Field names one monitored cumulative counter.
type Field string

const (
	Positive               Field = "positive"
	Negative               Field = "negative"
	Pending                Field = "pending"
	Death                  Field = "death"
	Recovered              Field = "recovered"
	HospitalizedCumulative Field = "hospitalizedCumulative"
	InIcuCumulative        Field = "inIcuCumulative"
	OnVentilatorCumulative Field = "onVentilatorCumulative"
	Total                  Field = "total"
)

// Reserved cell values. They mean "not a measurement" and must short-circuit
// before any arithmetic.
const (
	Blank       = -1000
	Unparseable = -1001
)

// AllFields lists every monitored counter in display order.
var AllFields = []Field{
	Positive, Negative, Pending, Death, Recovered,
	HospitalizedCumulative, InIcuCumulative, OnVentilatorCumulative, Total,
}

// IsSentinel reports whether v is one of the reserved blank/unparseable values.
func IsSentinel(v int64) bool {
	return v == Blank || v == Unparseable
}

// Valid reports whether f is one of the known counters.
func (f Field) Valid() bool {
	for _, known := range AllFields {
		if f == known {
			return true
		}
	}
	return false
}

// DisplayName is the short name used in operator-facing messages.
func (f Field) DisplayName() string {
	switch f {
	case HospitalizedCumulative:
		return "hospitalized"
	case InIcuCumulative:
		return "icu"
	case OnVentilatorCumulative:
		return "ventilator"
	default:
		return string(f)
	}
}

// Values maps each reported counter to its value. A counter absent from the
// map is a missing column, which is different from a Blank cell.
type Values map[Field]int64

// Get returns the value for f and whether the column exists.
func (v Values) Get(f Field) (int64, bool) {
	val, ok := v[f]
	return val, ok
}
