package models

// Severity levels. The rank order drives trend calculation and
// escalation; lower rank is more severe for sorting, numeric value
// below follows ISA 18.2 style scoring (higher = more severe).
const (
	SeveritySecurity      = "security"
	SeverityCritical      = "critical"
	SeverityMajor         = "major"
	SeverityMinor         = "minor"
	SeverityWarning       = "warning"
	SeverityIndeterminate = "indeterminate"
	SeverityInformational = "informational"
	SeverityNormal        = "normal"
	SeverityOk            = "ok"
	SeverityCleared       = "cleared"
	SeverityDebug         = "debug"
	SeverityTrace         = "trace"
	SeverityUnknown       = "unknown"
)

// SeverityMap ranks severities; overridable from config at startup.
var SeverityMap = map[string]int{
	SeveritySecurity:      10,
	SeverityCritical:      9,
	SeverityMajor:         8,
	SeverityMinor:         7,
	SeverityWarning:       6,
	SeverityIndeterminate: 5,
	SeverityInformational: 4,
	SeverityNormal:        3,
	SeverityOk:            3,
	SeverityCleared:       3,
	SeverityDebug:         2,
	SeverityTrace:         1,
	SeverityUnknown:       0,
}

var (
	DefaultNormalSeverity   = SeverityNormal
	DefaultInformSeverity   = SeverityInformational
	DefaultPreviousSeverity = SeverityNormal
)

// Alert statuses. Dsupr and Oosrv are the ISA 18.2 suppressed-by-design
// and out-of-service states.
const (
	StatusOpen     = "open"
	StatusAssign   = "assign"
	StatusAck      = "ack"
	StatusUnack    = "unack"
	StatusShelved  = "shelved"
	StatusBlackout = "blackout"
	StatusClosed   = "closed"
	StatusExpired  = "expired"
	StatusDsupr    = "DSUPR"
	StatusOosrv    = "OOSRV"
	StatusUnknown  = "unknown"
)

// StatusMap assigns the ISA 18.2 state letters.
var StatusMap = map[string]string{
	StatusClosed:  "A",
	StatusOpen:    "B",
	StatusAck:     "C",
	StatusUnack:   "D",
	StatusShelved: "E",
	StatusDsupr:   "F",
	StatusOosrv:   "G",
}

// ColorMap drives console display; overridable from config.
var ColorMap = map[string]string{
	SeveritySecurity:      "blue",
	SeverityCritical:      "red",
	SeverityMajor:         "orange",
	SeverityMinor:         "yellow",
	SeverityWarning:       "dodgerblue",
	SeverityIndeterminate: "lightblue",
	SeverityCleared:       "#00CC00",
	SeverityNormal:        "#00CC00",
	SeverityOk:            "#00CC00",
	SeverityInformational: "#00CC00",
	SeverityDebug:         "#9D006D",
	SeverityTrace:         "#7554BF",
	SeverityUnknown:       "silver",
}

// Operator and scheduler actions.
const (
	ActionOpen     = "open"
	ActionAck      = "ack"
	ActionUnack    = "unack"
	ActionShelve   = "shelve"
	ActionUnshelve = "unshelve"
	ActionClose    = "close"
	ActionEscalate = "escalate"
)

// Trend indications, derived from the severity rank delta.
const (
	TrendMoreSevere = "moreSevere"
	TrendNoChange   = "noChange"
	TrendLessSevere = "lessSevere"
)

// History change types.
const (
	ChangeNew      = "new"
	ChangeAction   = "action"
	ChangeStatus   = "status"
	ChangeValue    = "value"
	ChangeSeverity = "severity"
	ChangeNote     = "note"
	ChangeTimeout  = "timeout"
	ChangeExpired  = "expired"
)

// Heartbeat statuses.
const (
	HeartbeatOK      = "ok"
	HeartbeatSlow    = "slow"
	HeartbeatExpired = "expired"
)

// SeverityRank returns the numeric rank of a severity, 0 for unknown.
func SeverityRank(severity string) int {
	return SeverityMap[severity]
}

// ValidSeverity reports whether the severity is in SeverityMap.
func ValidSeverity(severity string) bool {
	_, ok := SeverityMap[severity]
	return ok
}

// ValidStatus reports whether the status can be stored on an alert.
// The state-machine states plus the statuses set outside the machine
// (blackout coercion, expiry sweep, operator assign) are accepted.
func ValidStatus(status string) bool {
	if _, ok := StatusMap[status]; ok {
		return true
	}
	switch status {
	case StatusAssign, StatusBlackout, StatusExpired, StatusUnknown:
		return true
	}
	return false
}

// Trend compares two severities by rank.
func Trend(previous, current string) string {
	p, c := SeverityRank(previous), SeverityRank(current)
	switch {
	case p > c:
		return TrendLessSevere
	case p < c:
		return TrendMoreSevere
	default:
		return TrendNoChange
	}
}

// NextSeverityUp returns the severity one rank more severe than the
// given one, or the same severity when already at the top.
func NextSeverityUp(severity string) string {
	cur := SeverityRank(severity)
	best := ""
	bestRank := int(^uint(0) >> 1)
	for name, rank := range SeverityMap {
		if rank > cur && rank < bestRank {
			best, bestRank = name, rank
		} else if rank == bestRank && name < best {
			// deterministic pick among same-rank aliases
			best = name
		}
	}
	if best == "" {
		return severity
	}
	return best
}
