package sales

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCommitted Status = "COMMITTED"
	StatusVoided    Status = "VOIDED"
)

// COMMITTED -> VOIDED is only reachable through Service.Void, which
// reverses the sale's stock first.
var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusCommitted: true, StatusVoided: true},
	StatusCommitted: {StatusVoided: true},
	StatusVoided:    {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}
