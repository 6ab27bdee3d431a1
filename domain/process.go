package domain

// PidStatus is the OS state of the server process as shown on the stats endpoint.
type PidStatus string

const (
	RUNNING PidStatus = "RUNNING"
	SLEEP   PidStatus = "SLEEP"
	STOP    PidStatus = "STOP"
	IDLE    PidStatus = "IDLE"
	ZOMBIE  PidStatus = "ZOMBIE"
	WAIT    PidStatus = "WAIT"
	LOCK    PidStatus = "LOCK"
	UNKNOWN PidStatus = "UNKNOWN"
)

// ps(1) state letters
var pidStatuses = map[string]PidStatus{
	"R": RUNNING,
	"S": SLEEP,
	"T": STOP,
	"I": IDLE,
	"Z": ZOMBIE,
	"W": WAIT,
	"L": LOCK,
}

func ToStatus(status string) PidStatus {
	if s, ok := pidStatuses[status]; ok {
		return s
	}
	return UNKNOWN
}
