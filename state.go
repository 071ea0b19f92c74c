package scriptloader

import "strconv"

// Status is the lifecycle state shared by module and manifest records.
// States only move forward, except that StatusError can be entered from any state.
type Status int

const (
	// StatusError is terminal; any attempt to use the record fails.
	StatusError Status = -1
	// StatusNotLoaded means the record exists but no fetch was issued.
	StatusNotLoaded Status = 0
	// StatusRequested means a fetch was issued but has not begun transferring.
	StatusRequested Status = 1
	// StatusWaiting means the record is blocked on prerequisites that are not ready.
	StatusWaiting Status = 2
	// StatusInProgress means the payload is transferring.
	StatusInProgress Status = 3
	// StatusLoaded means the payload arrived but the record is not yet executable.
	StatusLoaded Status = 4
	// StatusReady means the payload validated and every prerequisite is ready.
	StatusReady Status = 5
	// StatusExecuted means the body ran exactly once.
	StatusExecuted Status = 6
)

var statusNames = map[Status]string{
	StatusError:      "Error",
	StatusNotLoaded:  "NotLoaded",
	StatusRequested:  "Requested",
	StatusWaiting:    "Waiting",
	StatusInProgress: "InProgress",
	StatusLoaded:     "Loaded",
	StatusReady:      "Ready",
	StatusExecuted:   "Executed",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "Status(" + strconv.Itoa(int(s)) + ")"
}

// IsReady reports whether s is Ready or Executed.
func (s Status) IsReady() bool {
	return s >= StatusReady
}

// IsLoading reports whether a fetch has been issued but no payload has arrived.
func (s Status) IsLoading() bool {
	return s >= StatusRequested && s < StatusLoaded
}
