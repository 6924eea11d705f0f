// Package lifecycle holds the pickup status machine and the credit rate table.
package lifecycle

import (
	"errors"
	"fmt"
)

type Status string

const (
	StatusPending           Status = "pending"
	StatusAdminApproved     Status = "admin-approved"
	StatusAdminRejected     Status = "admin-rejected"
	StatusCollectorAssigned Status = "collector-assigned"
	StatusCollectorAccepted Status = "collector-accepted"
	StatusInProgress        Status = "in-progress"
	StatusCompleted         Status = "completed"
	StatusCancelled         Status = "cancelled"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{
	StatusPending,
	StatusAdminApproved,
	StatusAdminRejected,
	StatusCollectorAssigned,
	StatusCollectorAccepted,
	StatusInProgress,
	StatusCompleted,
	StatusCancelled,
}

type Action string

const (
	ActionApprove  Action = "approve"
	ActionReject   Action = "reject"
	ActionAssign   Action = "assign"
	ActionAccept   Action = "accept"
	ActionStart    Action = "start"
	ActionComplete Action = "complete"
	ActionCancel   Action = "cancel"

	// ActionCreate labels the creation event. It is never a valid transition.
	ActionCreate Action = "create"
)

var ErrIllegalTransition = errors.New("illegal status transition")

var transitions = map[Status]map[Action]Status{
	StatusPending: {
		ActionApprove: StatusAdminApproved,
		ActionReject:  StatusAdminRejected,
	},
	StatusAdminApproved: {
		ActionAssign: StatusCollectorAssigned,
	},
	StatusCollectorAssigned: {
		ActionAccept: StatusCollectorAccepted,
		ActionStart:  StatusInProgress,
	},
	StatusCollectorAccepted: {
		ActionStart: StatusInProgress,
	},
	StatusInProgress: {
		ActionComplete: StatusCompleted,
	},
}

func init() {
	for _, s := range Statuses {
		if s.Terminal() {
			continue
		}
		if transitions[s] == nil {
			transitions[s] = map[Action]Status{}
		}
		transitions[s][ActionCancel] = StatusCancelled
	}
}

// Next returns the status reached by applying action to from.
func Next(from Status, action Action) (Status, error) {
	to, ok := transitions[from][action]
	if !ok {
		return from, fmt.Errorf("%w: cannot %s a pickup in status %s", ErrIllegalTransition, action, from)
	}
	return to, nil
}

// Allowed reports whether action is legal from status s.
func (s Status) Allowed(action Action) bool {
	_, ok := transitions[s][action]
	return ok
}

func (s Status) Terminal() bool {
	switch s {
	case StatusAdminRejected, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// RequiresCollector reports whether a pickup in status s must carry an assignee.
func (s Status) RequiresCollector() bool {
	switch s {
	case StatusCollectorAssigned, StatusCollectorAccepted, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// ActiveForCollector are the statuses shown on a collector's work list.
var ActiveForCollector = []Status{StatusCollectorAssigned, StatusCollectorAccepted, StatusInProgress}
