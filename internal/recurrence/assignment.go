package recurrence

import "fieldtask/internal/domain"

// ResolveAssignment decides who the next generated task goes to.
//
// lastIndex is the template's persisted rotation pointer (-1 before the
// first rotation assignment); callers persist nextIndex alongside the
// schedule advance so round-robin survives across sweeps. For non-rotating
// rules nextIndex echoes lastIndex unchanged.
//
// A rotate rule with an empty rotation list degrades to no assignment
// rather than failing.
func ResolveAssignment(rule *domain.RecurrenceRule, lastIndex int) (userID string, assigned bool, nextIndex int) {
	if rule == nil {
		return "", false, lastIndex
	}

	switch rule.AssignTo {
	case domain.AssignFixed:
		if rule.FixedUserID == "" {
			return "", false, lastIndex
		}
		return rule.FixedUserID, true, lastIndex

	case domain.AssignRotate:
		n := len(rule.RotationUserIDs)
		if n == 0 {
			return "", false, lastIndex
		}
		if lastIndex < -1 || lastIndex >= n {
			// Pointer out of range (list edited since last sweep): restart
			// the cycle.
			lastIndex = -1
		}
		next := (lastIndex + 1) % n
		return rule.RotationUserIDs[next], true, next

	default:
		// none or anything unrecognized: no assignment.
		return "", false, lastIndex
	}
}
