package domain

// transitionTable is the single source of truth for who may move a report
// where. Forward and reverse edges are listed separately because they carry
// different permission requirements. Roles absent from the table are read-only.
var transitionTable = map[Role]map[Status][]Status{
	RoleAdmin: {
		StatusNew:        {StatusVerified, StatusInProgress, StatusRejected},
		StatusVerified:   {StatusInProgress, StatusRejected, StatusNew},
		StatusInProgress: {StatusResolved, StatusVerified, StatusRejected},
		StatusResolved:   {StatusInProgress},
		StatusRejected:   {StatusNew, StatusVerified},
	},
	RoleFieldOfficer: {
		StatusVerified:   {StatusInProgress},
		StatusInProgress: {StatusResolved},
	},
}

// AllowedTransitions returns the statuses role may move a report to from
// current. Unknown roles and statuses yield an empty set.
func AllowedTransitions(role Role, current Status) []Status {
	next := transitionTable[role][current]
	out := make([]Status, len(next))
	copy(out, next)
	return out
}

func IsTransitionAllowed(role Role, from, to Status) bool {
	for _, s := range transitionTable[role][from] {
		if s == to {
			return true
		}
	}
	return false
}

// CheckTransition returns a *TransitionError when the move is not permitted.
func CheckTransition(role Role, from, to Status) error {
	if !IsTransitionAllowed(role, from, to) {
		return &TransitionError{Role: role, From: from, To: to}
	}
	return nil
}

// CanEditReports reports whether role may change report fields at all.
func CanEditReports(role Role) bool {
	_, ok := transitionTable[role]
	return ok
}

func CanClassify(role Role) bool {
	return role == RoleAdmin || role == RoleFieldOfficer
}
