package reconcile

import (
	"fmt"

	"github.com/dokzlo13/ltmsync/internal/bigip"
)

// Lifecycle is the logical state a caller declares for a resource.
type Lifecycle string

const (
	LifecyclePresent  Lifecycle = "present"
	LifecycleAbsent   Lifecycle = "absent"
	LifecycleEnabled  Lifecycle = "enabled"
	LifecycleDisabled Lifecycle = "disabled"
	LifecycleOffline  Lifecycle = "offline"
)

// ParseLifecycle validates a declared lifecycle value. The empty string
// defaults to present.
func ParseLifecycle(s string) (Lifecycle, error) {
	switch l := Lifecycle(s); l {
	case "":
		return LifecyclePresent, nil
	case LifecyclePresent, LifecycleAbsent, LifecycleEnabled, LifecycleDisabled, LifecycleOffline:
		return l, nil
	default:
		return "", fmt.Errorf("unknown lifecycle state %q", s)
	}
}

// SessionState is the device's two-field encoding of a lifecycle.
type SessionState struct {
	Session string
	State   string
}

// Patch renders the pair as a wire payload. Both fields always travel
// together; the device interprets them as a unit.
func (p SessionState) Patch() bigip.Patch {
	return bigip.Patch{"session": p.Session, "state": p.State}
}

// TargetPair maps the desired lifecycle onto the device pair. Absent has
// no pair; callers handle it before mapping.
func (l Lifecycle) TargetPair() SessionState {
	switch l {
	case LifecycleDisabled:
		return SessionState{Session: bigip.SessionUserDisabled, State: bigip.StateUserUp}
	case LifecycleOffline:
		return SessionState{Session: bigip.SessionUserDisabled, State: bigip.StateUserDown}
	default:
		// present and enabled share a projection
		return SessionState{Session: bigip.SessionUserEnabled, State: bigip.StateUserUp}
	}
}

// CreationPair is the pair a create call may carry. The device rejects
// user-down at creation time, so offline creates with the disabled pair
// and reports that a post-create fixup to user-down is required.
func (l Lifecycle) CreationPair() (SessionState, bool) {
	if l == LifecycleOffline {
		return SessionState{Session: bigip.SessionUserDisabled, State: bigip.StateUserUp}, true
	}
	return l.TargetPair(), false
}

// PairDiffers compares a target pair against the observed pair. The
// observed state field only distinguishes "forced down" from everything
// else: values like up, down and unchecked are monitor-driven and all
// satisfy a user-up target.
func PairDiffers(target SessionState, haveSession, haveState string) bool {
	wantDown := target.State == bigip.StateUserDown
	haveDown := haveState == bigip.StateUserDown
	return target.Session != haveSession || wantDown != haveDown
}

// PairChange returns the pair to write when the observed pair does not
// satisfy the desired lifecycle.
func (l Lifecycle) PairChange(haveSession, haveState string) (SessionState, bool) {
	target := l.TargetPair()
	if PairDiffers(target, haveSession, haveState) {
		return target, true
	}
	return SessionState{}, false
}
