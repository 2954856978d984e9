package reconcile

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// MonitorType selects how multiple health monitors combine.
type MonitorType string

const (
	// MonitorAndList requires every monitor to pass.
	MonitorAndList MonitorType = "and_list"
	// MonitorMOfN requires a quorum of monitors to pass.
	MonitorMOfN MonitorType = "m_of_n"
	// MonitorSingle is a client-side constraint: exactly one monitor,
	// transmitted to the device as an and_list.
	MonitorSingle MonitorType = "single"
)

// MonitorRule is the structured form of the device's monitor expression.
// The device stores it as a single string, "a and b" or
// "min N of { a b }"; quorum is only meaningful for m_of_n.
type MonitorRule struct {
	Type     MonitorType
	Quorum   int
	Monitors []string
}

var (
	monitorNameRe   = regexp.MustCompile(`/\w+/[^\s}]+`)
	monitorQuorumRe = regexp.MustCompile(`min\s+(\d+)\s+of`)
)

// ParseMonitorExpr decodes a device monitor expression into a rule. An
// expression with no monitor references decodes to an empty and_list,
// which is how an unmonitored resource reads.
func ParseMonitorExpr(expr string) MonitorRule {
	rule := MonitorRule{
		Type:     MonitorAndList,
		Monitors: monitorNameRe.FindAllString(expr, -1),
	}
	if m := monitorQuorumRe.FindStringSubmatch(expr); m != nil {
		rule.Type = MonitorMOfN
		rule.Quorum, _ = strconv.Atoi(m[1])
	}
	return rule
}

// Expr renders the rule back into the device's expression form. An empty
// rule renders as the empty string.
func (r MonitorRule) Expr() string {
	if len(r.Monitors) == 0 {
		return ""
	}
	if r.Type == MonitorMOfN {
		return fmt.Sprintf("min %d of { %s }", r.Quorum, strings.Join(r.Monitors, " "))
	}
	return strings.Join(r.Monitors, " and ")
}

// Empty reports whether the rule references no monitors.
func (r MonitorRule) Empty() bool {
	return len(r.Monitors) == 0
}

// MonitorSpec is the caller's, possibly partial, monitor configuration.
// An empty Type inherits the observed type; an empty monitor list
// inherits the observed list rather than clearing it.
type MonitorSpec struct {
	Type     MonitorType
	Quorum   *int
	Monitors []string
}

// Unset reports whether the spec leaves monitors unmanaged entirely.
func (s MonitorSpec) Unset() bool {
	return s.Type == "" && len(s.Monitors) == 0 && s.Quorum == nil
}

// ResolveMonitors merges the desired spec over the observed rule,
// validates the combination, and returns the rule to transmit along with
// whether it differs from what the device holds. Monitor names in the
// spec must already be fully qualified.
func ResolveMonitors(spec MonitorSpec, have MonitorRule) (MonitorRule, bool, error) {
	wantType := spec.Type
	if wantType == "" && !have.Empty() {
		wantType = have.Type
	}

	quorum := 0
	quorumSet := false
	switch {
	case spec.Quorum != nil:
		quorum = *spec.Quorum
		quorumSet = true
	case have.Type == MonitorMOfN:
		quorum = have.Quorum
		quorumSet = true
	}

	switch wantType {
	case MonitorMOfN:
		if !quorumSet {
			return MonitorRule{}, false, Validationf("Quorum value must be specified with monitor_type 'm_of_n'.")
		}
	case MonitorSingle:
		if len(spec.Monitors) > 1 {
			return MonitorRule{}, false, Validationf("When using a 'monitor_type' of 'single', only one monitor may be provided.")
		}
		if len(have.Monitors) > 1 && len(spec.Monitors) == 0 {
			return MonitorRule{}, false, Validationf("A single monitor must be specified if more than one monitor currently exists on your pool.")
		}
		// single is and_list plus the checks above; the device never
		// sees it.
		wantType = MonitorAndList
	}

	monitors := spec.Monitors
	if len(monitors) == 0 {
		monitors = have.Monitors
	}
	if len(monitors) == 0 && wantType != "" {
		return MonitorRule{}, false, Validationf("The 'monitors' parameter cannot be empty when 'monitor_type' parameter is specified")
	}

	resolved := MonitorRule{Type: wantType, Monitors: monitors}
	if wantType == MonitorMOfN {
		resolved.Quorum = quorum
	}
	if resolved.Type == "" {
		resolved.Type = MonitorAndList
	}
	return resolved, resolved.Expr() != have.Expr(), nil
}
