package bigip

import (
	"fmt"
	"strconv"
	"strings"
)

// Session and state values the device uses to encode a resource's lifecycle.
// A logical lifecycle state maps onto a (session, state) pair; see the
// reconcile package for the mapping.
const (
	SessionUserEnabled  = "user-enabled"
	SessionUserDisabled = "user-disabled"

	StateUserUp       = "user-up"
	StateUserDown     = "user-down"
	StateFQDNChecking = "fqdn-checking"
)

// IPProtocolTCP is the protocol new virtual servers are created with.
const IPProtocolTCP = "tcp"

// DefaultMask is the destination netmask new virtual servers are created with.
const DefaultMask = "255.255.255.255"

// Patch is a partial resource body sent with a modify call.
type Patch map[string]any

// ProfileRef attaches a profile to a virtual server.
type ProfileRef struct {
	Name    string `json:"name"`
	Context string `json:"context,omitempty"`
}

// ProfileContextAll applies a profile to both client and server side traffic.
const ProfileContextAll = "all"

// RuleRef attaches a rule to a virtual server at a given priority.
type RuleRef struct {
	Priority int    `json:"priority"`
	Name     string `json:"name"`
}

// PersistRef attaches a persistence profile to a virtual server.
type PersistRef struct {
	Name    string `json:"name"`
	Default bool   `json:"tmDefault,omitempty"`
}

// SourceTranslation is the virtual server's source address translation block.
type SourceTranslation struct {
	Type string `json:"type,omitempty"` // none | automap | snat
	Pool string `json:"pool,omitempty"`
}

// Source translation types.
const (
	SNATTypeNone    = "none"
	SNATTypeAutomap = "automap"
	SNATTypePool    = "snat"
)

// FQDNSettings is the node's FQDN block, set when a node is backed by a DNS
// name instead of a static address.
type FQDNSettings struct {
	Name          string `json:"tmName,omitempty"`
	AddressFamily string `json:"addressFamily,omitempty"`
	AutoPopulate  string `json:"autopopulate,omitempty"`
	DownInterval  int    `json:"downInterval,omitempty"`
}

// NodeState is the device's current view of a node.
type NodeState struct {
	Name        string       `json:"name"`
	Partition   string       `json:"partition"`
	FullPath    string       `json:"fullPath"`
	Description string       `json:"description,omitempty"`
	Address     string       `json:"address,omitempty"`
	FQDN        FQDNSettings `json:"fqdn,omitempty"`
	Monitor     string       `json:"monitor,omitempty"`
	Session     string       `json:"session,omitempty"`
	State       string       `json:"state,omitempty"`
}

// NodeConfig is the body of a node creation call.
type NodeConfig struct {
	Name        string        `json:"name"`
	Partition   string        `json:"partition"`
	Description string        `json:"description,omitempty"`
	Address     string        `json:"address,omitempty"`
	FQDN        *FQDNSettings `json:"fqdn,omitempty"`
	Monitor     string        `json:"monitor,omitempty"`
	Session     string        `json:"session,omitempty"`
	State       string        `json:"state,omitempty"`
}

// VirtualState is the device's current view of a virtual server.
type VirtualState struct {
	Name                string            `json:"name"`
	Partition           string            `json:"partition"`
	FullPath            string            `json:"fullPath"`
	Description         string            `json:"description,omitempty"`
	Destination         string            `json:"destination,omitempty"`
	Mask                string            `json:"mask,omitempty"`
	IPProtocol          string            `json:"ipProtocol,omitempty"`
	Pool                string            `json:"pool,omitempty"`
	Profiles            []ProfileRef      `json:"profiles,omitempty"`
	Policies            []string          `json:"policies,omitempty"`
	Rules               []RuleRef         `json:"rules,omitempty"`
	VLANs               []string          `json:"vlans,omitempty"`
	VLANsEnabled        bool              `json:"vlansEnabled,omitempty"`
	Source              SourceTranslation `json:"sourceAddressTranslation,omitempty"`
	Persistence         []PersistRef      `json:"persist,omitempty"`
	FallbackPersistence string            `json:"fallbackPersistence,omitempty"`
	Session             string            `json:"session,omitempty"`
	State               string            `json:"state,omitempty"`
}

// VirtualConfig is the body of a virtual server creation call.
type VirtualConfig struct {
	Name        string       `json:"name"`
	Partition   string       `json:"partition"`
	Description string       `json:"description,omitempty"`
	Destination string       `json:"destination,omitempty"`
	Mask        string       `json:"mask,omitempty"`
	IPProtocol  string       `json:"ipProtocol,omitempty"`
	Pool        string       `json:"pool,omitempty"`
	Profiles    []ProfileRef `json:"profiles,omitempty"`
	Session     string       `json:"session,omitempty"`
	State       string       `json:"state,omitempty"`
}

// VirtualAddressState is the device's view of the virtual address that backs
// a virtual server's destination. Route advertisement lives here, not on the
// virtual server itself.
type VirtualAddressState struct {
	Name               string `json:"name"`
	Partition          string `json:"partition"`
	FullPath           string `json:"fullPath"`
	RouteAdvertisement string `json:"routeAdvertisement,omitempty"` // enabled | disabled
}

// Route advertisement values on a virtual address. New virtual addresses
// come up disabled.
const (
	RouteAdvertisementEnabled  = "enabled"
	RouteAdvertisementDisabled = "disabled"
)

// FullPath joins a partition and an object name into the device's
// fully-qualified form.
func FullPath(partition, name string) string {
	if strings.HasPrefix(name, "/") {
		return name
	}
	return "/" + partition + "/" + name
}

// SplitPath breaks a fully-qualified path into partition and name. Names that
// are not qualified come back with an empty partition.
func SplitPath(path string) (partition, name string) {
	if !strings.HasPrefix(path, "/") {
		return "", path
	}
	parts := strings.SplitN(path[1:], "/", 2)
	if len(parts) != 2 {
		return "", path
	}
	return parts[0], parts[1]
}

// FormatDestination renders the device's destination form for a virtual
// server: /<partition>/<address>:<port>. IPv6 addresses use a dot separator
// because the colon is taken.
func FormatDestination(partition, address string, port int) string {
	sep := ":"
	if strings.Count(address, ":") >= 2 {
		sep = "."
	}
	return fmt.Sprintf("/%s/%s%s%d", partition, address, sep, port)
}

// ParseDestination splits a device destination into its address and port.
func ParseDestination(dest string) (address string, port int, err error) {
	_, hostport := SplitPath(dest)
	sep := ":"
	if strings.Count(hostport, ":") >= 2 {
		// IPv6: the device separates the port with a dot.
		sep = "."
	}
	idx := strings.LastIndex(hostport, sep)
	if idx < 0 {
		return "", 0, fmt.Errorf("malformed destination %q", dest)
	}
	port, err = strconv.Atoi(hostport[idx+1:])
	if err != nil {
		return "", 0, fmt.Errorf("malformed destination port in %q: %w", dest, err)
	}
	return hostport[:idx], port, nil
}
