// Package declaration loads desired-state documents. A document lists the
// nodes and virtual servers a pass should converge, with per-document
// defaults. Documents are plain YAML; Lua-rendered documents arrive through
// internal/script and resolve the same way.
package declaration

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dokzlo13/ltmsync/internal/bigip"
	"github.com/dokzlo13/ltmsync/internal/reconcile"
	"github.com/dokzlo13/ltmsync/internal/reconcile/node"
	"github.com/dokzlo13/ltmsync/internal/reconcile/virtualserver"
)

// DefaultPartition is used when neither the resource nor the document
// names one.
const DefaultPartition = "Common"

// Document is one desired-state declaration file.
type Document struct {
	Defaults       Defaults        `yaml:"defaults"`
	Nodes          []Node          `yaml:"nodes"`
	VirtualServers []VirtualServer `yaml:"virtual_servers"`
}

// Defaults apply to every resource in the document that leaves the field
// unset.
type Defaults struct {
	Partition string `yaml:"partition"`
}

// Node is the declared desired configuration of one node.
type Node struct {
	Name              string   `yaml:"name"`
	Partition         string   `yaml:"partition"`
	State             string   `yaml:"state"`
	Description       *string  `yaml:"description"`
	Address           string   `yaml:"address"`
	FQDN              string   `yaml:"fqdn"`
	FQDNAddressFamily string   `yaml:"fqdn_address_family"`
	FQDNAutoPopulate  *bool    `yaml:"fqdn_auto_populate"`
	FQDNDownInterval  *int     `yaml:"fqdn_down_interval"`
	MonitorType       string   `yaml:"monitor_type"`
	Quorum            *int     `yaml:"quorum"`
	Monitors          []string `yaml:"monitors"`
}

// VirtualServer is the declared desired configuration of one virtual
// server.
type VirtualServer struct {
	Name                string   `yaml:"name"`
	Partition           string   `yaml:"partition"`
	State               string   `yaml:"state"`
	Description         *string  `yaml:"description"`
	Destination         string   `yaml:"destination"`
	Port                *int     `yaml:"port"`
	Pool                *string  `yaml:"pool"`
	Profiles            []string `yaml:"profiles"`
	Policies            []string `yaml:"policies"`
	Rules               []string `yaml:"rules"`
	VLANs               []string `yaml:"vlans"`
	SNAT                *string  `yaml:"snat"`
	DefaultPersistence  *string  `yaml:"default_persistence"`
	FallbackPersistence *string  `yaml:"fallback_persistence"`
	RouteAdvertisement  *string  `yaml:"route_advertisement"`
}

// Resolved is a document projected onto the engine's desired records.
type Resolved struct {
	Nodes          []node.Desired
	VirtualServers []virtualserver.Desired
}

// Load reads and parses a YAML declaration file.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse parses a YAML declaration document.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing declaration: %w", err)
	}
	return &doc, nil
}

// Resolve validates the document and projects it onto typed desired
// records, applying document defaults.
func (d *Document) Resolve() (*Resolved, error) {
	out := &Resolved{}
	for i, n := range d.Nodes {
		desired, err := d.resolveNode(n)
		if err != nil {
			return nil, fmt.Errorf("node %d (%s): %w", i, n.Name, err)
		}
		out.Nodes = append(out.Nodes, desired)
	}
	for i, vs := range d.VirtualServers {
		desired, err := d.resolveVirtualServer(vs)
		if err != nil {
			return nil, fmt.Errorf("virtual server %d (%s): %w", i, vs.Name, err)
		}
		out.VirtualServers = append(out.VirtualServers, desired)
	}
	return out, nil
}

func (d *Document) partition(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if d.Defaults.Partition != "" {
		return d.Defaults.Partition
	}
	return DefaultPartition
}

func (d *Document) resolveNode(n Node) (node.Desired, error) {
	if n.Name == "" {
		return node.Desired{}, reconcile.Validationf("name is required")
	}
	state, err := reconcile.ParseLifecycle(n.State)
	if err != nil {
		return node.Desired{}, reconcile.Validationf("%v", err)
	}
	mt, err := parseMonitorType(n.MonitorType)
	if err != nil {
		return node.Desired{}, err
	}
	return node.Desired{
		Name:              n.Name,
		Partition:         d.partition(n.Partition),
		State:             state,
		Description:       n.Description,
		Address:           n.Address,
		FQDN:              n.FQDN,
		FQDNAddressFamily: n.FQDNAddressFamily,
		FQDNAutoPopulate:  n.FQDNAutoPopulate,
		FQDNDownInterval:  n.FQDNDownInterval,
		MonitorType:       mt,
		Quorum:            n.Quorum,
		Monitors:          n.Monitors,
	}, nil
}

func (d *Document) resolveVirtualServer(vs VirtualServer) (virtualserver.Desired, error) {
	if vs.Name == "" {
		return virtualserver.Desired{}, reconcile.Validationf("name is required")
	}
	state, err := reconcile.ParseLifecycle(vs.State)
	if err != nil {
		return virtualserver.Desired{}, reconcile.Validationf("%v", err)
	}
	if err := validateRouteAdvertisement(vs.RouteAdvertisement); err != nil {
		return virtualserver.Desired{}, err
	}
	ra := vs.RouteAdvertisement
	if ra != nil && *ra == "" {
		// unlike fallback_persistence, the empty string is not a clear
		// sentinel here; it means unmanaged
		ra = nil
	}
	return virtualserver.Desired{
		Name:                vs.Name,
		Partition:           d.partition(vs.Partition),
		State:               state,
		Description:         vs.Description,
		Destination:         vs.Destination,
		Port:                vs.Port,
		Pool:                vs.Pool,
		Profiles:            vs.Profiles,
		Policies:            vs.Policies,
		Rules:               vs.Rules,
		VLANs:               vs.VLANs,
		SNAT:                vs.SNAT,
		DefaultPersistence:  vs.DefaultPersistence,
		FallbackPersistence: vs.FallbackPersistence,
		RouteAdvertisement:  ra,
	}, nil
}

func parseMonitorType(s string) (reconcile.MonitorType, error) {
	switch t := reconcile.MonitorType(s); t {
	case "", reconcile.MonitorAndList, reconcile.MonitorMOfN, reconcile.MonitorSingle:
		return t, nil
	default:
		return "", reconcile.Validationf("unknown monitor_type %q", s)
	}
}

func validateRouteAdvertisement(v *string) error {
	if v == nil || *v == "" {
		return nil
	}
	if strings.EqualFold(*v, bigip.RouteAdvertisementEnabled) || strings.EqualFold(*v, bigip.RouteAdvertisementDisabled) {
		return nil
	}
	return reconcile.Validationf("route_advertisement must be %q or %q", bigip.RouteAdvertisementEnabled, bigip.RouteAdvertisementDisabled)
}
