// Package bigiptest provides an in-memory device simulator implementing
// bigip.Client. It mirrors the control API's observable behavior closely
// enough to stand in for a device in tests: name collisions, not-found
// errors with device-style messages, transaction buffering, and the
// lifecycle restrictions around object creation.
package bigiptest

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/dokzlo13/ltmsync/internal/bigip"
)

type deviceState struct {
	nodes    map[string]bigip.NodeState
	virtuals map[string]bigip.VirtualState
	vaddrs   map[string]bigip.VirtualAddressState
}

func newDeviceState() *deviceState {
	return &deviceState{
		nodes:    map[string]bigip.NodeState{},
		virtuals: map[string]bigip.VirtualState{},
		vaddrs:   map[string]bigip.VirtualAddressState{},
	}
}

func (d *deviceState) clone() *deviceState {
	out := newDeviceState()
	for k, v := range d.nodes {
		out.nodes[k] = v
	}
	for k, v := range d.virtuals {
		out.virtuals[k] = v
	}
	for k, v := range d.vaddrs {
		out.vaddrs[k] = v
	}
	return out
}

// Sim is an in-memory device. The zero value is not usable; call New.
type Sim struct {
	mu    sync.Mutex
	state *deviceState

	calls    []string
	mutating int

	fqdnReads map[string]int

	// FQDNResolveAfter is how many reads a freshly created FQDN node
	// stays in fqdn-checking before the simulator resolves it.
	FQDNResolveAfter int

	// Intercept, when set, runs before every mutating call and may fail
	// it. It runs outside the simulator lock, so it may call back into
	// the simulator to model concurrent actors.
	Intercept func(call, fullPath string) error
}

var _ bigip.Client = (*Sim)(nil)

func New() *Sim {
	return &Sim{
		state:     newDeviceState(),
		fqdnReads: map[string]int{},
	}
}

// SeedNode installs a node as pre-existing device state.
func (s *Sim) SeedNode(n bigip.NodeState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n.FullPath = bigip.FullPath(n.Partition, n.Name)
	s.state.nodes[n.FullPath] = n
}

// SeedVirtual installs a virtual server as pre-existing device state.
func (s *Sim) SeedVirtual(v bigip.VirtualState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v.FullPath = bigip.FullPath(v.Partition, v.Name)
	s.state.virtuals[v.FullPath] = v
}

// SeedVirtualAddress installs a virtual address as pre-existing device state.
func (s *Sim) SeedVirtualAddress(va bigip.VirtualAddressState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	va.FullPath = bigip.FullPath(va.Partition, va.Name)
	s.state.vaddrs[va.FullPath] = va
}

// Node returns the stored node, if any.
func (s *Sim) Node(fullPath string) (bigip.NodeState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.state.nodes[fullPath]
	return n, ok
}

// Virtual returns the stored virtual server, if any.
func (s *Sim) Virtual(fullPath string) (bigip.VirtualState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.state.virtuals[fullPath]
	return v, ok
}

// VirtualAddress returns the stored virtual address, if any.
func (s *Sim) VirtualAddress(fullPath string) (bigip.VirtualAddressState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	va, ok := s.state.vaddrs[fullPath]
	return va, ok
}

// Calls returns every recorded call in order.
func (s *Sim) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	copy(out, s.calls)
	return out
}

// MutatingCalls counts creates, modifies and deletes, including those
// queued through transactions.
func (s *Sim) MutatingCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutating
}

func (s *Sim) record(call, fullPath string, mutating bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call+" "+fullPath)
	if mutating {
		s.mutating++
	}
}

func (s *Sim) intercept(call, fullPath string) error {
	if s.Intercept == nil {
		return nil
	}
	return s.Intercept(call, fullPath)
}

func notFound(kind, fullPath string) error {
	return &bigip.APIError{
		StatusCode: 404,
		Message:    fmt.Sprintf("01020036:3: The requested %s (%s) was not found.", kind, fullPath),
	}
}

func alreadyExists(kind, fullPath, partition string) error {
	return &bigip.APIError{
		StatusCode: 409,
		Message:    fmt.Sprintf("01020066:3: The requested %s (%s) already exists in partition %s.", kind, fullPath, partition),
	}
}

func badRequest(format string, args ...any) error {
	return &bigip.APIError{StatusCode: 400, Message: fmt.Sprintf(format, args...)}
}

func (s *Sim) NodeExists(ctx context.Context, name, partition string) (bool, error) {
	s.record("NodeExists", bigip.FullPath(partition, name), false)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.state.nodes[bigip.FullPath(partition, name)]
	return ok, nil
}

func (s *Sim) ReadNode(ctx context.Context, name, partition string) (*bigip.NodeState, error) {
	full := bigip.FullPath(partition, name)
	s.record("ReadNode", full, false)
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.state.nodes[full]
	if !ok {
		return nil, notFound("Node", full)
	}
	if n.State == bigip.StateFQDNChecking {
		s.fqdnReads[full]++
		if s.fqdnReads[full] > s.FQDNResolveAfter {
			n.State = "unchecked"
			s.state.nodes[full] = n
		}
	}
	out := n
	return &out, nil
}

func (s *Sim) CreateNode(ctx context.Context, cfg bigip.NodeConfig) error {
	full := bigip.FullPath(cfg.Partition, cfg.Name)
	if err := s.intercept("CreateNode", full); err != nil {
		return err
	}
	s.record("CreateNode", full, true)
	s.mu.Lock()
	defer s.mu.Unlock()
	return createNode(s.state, cfg)
}

func createNode(d *deviceState, cfg bigip.NodeConfig) error {
	full := bigip.FullPath(cfg.Partition, cfg.Name)
	if _, ok := d.nodes[full]; ok {
		return alreadyExists("Node", full, cfg.Partition)
	}
	if cfg.State == bigip.StateUserDown {
		return badRequest("010716e3:3: Node state user-down may not be set at creation time.")
	}
	if cfg.Address == "" && cfg.FQDN == nil {
		return badRequest("01070734:3: Node (%s) requires an address or an FQDN.", full)
	}

	n := bigip.NodeState{
		Name:        cfg.Name,
		Partition:   cfg.Partition,
		FullPath:    full,
		Description: cfg.Description,
		Address:     cfg.Address,
		Monitor:     cfg.Monitor,
		Session:     cfg.Session,
		State:       cfg.State,
	}
	if n.Session == "" {
		n.Session = bigip.SessionUserEnabled
	}
	if n.State == "" {
		n.State = "unchecked"
	}
	if cfg.FQDN != nil {
		n.FQDN = *cfg.FQDN
		n.State = bigip.StateFQDNChecking
	}
	d.nodes[full] = n
	return nil
}

func (s *Sim) ModifyNode(ctx context.Context, name, partition string, patch bigip.Patch) error {
	full := bigip.FullPath(partition, name)
	if err := s.intercept("ModifyNode", full); err != nil {
		return err
	}
	s.record("ModifyNode", full, true)
	s.mu.Lock()
	defer s.mu.Unlock()
	return modifyNode(s.state, full, patch)
}

func modifyNode(d *deviceState, full string, patch bigip.Patch) error {
	n, ok := d.nodes[full]
	if !ok {
		return notFound("Node", full)
	}
	for key, value := range patch {
		switch key {
		case "description":
			n.Description, _ = value.(string)
		case "monitor":
			n.Monitor, _ = value.(string)
		case "session":
			n.Session, _ = value.(string)
		case "state":
			n.State, _ = value.(string)
		default:
			return badRequest("01020036:3: Unknown node property %q.", key)
		}
	}
	d.nodes[full] = n
	return nil
}

func (s *Sim) DeleteNode(ctx context.Context, name, partition string) error {
	full := bigip.FullPath(partition, name)
	if err := s.intercept("DeleteNode", full); err != nil {
		return err
	}
	s.record("DeleteNode", full, true)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state.nodes[full]; !ok {
		return notFound("Node", full)
	}
	delete(s.state.nodes, full)
	return nil
}

func (s *Sim) VirtualExists(ctx context.Context, name, partition string) (bool, error) {
	s.record("VirtualExists", bigip.FullPath(partition, name), false)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.state.virtuals[bigip.FullPath(partition, name)]
	return ok, nil
}

func (s *Sim) ReadVirtual(ctx context.Context, name, partition string) (*bigip.VirtualState, error) {
	full := bigip.FullPath(partition, name)
	s.record("ReadVirtual", full, false)
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.state.virtuals[full]
	if !ok {
		return nil, notFound("Virtual Server", full)
	}
	out := v
	out.Profiles = append([]bigip.ProfileRef(nil), v.Profiles...)
	out.Policies = append([]string(nil), v.Policies...)
	out.Rules = append([]bigip.RuleRef(nil), v.Rules...)
	out.VLANs = append([]string(nil), v.VLANs...)
	out.Persistence = append([]bigip.PersistRef(nil), v.Persistence...)
	return &out, nil
}

func (s *Sim) CreateVirtual(ctx context.Context, cfg bigip.VirtualConfig) error {
	full := bigip.FullPath(cfg.Partition, cfg.Name)
	if err := s.intercept("CreateVirtual", full); err != nil {
		return err
	}
	s.record("CreateVirtual", full, true)
	s.mu.Lock()
	defer s.mu.Unlock()
	return createVirtual(s.state, cfg)
}

func createVirtual(d *deviceState, cfg bigip.VirtualConfig) error {
	full := bigip.FullPath(cfg.Partition, cfg.Name)
	if _, ok := d.virtuals[full]; ok {
		return alreadyExists("Virtual Server", full, cfg.Partition)
	}
	if cfg.State == bigip.StateUserDown {
		return badRequest("01071a23:3: Virtual server state user-down may not be set at creation time.")
	}
	if cfg.Destination == "" {
		return badRequest("01070734:3: Virtual server (%s) requires a destination.", full)
	}
	if len(cfg.Profiles) == 0 {
		return badRequest("01070734:3: Virtual server (%s) requires at least one profile.", full)
	}

	v := bigip.VirtualState{
		Name:        cfg.Name,
		Partition:   cfg.Partition,
		FullPath:    full,
		Description: cfg.Description,
		Destination: cfg.Destination,
		Mask:        cfg.Mask,
		IPProtocol:  cfg.IPProtocol,
		Pool:        cfg.Pool,
		Profiles:    append([]bigip.ProfileRef(nil), cfg.Profiles...),
		Source:      bigip.SourceTranslation{Type: bigip.SNATTypeNone},
		Session:     cfg.Session,
		State:       cfg.State,
	}
	if v.Mask == "" {
		v.Mask = bigip.DefaultMask
	}
	if v.IPProtocol == "" {
		v.IPProtocol = bigip.IPProtocolTCP
	}
	if v.Session == "" {
		v.Session = bigip.SessionUserEnabled
	}
	if v.State == "" {
		v.State = "unchecked"
	}
	d.virtuals[full] = v

	// Creating a virtual server materializes the virtual address for its
	// destination when one does not exist yet.
	materializeVirtualAddress(d, cfg.Partition, cfg.Destination)
	return nil
}

func materializeVirtualAddress(d *deviceState, partition, destination string) {
	address, _, err := bigip.ParseDestination(destination)
	if err != nil {
		return
	}
	full := bigip.FullPath(partition, address)
	if _, ok := d.vaddrs[full]; ok {
		return
	}
	d.vaddrs[full] = bigip.VirtualAddressState{
		Name:               address,
		Partition:          partition,
		FullPath:           full,
		RouteAdvertisement: bigip.RouteAdvertisementDisabled,
	}
}

func (s *Sim) ModifyVirtual(ctx context.Context, name, partition string, patch bigip.Patch) error {
	full := bigip.FullPath(partition, name)
	if err := s.intercept("ModifyVirtual", full); err != nil {
		return err
	}
	s.record("ModifyVirtual", full, true)
	s.mu.Lock()
	defer s.mu.Unlock()
	return modifyVirtual(s.state, full, patch)
}

func modifyVirtual(d *deviceState, full string, patch bigip.Patch) error {
	v, ok := d.virtuals[full]
	if !ok {
		return notFound("Virtual Server", full)
	}
	for key, value := range patch {
		switch key {
		case "description":
			v.Description, _ = value.(string)
		case "destination":
			v.Destination, _ = value.(string)
			materializeVirtualAddress(d, v.Partition, v.Destination)
		case "mask":
			v.Mask, _ = value.(string)
		case "ipProtocol":
			v.IPProtocol, _ = value.(string)
		case "pool":
			v.Pool, _ = value.(string)
		case "profiles":
			refs, err := toProfileRefs(value)
			if err != nil {
				return err
			}
			if len(refs) == 0 {
				return badRequest("01070734:3: Virtual server (%s) requires at least one profile.", full)
			}
			v.Profiles = refs
		case "policies":
			names, err := toStrings(value)
			if err != nil {
				return err
			}
			v.Policies = names
		case "rules":
			refs, ok := value.([]bigip.RuleRef)
			if !ok {
				return badRequest("01020036:3: Bad value for virtual server property %q.", key)
			}
			v.Rules = append([]bigip.RuleRef(nil), refs...)
		case "vlans":
			names, err := toStrings(value)
			if err != nil {
				return err
			}
			v.VLANs = names
		case "vlansEnabled":
			v.VLANsEnabled, _ = value.(bool)
		case "vlansDisabled":
			disabled, _ := value.(bool)
			v.VLANsEnabled = !disabled
		case "sourceAddressTranslation":
			st, ok := value.(bigip.SourceTranslation)
			if !ok {
				return badRequest("01020036:3: Bad value for virtual server property %q.", key)
			}
			v.Source = st
		case "persist":
			refs, ok := value.([]bigip.PersistRef)
			if !ok {
				return badRequest("01020036:3: Bad value for virtual server property %q.", key)
			}
			v.Persistence = append([]bigip.PersistRef(nil), refs...)
		case "fallbackPersistence":
			v.FallbackPersistence, _ = value.(string)
		case "session":
			v.Session, _ = value.(string)
		case "state":
			v.State, _ = value.(string)
		default:
			return badRequest("01020036:3: Unknown virtual server property %q.", key)
		}
	}
	d.virtuals[full] = v
	return nil
}

func toStrings(value any) ([]string, error) {
	names, ok := value.([]string)
	if !ok {
		return nil, badRequest("01020036:3: Expected a list of names.")
	}
	return append([]string(nil), names...), nil
}

func toProfileRefs(value any) ([]bigip.ProfileRef, error) {
	refs, ok := value.([]bigip.ProfileRef)
	if !ok {
		return nil, badRequest("01020036:3: Expected a list of profiles.")
	}
	return append([]bigip.ProfileRef(nil), refs...), nil
}

func (s *Sim) DeleteVirtual(ctx context.Context, name, partition string) error {
	full := bigip.FullPath(partition, name)
	if err := s.intercept("DeleteVirtual", full); err != nil {
		return err
	}
	s.record("DeleteVirtual", full, true)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state.virtuals[full]; !ok {
		return notFound("Virtual Server", full)
	}
	delete(s.state.virtuals, full)
	return nil
}

func (s *Sim) ReadVirtualAddress(ctx context.Context, name, partition string) (*bigip.VirtualAddressState, error) {
	full := bigip.FullPath(partition, name)
	s.record("ReadVirtualAddress", full, false)
	s.mu.Lock()
	defer s.mu.Unlock()
	va, ok := s.state.vaddrs[full]
	if !ok {
		return nil, notFound("Virtual Address", full)
	}
	out := va
	return &out, nil
}

func (s *Sim) ModifyVirtualAddress(ctx context.Context, name, partition string, patch bigip.Patch) error {
	full := bigip.FullPath(partition, name)
	if err := s.intercept("ModifyVirtualAddress", full); err != nil {
		return err
	}
	s.record("ModifyVirtualAddress", full, true)
	s.mu.Lock()
	defer s.mu.Unlock()
	va, ok := s.state.vaddrs[full]
	if !ok {
		return notFound("Virtual Address", full)
	}
	for key, value := range patch {
		switch key {
		case "routeAdvertisement":
			va.RouteAdvertisement, _ = value.(string)
		default:
			return badRequest("01020036:3: Unknown virtual address property %q.", key)
		}
	}
	s.state.vaddrs[full] = va
	return nil
}

// Begin opens a buffered transaction. Queued calls are validated and
// applied atomically on Commit, the way the device's coordination ids
// behave.
func (s *Sim) Begin(ctx context.Context) (bigip.Tx, error) {
	id := uuid.NewString()
	s.record("Begin", id, false)
	return &simTx{sim: s, id: id}, nil
}

type simTx struct {
	sim  *Sim
	id   string
	ops  []func(*deviceState) error
	done bool
}

func (t *simTx) queue(call, fullPath string, op func(*deviceState) error) error {
	if t.done {
		return badRequest("0107046a:3: Transaction %s is no longer open.", t.id)
	}
	if err := t.sim.intercept(call, fullPath); err != nil {
		return err
	}
	t.sim.record(call, fullPath, true)
	t.ops = append(t.ops, op)
	return nil
}

func (t *simTx) Commit(ctx context.Context) error {
	t.sim.record("Commit", t.id, false)
	t.done = true

	t.sim.mu.Lock()
	defer t.sim.mu.Unlock()
	next := t.sim.state.clone()
	for _, op := range t.ops {
		if err := op(next); err != nil {
			return err
		}
	}
	t.sim.state = next
	return nil
}

func (t *simTx) NodeExists(ctx context.Context, name, partition string) (bool, error) {
	return t.sim.NodeExists(ctx, name, partition)
}

func (t *simTx) ReadNode(ctx context.Context, name, partition string) (*bigip.NodeState, error) {
	return t.sim.ReadNode(ctx, name, partition)
}

func (t *simTx) CreateNode(ctx context.Context, cfg bigip.NodeConfig) error {
	return t.queue("CreateNode", bigip.FullPath(cfg.Partition, cfg.Name), func(d *deviceState) error {
		return createNode(d, cfg)
	})
}

func (t *simTx) ModifyNode(ctx context.Context, name, partition string, patch bigip.Patch) error {
	full := bigip.FullPath(partition, name)
	return t.queue("ModifyNode", full, func(d *deviceState) error {
		return modifyNode(d, full, patch)
	})
}

func (t *simTx) DeleteNode(ctx context.Context, name, partition string) error {
	full := bigip.FullPath(partition, name)
	return t.queue("DeleteNode", full, func(d *deviceState) error {
		if _, ok := d.nodes[full]; !ok {
			return notFound("Node", full)
		}
		delete(d.nodes, full)
		return nil
	})
}

func (t *simTx) VirtualExists(ctx context.Context, name, partition string) (bool, error) {
	return t.sim.VirtualExists(ctx, name, partition)
}

func (t *simTx) ReadVirtual(ctx context.Context, name, partition string) (*bigip.VirtualState, error) {
	return t.sim.ReadVirtual(ctx, name, partition)
}

func (t *simTx) CreateVirtual(ctx context.Context, cfg bigip.VirtualConfig) error {
	return t.queue("CreateVirtual", bigip.FullPath(cfg.Partition, cfg.Name), func(d *deviceState) error {
		return createVirtual(d, cfg)
	})
}

func (t *simTx) ModifyVirtual(ctx context.Context, name, partition string, patch bigip.Patch) error {
	full := bigip.FullPath(partition, name)
	return t.queue("ModifyVirtual", full, func(d *deviceState) error {
		return modifyVirtual(d, full, patch)
	})
}

func (t *simTx) DeleteVirtual(ctx context.Context, name, partition string) error {
	full := bigip.FullPath(partition, name)
	return t.queue("DeleteVirtual", full, func(d *deviceState) error {
		if _, ok := d.virtuals[full]; !ok {
			return notFound("Virtual Server", full)
		}
		delete(d.virtuals, full)
		return nil
	})
}

func (t *simTx) ReadVirtualAddress(ctx context.Context, name, partition string) (*bigip.VirtualAddressState, error) {
	return t.sim.ReadVirtualAddress(ctx, name, partition)
}

func (t *simTx) ModifyVirtualAddress(ctx context.Context, name, partition string, patch bigip.Patch) error {
	full := bigip.FullPath(partition, name)
	return t.queue("ModifyVirtualAddress", full, func(d *deviceState) error {
		va, ok := d.vaddrs[full]
		if !ok {
			return notFound("Virtual Address", full)
		}
		for key, value := range patch {
			switch key {
			case "routeAdvertisement":
				va.RouteAdvertisement, _ = value.(string)
			default:
				return badRequest("01020036:3: Unknown virtual address property %q.", key)
			}
		}
		d.vaddrs[full] = va
		return nil
	})
}
