// Package script renders declaration documents from Lua programs. A
// declaration script returns a table with the same shape as the YAML
// document: defaults, nodes, virtual_servers. Scripted declarations let
// callers compute resource lists instead of enumerating them.
package script

import (
	"fmt"
	"math"

	glua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/ltmsync/internal/declaration"
	"github.com/dokzlo13/ltmsync/internal/reconcile"
)

// Render executes a Lua declaration script and converts the table it
// returns into a Document.
func Render(path string) (*declaration.Document, error) {
	L := glua.NewState()
	defer L.Close()

	if err := L.DoFile(path); err != nil {
		return nil, fmt.Errorf("running declaration script: %w", err)
	}
	return documentFromReturn(L)
}

// RenderSource executes an in-memory Lua declaration script.
func RenderSource(src string) (*declaration.Document, error) {
	L := glua.NewState()
	defer L.Close()

	if err := L.DoString(src); err != nil {
		return nil, fmt.Errorf("running declaration script: %w", err)
	}
	return documentFromReturn(L)
}

func documentFromReturn(L *glua.LState) (*declaration.Document, error) {
	ret := L.Get(-1)
	tbl, ok := ret.(*glua.LTable)
	if !ok {
		return nil, reconcile.Validationf("declaration script must return a table, got %s", ret.Type())
	}

	raw, ok := luaToGo(tbl).(map[string]any)
	if !ok {
		return nil, reconcile.Validationf("declaration script must return a table of named sections")
	}

	doc := &declaration.Document{}
	if defaults, ok := raw["defaults"].(map[string]any); ok {
		doc.Defaults.Partition, _ = defaults["partition"].(string)
	}

	nodes, err := section(raw, "nodes")
	if err != nil {
		return nil, err
	}
	for i, m := range nodes {
		n, err := nodeFromMap(m)
		if err != nil {
			return nil, fmt.Errorf("nodes[%d]: %w", i+1, err)
		}
		doc.Nodes = append(doc.Nodes, n)
	}

	virtuals, err := section(raw, "virtual_servers")
	if err != nil {
		return nil, err
	}
	for i, m := range virtuals {
		vs, err := virtualServerFromMap(m)
		if err != nil {
			return nil, fmt.Errorf("virtual_servers[%d]: %w", i+1, err)
		}
		doc.VirtualServers = append(doc.VirtualServers, vs)
	}
	return doc, nil
}

func nodeFromMap(m map[string]any) (declaration.Node, error) {
	var n declaration.Node
	n.Name = stringField(m, "name")
	n.Partition = stringField(m, "partition")
	n.State = stringField(m, "state")
	n.Description = stringPtrField(m, "description")
	n.Address = stringField(m, "address")
	n.FQDN = stringField(m, "fqdn")
	n.FQDNAddressFamily = stringField(m, "fqdn_address_family")
	n.FQDNAutoPopulate = boolPtrField(m, "fqdn_auto_populate")
	n.MonitorType = stringField(m, "monitor_type")

	quorum, err := intPtrField(m, "quorum")
	if err != nil {
		return n, reconcile.Validationf("The specified 'quorum' must be an integer.")
	}
	n.Quorum = quorum

	downInterval, err := intPtrField(m, "fqdn_down_interval")
	if err != nil {
		return n, reconcile.Validationf("'fqdn_down_interval' must be an integer")
	}
	n.FQDNDownInterval = downInterval

	monitors, err := stringsField(m, "monitors")
	if err != nil {
		return n, err
	}
	n.Monitors = monitors
	return n, nil
}

func virtualServerFromMap(m map[string]any) (declaration.VirtualServer, error) {
	var vs declaration.VirtualServer
	vs.Name = stringField(m, "name")
	vs.Partition = stringField(m, "partition")
	vs.State = stringField(m, "state")
	vs.Description = stringPtrField(m, "description")
	vs.Destination = stringField(m, "destination")
	vs.Pool = stringPtrField(m, "pool")
	vs.SNAT = stringPtrField(m, "snat")
	vs.DefaultPersistence = stringPtrField(m, "default_persistence")
	vs.FallbackPersistence = stringPtrField(m, "fallback_persistence")
	vs.RouteAdvertisement = stringPtrField(m, "route_advertisement")

	port, err := intPtrField(m, "port")
	if err != nil {
		return vs, reconcile.Validationf("'port' must be an integer")
	}
	vs.Port = port

	for _, list := range []struct {
		key string
		dst *[]string
	}{
		{"profiles", &vs.Profiles},
		{"policies", &vs.Policies},
		{"rules", &vs.Rules},
		{"vlans", &vs.VLANs},
	} {
		values, err := stringsField(m, list.key)
		if err != nil {
			return vs, err
		}
		*list.dst = values
	}
	return vs, nil
}

func section(raw map[string]any, key string) ([]map[string]any, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return nil, nil
	}
	items, ok := v.([]any)
	if !ok {
		// an empty Lua table decodes as an empty map
		if m, isMap := v.(map[string]any); isMap && len(m) == 0 {
			return nil, nil
		}
		return nil, reconcile.Validationf("%q must be a list of tables", key)
	}
	out := make([]map[string]any, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, reconcile.Validationf("%s[%d] must be a table", key, i+1)
		}
		out = append(out, m)
	}
	return out, nil
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func stringPtrField(m map[string]any, key string) *string {
	v, ok := m[key]
	if !ok || v == nil {
		return nil
	}
	s, _ := v.(string)
	return &s
}

func boolPtrField(m map[string]any, key string) *bool {
	v, ok := m[key]
	if !ok || v == nil {
		return nil
	}
	b, _ := v.(bool)
	return &b
}

// intPtrField reads an optional numeric field. Lua numbers arrive as
// float64; fractional values are rejected rather than truncated.
func intPtrField(m map[string]any, key string) (*int, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}
	f, ok := v.(float64)
	if !ok || f != math.Trunc(f) {
		return nil, fmt.Errorf("not an integer: %v", v)
	}
	n := int(f)
	return &n, nil
}

func stringsField(m map[string]any, key string) ([]string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}
	items, ok := v.([]any)
	if !ok {
		if em, isMap := v.(map[string]any); isMap && len(em) == 0 {
			return []string{}, nil
		}
		return nil, reconcile.Validationf("%q must be a list of strings", key)
	}
	out := make([]string, 0, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, reconcile.Validationf("%s[%d] must be a string", key, i+1)
		}
		out = append(out, s)
	}
	return out, nil
}

// luaToGo converts a Lua value into plain Go data. Tables with
// contiguous integer keys become slices, everything else becomes maps.
func luaToGo(v glua.LValue) any {
	switch val := v.(type) {
	case glua.LString:
		return string(val)
	case glua.LNumber:
		return float64(val)
	case glua.LBool:
		return bool(val)
	case *glua.LTable:
		isArray := true
		maxIdx := 0
		val.ForEach(func(k, _ glua.LValue) {
			if num, ok := k.(glua.LNumber); ok {
				if idx := int(num); idx > maxIdx {
					maxIdx = idx
				}
			} else {
				isArray = false
			}
		})
		if isArray && maxIdx > 0 {
			arr := make([]any, maxIdx)
			val.ForEach(func(k, v glua.LValue) {
				if num, ok := k.(glua.LNumber); ok {
					arr[int(num)-1] = luaToGo(v)
				}
			})
			return arr
		}
		obj := make(map[string]any)
		val.ForEach(func(k, v glua.LValue) {
			obj[glua.LVAsString(k)] = luaToGo(v)
		})
		return obj
	case *glua.LNilType:
		return nil
	default:
		return v.String()
	}
}
