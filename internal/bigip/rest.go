package bigip

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// RESTOptions configure a RESTClient.
type RESTOptions struct {
	Host     string // host or host:port
	Username string
	Password string
	Timeout  time.Duration

	// Devices commonly run with self-signed management certificates.
	InsecureSkipVerify bool
}

// restCore holds the HTTP plumbing shared by direct and transacted calls.
type restCore struct {
	base       string
	username   string
	password   string
	httpClient *http.Client
}

// restOps implements Ops; tx scopes calls to an open transaction when set.
type restOps struct {
	core *restCore
	tx   string
}

// RESTClient talks to the device's REST control API.
type RESTClient struct {
	restOps
}

var _ Client = (*RESTClient)(nil)

// NewRESTClient creates a client for the device's management endpoint.
func NewRESTClient(opts RESTOptions) *RESTClient {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: opts.InsecureSkipVerify},
	}

	core := &restCore{
		base:     fmt.Sprintf("https://%s", opts.Host),
		username: opts.Username,
		password: opts.Password,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
	return &RESTClient{restOps{core: core}}
}

// Close releases idle connections.
func (c *RESTClient) Close() error {
	c.core.httpClient.CloseIdleConnections()
	return nil
}

// Begin opens a device transaction and returns a handle whose calls are
// joined to it.
func (c *RESTClient) Begin(ctx context.Context) (Tx, error) {
	var out struct {
		TransID int64 `json:"transId"`
	}
	if err := c.core.do(ctx, http.MethodPost, "/mgmt/tm/transaction", "", struct{}{}, &out); err != nil {
		return nil, fmt.Errorf("failed to open device transaction: %w", err)
	}
	return &restTx{restOps{core: c.core, tx: strconv.FormatInt(out.TransID, 10)}}, nil
}

type restTx struct {
	restOps
}

// Commit submits the transaction; the device validates and applies every
// queued call atomically.
func (t *restTx) Commit(ctx context.Context) error {
	path := "/mgmt/tm/transaction/" + t.tx
	body := map[string]string{"state": "VALIDATING"}
	if err := t.core.do(ctx, http.MethodPatch, path, "", body, nil); err != nil {
		return fmt.Errorf("failed to commit device transaction %s: %w", t.tx, err)
	}
	return nil
}

func (o restOps) NodeExists(ctx context.Context, name, partition string) (bool, error) {
	return o.exists(ctx, nodePath(name, partition))
}

func (o restOps) ReadNode(ctx context.Context, name, partition string) (*NodeState, error) {
	var state NodeState
	if err := o.core.do(ctx, http.MethodGet, nodePath(name, partition), o.tx, nil, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (o restOps) CreateNode(ctx context.Context, cfg NodeConfig) error {
	return o.core.do(ctx, http.MethodPost, "/mgmt/tm/ltm/node", o.tx, cfg, nil)
}

func (o restOps) ModifyNode(ctx context.Context, name, partition string, patch Patch) error {
	return o.core.do(ctx, http.MethodPatch, nodePath(name, partition), o.tx, patch, nil)
}

func (o restOps) DeleteNode(ctx context.Context, name, partition string) error {
	return o.core.do(ctx, http.MethodDelete, nodePath(name, partition), o.tx, nil, nil)
}

func (o restOps) VirtualExists(ctx context.Context, name, partition string) (bool, error) {
	return o.exists(ctx, virtualPath(name, partition))
}

func (o restOps) ReadVirtual(ctx context.Context, name, partition string) (*VirtualState, error) {
	var state VirtualState
	if err := o.core.do(ctx, http.MethodGet, virtualPath(name, partition), o.tx, nil, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (o restOps) CreateVirtual(ctx context.Context, cfg VirtualConfig) error {
	return o.core.do(ctx, http.MethodPost, "/mgmt/tm/ltm/virtual", o.tx, cfg, nil)
}

func (o restOps) ModifyVirtual(ctx context.Context, name, partition string, patch Patch) error {
	return o.core.do(ctx, http.MethodPatch, virtualPath(name, partition), o.tx, patch, nil)
}

func (o restOps) DeleteVirtual(ctx context.Context, name, partition string) error {
	return o.core.do(ctx, http.MethodDelete, virtualPath(name, partition), o.tx, nil, nil)
}

func (o restOps) ReadVirtualAddress(ctx context.Context, name, partition string) (*VirtualAddressState, error) {
	var state VirtualAddressState
	if err := o.core.do(ctx, http.MethodGet, virtualAddressPath(name, partition), o.tx, nil, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (o restOps) ModifyVirtualAddress(ctx context.Context, name, partition string, patch Patch) error {
	return o.core.do(ctx, http.MethodPatch, virtualAddressPath(name, partition), o.tx, patch, nil)
}

func (o restOps) exists(ctx context.Context, path string) (bool, error) {
	err := o.core.do(ctx, http.MethodGet, path, o.tx, nil, nil)
	if err == nil {
		return true, nil
	}
	if IsNotFound(err) {
		return false, nil
	}
	return false, err
}

func nodePath(name, partition string) string {
	return "/mgmt/tm/ltm/node/" + escapedPath(name, partition)
}

func virtualPath(name, partition string) string {
	return "/mgmt/tm/ltm/virtual/" + escapedPath(name, partition)
}

func virtualAddressPath(name, partition string) string {
	return "/mgmt/tm/ltm/virtual-address/" + escapedPath(name, partition)
}

// escapedPath renders the item path segment for a named object. The API
// expects the fully-qualified path with slashes folded to tildes.
func escapedPath(name, partition string) string {
	full := FullPath(partition, name)
	return strings.ReplaceAll(strings.TrimPrefix(full, "/"), "/", "~")
}

func (c *restCore) do(ctx context.Context, method, path, tx string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.username, c.password)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tx != "" {
		req.Header.Set("X-F5-REST-Coordination-Id", tx)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{
			StatusCode: resp.StatusCode,
			Method:     method,
			Path:       path,
			Message:    readDeviceMessage(resp.Body),
		}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// readDeviceMessage pulls the human-readable message out of the device's
// JSON error body, falling back to the raw payload.
func readDeviceMessage(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	return strings.TrimSpace(string(raw))
}
