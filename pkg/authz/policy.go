package authz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Policy is the on-disk role policy.
//
//	roles:
//	  inspector: ["forms:get", "forms:list", "responses:*", "signatures:*"]
//	  admin: ["*"]
//	bindings:
//	  - role: inspector
//	    groups: [inspectors]
//	    tenants: [acme]
type Policy struct {
	Roles    map[string][]string `yaml:"roles"`
	Bindings []RoleBinding       `yaml:"bindings"`
}

// RoleBinding grants a role to users and groups. An empty Tenants list
// applies the binding in every tenant.
type RoleBinding struct {
	Role    string   `yaml:"role"`
	Users   []string `yaml:"users"`
	Groups  []string `yaml:"groups"`
	Tenants []string `yaml:"tenants"`
}

// compiledPolicy is the lookup form of a Policy.
type compiledPolicy struct {
	bindings []compiledBinding
}

// PolicyChange names the tenants whose decisions a reload can change.
// AllTenants is set when a binding without a tenant list changed.
type PolicyChange struct {
	AllTenants bool
	Tenants    []string
}

// Empty reports whether the reload changed no binding.
func (c PolicyChange) Empty() bool {
	return !c.AllTenants && len(c.Tenants) == 0
}

type compiledBinding struct {
	// signature identifies the binding's content for change detection.
	signature string
	perms     mapset.Set[string]
	users   mapset.Set[string]
	groups  mapset.Set[string]
	tenants mapset.Set[string]
}

// ParsePolicy decodes and checks a YAML policy document.
func ParsePolicy(data []byte) (*Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode policy: %w", err)
	}
	if _, err := p.compile(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Policy) compile() (*compiledPolicy, error) {
	roles := make(map[string]mapset.Set[string], len(p.Roles))
	for name, perms := range p.Roles {
		set := mapset.NewThreadUnsafeSet[string]()
		for _, perm := range perms {
			if perm != "*" && !strings.Contains(perm, ":") {
				return nil, fmt.Errorf("role %q: permission %q must be resource:verb or *", name, perm)
			}
			set.Add(perm)
		}
		roles[name] = set
	}

	out := &compiledPolicy{}
	for i, b := range p.Bindings {
		perms, ok := roles[b.Role]
		if !ok {
			return nil, fmt.Errorf("binding %d: unknown role %q", i, b.Role)
		}
		if len(b.Users) == 0 && len(b.Groups) == 0 {
			return nil, fmt.Errorf("binding %d: no users or groups", i)
		}
		out.bindings = append(out.bindings, compiledBinding{
			signature: bindingSignature(perms, b),
			perms:     perms,
			users:     mapset.NewThreadUnsafeSet(b.Users...),
			groups:    mapset.NewThreadUnsafeSet(b.Groups...),
			tenants:   mapset.NewThreadUnsafeSet(b.Tenants...),
		})
	}
	return out, nil
}

func bindingSignature(perms mapset.Set[string], b RoleBinding) string {
	part := func(items []string) string {
		sorted := append([]string(nil), items...)
		slices.Sort(sorted)
		return strings.Join(sorted, ",")
	}
	return strings.Join([]string{part(perms.ToSlice()), part(b.Users), part(b.Groups), part(b.Tenants)}, "|")
}

// diff reports which tenants gain or lose a binding between prev and c.
func (c *compiledPolicy) diff(prev *compiledPolicy) PolicyChange {
	if prev == nil {
		return PolicyChange{AllTenants: true}
	}
	count := func(p *compiledPolicy) map[string]int {
		out := make(map[string]int, len(p.bindings))
		for _, b := range p.bindings {
			out[b.signature]++
		}
		return out
	}
	before, after := count(prev), count(c)

	affected := mapset.NewThreadUnsafeSet[string]()
	mark := func(bindings []compiledBinding, other map[string]int) bool {
		for _, b := range bindings {
			if other[b.signature] > 0 {
				other[b.signature]--
				continue
			}
			if b.tenants.Cardinality() == 0 {
				return true
			}
			affected.Append(b.tenants.ToSlice()...)
		}
		return false
	}
	if mark(c.bindings, before) || mark(prev.bindings, after) {
		return PolicyChange{AllTenants: true}
	}
	tenants := affected.ToSlice()
	slices.Sort(tenants)
	return PolicyChange{Tenants: tenants}
}

func (c *compiledPolicy) allows(req AuthzRequest) bool {
	for _, b := range c.bindings {
		if b.tenants.Cardinality() > 0 && !b.tenants.Contains(req.Tenant) {
			continue
		}
		if !b.users.Contains(req.User) && !b.groups.ContainsAny(req.Groups...) {
			continue
		}
		if b.perms.ContainsAny("*", req.Resource+":*", req.Resource+":"+req.Verb) {
			return true
		}
	}
	return false
}

// PolicyAuthorizer authorizes requests against a role policy file. Anonymous
// requests are only allowed when a binding names the "anonymous" user.
type PolicyAuthorizer struct {
	path     string
	logger   *slog.Logger
	mu       sync.RWMutex
	policy   *compiledPolicy
	onReload []func(PolicyChange)
}

// NewPolicyAuthorizer loads the policy at path.
func NewPolicyAuthorizer(path string, logger *slog.Logger) (*PolicyAuthorizer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &PolicyAuthorizer{path: path, logger: logger}
	if err := a.Reload(); err != nil {
		return nil, err
	}
	return a, nil
}

// NewPolicyAuthorizerFromPolicy builds an authorizer from an in-memory policy.
func NewPolicyAuthorizerFromPolicy(p *Policy) (*PolicyAuthorizer, error) {
	compiled, err := p.compile()
	if err != nil {
		return nil, err
	}
	return &PolicyAuthorizer{logger: slog.Default(), policy: compiled}, nil
}

// OnReload registers fn to run after every reload that changed a binding.
func (a *PolicyAuthorizer) OnReload(fn func(PolicyChange)) {
	a.mu.Lock()
	a.onReload = append(a.onReload, fn)
	a.mu.Unlock()
}

// Authorize reports whether any binding grants the requested permission.
func (a *PolicyAuthorizer) Authorize(_ context.Context, req AuthzRequest) (bool, error) {
	a.mu.RLock()
	p := a.policy
	a.mu.RUnlock()
	if p == nil {
		return false, errors.New("no authorization policy loaded")
	}
	return p.allows(req), nil
}

// Reload re-reads the policy file. On error the previous policy stays active.
func (a *PolicyAuthorizer) Reload() error {
	if a.path == "" {
		return errors.New("policy authorizer has no file")
	}
	data, err := os.ReadFile(a.path)
	if err != nil {
		return fmt.Errorf("read policy %s: %w", a.path, err)
	}
	p, err := ParsePolicy(data)
	if err != nil {
		return fmt.Errorf("policy %s: %w", a.path, err)
	}
	compiled, err := p.compile()
	if err != nil {
		return err
	}

	a.mu.Lock()
	change := compiled.diff(a.policy)
	a.policy = compiled
	hooks := append([]func(PolicyChange){}, a.onReload...)
	a.mu.Unlock()

	if !change.Empty() {
		for _, fn := range hooks {
			fn(change)
		}
	}
	a.logger.Info("authorization policy loaded", "path", a.path, "bindings", len(compiled.bindings),
		"allTenants", change.AllTenants, "changedTenants", change.Tenants)
	return nil
}

// Watch reloads the policy whenever its file changes, until ctx is done.
// The parent directory is watched so that atomic replaces (rename over,
// mounted ConfigMap symlink swaps) are seen.
func (a *PolicyAuthorizer) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create policy watcher: %w", err)
	}
	dir := filepath.Dir(a.path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	go func() {
		defer watcher.Close()
		target := filepath.Clean(a.path)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target && !strings.HasPrefix(filepath.Base(ev.Name), "..") {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				if err := a.Reload(); err != nil {
					a.logger.Error("authorization policy reload failed, keeping previous policy", "error", err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				a.logger.Error("policy watcher error", "error", err)
			}
		}
	}()
	return nil
}
