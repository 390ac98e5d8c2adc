// Package settings holds the per-session registry and credential
// configuration that build tasks read at execution time. A Store is
// populated while the task graph is being assembled, sealed when
// execution starts, and read-shared by concurrently running tasks
// from then on.
package settings

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
)

// Ecosystem tags a registry with the package ecosystem it serves.
type Ecosystem string

const (
	EcosystemCargo  Ecosystem = "cargo"
	EcosystemDocker Ecosystem = "docker"
	EcosystemHelm   Ecosystem = "helm"
	EcosystemPython Ecosystem = "python"
)

// Credentials is a username/password pair. The password never appears
// in formatted output.
type Credentials struct {
	Username string
	Password string
}

// String implements fmt.Stringer with the secret redacted.
func (c Credentials) String() string {
	return c.Username + ":[redacted]"
}

// Registry is a named remote artifact endpoint with optional
// credentials for reading and publishing.
type Registry struct {
	Name      string
	URL       string
	Ecosystem Ecosystem

	// ReadCredentials authenticate read access to a private registry.
	ReadCredentials *Credentials

	// PublishToken authorizes publishing. For Artifactory-style
	// registries this is typically a "Bearer <token>" value.
	PublishToken string
}

// Host returns the registry URL's hostname, or the raw URL if it
// cannot be parsed.
func (r *Registry) Host() string {
	u, err := url.Parse(r.URL)
	if err != nil || u.Host == "" {
		return strings.TrimSuffix(r.URL, "/")
	}
	return u.Host
}

// AuthEntry binds a host to a principal and secret.
type AuthEntry struct {
	Host     string
	Username string
	Secret   string
}

// String implements fmt.Stringer with the secret redacted.
func (a AuthEntry) String() string {
	return fmt.Sprintf("%s@%s:[redacted]", a.Username, a.Host)
}

// RegistryOpts carries the optional attributes of a registry.
type RegistryOpts struct {
	Ecosystem       Ecosystem
	ReadCredentials *Credentials
	PublishToken    string
}

// NotFoundError is returned when a registry name does not resolve.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("settings: registry %q is not defined", e.Name)
}

// ConfigurationError reports an invalid registry or auth declaration.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "settings: " + e.Reason
}

// Store maps registry names to registries and hosts to auth entries.
// Registering the same name twice replaces the prior entry so layered
// configuration can override defaults.
type Store struct {
	mu         sync.RWMutex
	registries map[string]*Registry
	order      []string
	auth       map[string]AuthEntry
	sealed     bool
}

// NewStore returns an empty settings store.
func NewStore() *Store {
	return &Store{
		registries: map[string]*Registry{},
		auth:       map[string]AuthEntry{},
	}
}

// AddRegistry registers a registry under name. Re-registering an
// existing name replaces it (last write wins). Fails once the store
// is sealed.
func (s *Store) AddRegistry(name, rawURL string, opts RegistryOpts) (*Registry, error) {
	if name == "" {
		return nil, &ConfigurationError{Reason: "registry name must not be empty"}
	}
	if rawURL == "" {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("registry %q has no URL", name)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sealed {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("cannot add registry %q after execution started", name)}
	}

	reg := &Registry{
		Name:            name,
		URL:             rawURL,
		Ecosystem:       opts.Ecosystem,
		ReadCredentials: opts.ReadCredentials,
		PublishToken:    opts.PublishToken,
	}
	if _, exists := s.registries[name]; !exists {
		s.order = append(s.order, name)
	}
	s.registries[name] = reg
	return reg, nil
}

// AddAuth records credentials for a host.
func (s *Store) AddAuth(host, username, secret string) error {
	if host == "" {
		return &ConfigurationError{Reason: "auth entry has no host"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sealed {
		return &ConfigurationError{Reason: fmt.Sprintf("cannot add auth for %q after execution started", host)}
	}
	s.auth[host] = AuthEntry{Host: host, Username: username, Secret: secret}
	return nil
}

// Resolve returns the registry registered under name.
func (s *Store) Resolve(name string) (*Registry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reg, ok := s.registries[name]
	if !ok {
		return nil, &NotFoundError{Name: name}
	}
	return reg, nil
}

// AuthFor returns the auth entry for a host, if one exists.
func (s *Store) AuthFor(host string) (AuthEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.auth[host]
	return entry, ok
}

// Registries returns all registries in registration order.
func (s *Store) Registries() []*Registry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Registry, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.registries[name])
	}
	return out
}

// Hosts returns all hosts with auth entries, sorted.
func (s *Store) Hosts() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hosts := make([]string, 0, len(s.auth))
	for h := range s.auth {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	return hosts
}

// Seal freezes the store. Called by the executor right before the
// first task runs; mutation attempts afterwards fail.
func (s *Store) Seal() {
	s.mu.Lock()
	s.sealed = true
	s.mu.Unlock()
}
