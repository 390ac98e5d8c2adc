package auth

import (
	"fmt"
	"sort"
	"sync"

	"github.com/conveyorbuild/conveyor/src/settings"
)

// Merger merges a registry's credentials into the existing content of
// a configuration file, preserving unrelated entries. existing is nil
// when the file does not exist yet.
type Merger func(existing []byte, reg *settings.Registry) ([]byte, error)

// MergerFor returns the merger matching a registry's ecosystem.
func MergerFor(eco settings.Ecosystem) (Merger, error) {
	switch eco {
	case settings.EcosystemCargo:
		return MergeCargoConfig, nil
	case settings.EcosystemDocker, settings.EcosystemHelm:
		// Helm's OCI registry config shares Docker's auths format.
		return MergeDockerConfig, nil
	case settings.EcosystemPython:
		return MergePypirc, nil
	default:
		return nil, fmt.Errorf("auth: no credential format for ecosystem %q", eco)
	}
}

// Injector performs scoped credential injections and remembers every
// file it has touched so the session can audit them afterwards.
type Injector struct {
	mu      sync.Mutex
	touched map[string]struct{}
}

// NewInjector returns an Injector with an empty touch history.
func NewInjector() *Injector {
	return &Injector{touched: map[string]struct{}{}}
}

// WithInjectedAuth patches path with reg's credentials for the
// duration of body, then restores the original state. The restore
// runs on every exit path; if it fails, the resulting RestoreError
// replaces body's result because a credential may have leaked.
//
// Callers must not run two injections against the same file
// concurrently; the executor serializes tasks that declare the same
// file as a resource.
func (i *Injector) WithInjectedAuth(path string, reg *settings.Registry, merge Merger, body func() error) (err error) {
	patch, err := Capture(path)
	if err != nil {
		return err
	}

	merged, err := merge(patch.Content(), reg)
	if err != nil {
		return fmt.Errorf("auth: merging credentials for %q into %s: %w", reg.Name, path, err)
	}
	if err := patch.Write(merged); err != nil {
		return err
	}
	i.markTouched(path)

	defer func() {
		if rerr := patch.Restore(); rerr != nil {
			// Escalate over whatever body returned.
			err = rerr
		}
	}()

	return body()
}

// Touched returns the sorted list of files this injector has patched.
func (i *Injector) Touched() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]string, 0, len(i.touched))
	for p := range i.touched {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (i *Injector) markTouched(path string) {
	i.mu.Lock()
	i.touched[path] = struct{}{}
	i.mu.Unlock()
}
