// Package static provides a Provider backed by a JSON file on disk.
//
// It exists for offline runs and end-to-end testing: the file holds the
// exact item set a real API client would return, so the whole sync
// pipeline can be exercised without network access or credentials.
package static

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/marklab/marksync/internal/remote"
)

func init() {
	remote.Register("static", func() remote.Provider { return New() })
}

// Provider serves items from a JSON file containing an array of
// remote.Item objects.
type Provider struct {
	name    string
	path    string
	enabled bool
}

// New creates an unconfigured static provider. Configure must be called
// with at least a "path" setting before the provider is usable.
func New() *Provider {
	return &Provider{name: "static"}
}

// Name implements remote.Provider.
func (p *Provider) Name() string { return p.name }

// IsEnabled implements remote.Provider.
func (p *Provider) IsEnabled() bool { return p.enabled && p.path != "" }

// IsAuthenticated implements remote.Provider. A file needs no
// credential, so a configured provider is always authenticated.
func (p *Provider) IsAuthenticated() bool { return p.path != "" }

// Configure implements remote.Provider.
//
// Settings:
//   - "path" (required): path to the JSON item file
//   - "name" (optional): source id override, defaults to "static"
func (p *Provider) Configure(settings map[string]any) error {
	path, ok := settings["path"].(string)
	if !ok || path == "" {
		return fmt.Errorf("static provider requires a 'path' setting")
	}
	p.path = path
	p.enabled = true

	if name, ok := settings["name"].(string); ok && name != "" {
		p.name = name
	}
	return nil
}

// FetchItems implements remote.Provider by reading and decoding the
// configured file. Items have their ProviderID stamped with this
// provider's name regardless of what the file says.
func (p *Provider) FetchItems(ctx context.Context) ([]remote.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !p.IsEnabled() {
		return nil, &remote.ValidationError{Reason: "static provider not configured"}
	}

	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &remote.ValidationError{Reason: fmt.Sprintf("item file missing: %s", p.path)}
		}
		return nil, fmt.Errorf("failed to read item file: %w", err)
	}

	var items []remote.Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to parse item file %s: %w", p.path, err)
	}

	for i := range items {
		items[i].ProviderID = p.name
	}
	return items, nil
}
