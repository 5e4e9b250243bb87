package server

import (
	"sync"

	"github.com/claudeway/claudeway/internal/config"
	"github.com/claudeway/claudeway/internal/upstream"
)

// HandlerKind selects how a resolved model is fulfilled.
type HandlerKind string

const (
	// HandlerOpenAICompat translates to an OpenAI chat-completions
	// upstream.
	HandlerOpenAICompat HandlerKind = "openai_compat"

	// HandlerAnthropicPassthrough proxies the request to an
	// Anthropic-native upstream without translation.
	HandlerAnthropicPassthrough HandlerKind = "anthropic_passthrough"
)

// Capabilities describes what a resolved model supports.
type Capabilities struct {
	SupportsTools     bool
	SupportsStreaming bool
	SupportsImages    bool
}

// Resolution is the outcome of resolving a client-visible model id.
type Resolution struct {
	Kind          HandlerKind
	UpstreamModel string
	Target        upstream.Target
	Capabilities  Capabilities
}

// Resolver maps model ids to upstream handling.
type Resolver interface {
	Resolve(modelID string) (*Resolution, bool)
}

// StaticResolver resolves from a table built out of the configuration. The
// table is swapped atomically on config reload; in-flight requests keep
// the resolution they already obtained.
type StaticResolver struct {
	mu    sync.RWMutex
	table map[string]*Resolution
}

// NewStaticResolver builds a resolver from the configuration.
func NewStaticResolver(cfg *config.Config) *StaticResolver {
	r := &StaticResolver{}
	r.Swap(cfg)
	return r
}

// Resolve returns the resolution for a model id.
func (r *StaticResolver) Resolve(modelID string) (*Resolution, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.table[modelID]
	return res, ok
}

// Swap rebuilds the table from a new configuration.
func (r *StaticResolver) Swap(cfg *config.Config) {
	table := make(map[string]*Resolution, len(cfg.Models))
	for id, m := range cfg.Models {
		table[id] = resolutionFor(cfg, id, m)
	}
	r.mu.Lock()
	r.table = table
	r.mu.Unlock()
}

func resolutionFor(cfg *config.Config, id string, m config.ModelConfig) *Resolution {
	kind := HandlerKind(m.HandlerKind)
	if kind == "" {
		kind = HandlerOpenAICompat
	}
	upstreamModel := m.UpstreamModel
	if upstreamModel == "" {
		upstreamModel = id
	}

	target := upstream.Target{
		BaseURL:     cfg.Upstream.BaseURL,
		APIPath:     cfg.Upstream.APIPath,
		BearerToken: cfg.Upstream.APIKey,
	}
	if m.BaseURL != "" {
		target.BaseURL = m.BaseURL
	}
	if m.APIPath != "" {
		target.APIPath = m.APIPath
	}
	if m.APIKey != "" {
		target.BearerToken = m.APIKey
	}

	return &Resolution{
		Kind:          kind,
		UpstreamModel: upstreamModel,
		Target:        target,
		Capabilities: Capabilities{
			SupportsTools:     m.SupportsTools,
			SupportsStreaming: m.SupportsStreaming,
			SupportsImages:    m.SupportsImages,
		},
	}
}
