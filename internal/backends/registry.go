// Package backends resolves model identifiers to upstream backend descriptors.
//
// DESIGN: The registry is built once from configuration and is read-only
// afterwards. Resolve hands out a fresh Descriptor value per call, so callers
// own their copy and nothing here is ever mutated mid-request. Model matching
// is case-insensitive and deliberately permissive: an unknown model routes to
// the default backend instead of failing (see DESIGN.md).
package backends

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/relaydesk/model-gateway/internal/config"
)

// Mode identifies the wire protocol spoken by a backend.
type Mode string

const (
	// ModeOpenAI is the OpenAI-compatible chat/completions passthrough.
	ModeOpenAI Mode = "openai"
	// ModeEnvelope is the structured {agent_id, action, params} agent envelope.
	ModeEnvelope Mode = "envelope"
	// ModeCustom is a single-field JSON request with field-mapped responses.
	ModeCustom Mode = "custom"
	// ModeRelay is the {command, params:{prompt}} wrapper protocol.
	ModeRelay Mode = "relay"
)

// ModeFromString parses a configuration mode string.
func ModeFromString(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeOpenAI, ModeEnvelope, ModeCustom, ModeRelay:
		return m, nil
	}
	return "", fmt.Errorf("unknown backend mode %q", s)
}

// Well-known tier names used by the fallback chain.
const (
	PrimaryName   = "primary"
	SecondaryName = "secondary"
	RelayName     = "relay"
	DegradedName  = "degraded"
)

// OpenAIChatPath is the fixed upstream route for ModeOpenAI backends; the
// configured path is ignored for passthrough on purpose.
const OpenAIChatPath = "/v1/chat/completions"

// Descriptor is a fully resolved view of one backend for a single request.
// It is a plain value: every resolution returns an independent copy.
type Descriptor struct {
	Name           string
	BaseURL        string // trailing slashes stripped; empty means unconfigured
	Mode           Mode
	Path           string
	AuthKey        string        // bearer credential resolved from the configured slot
	Model          string        // model name sent upstream (ModeOpenAI); empty keeps the client's
	RequestField   string        // ModeCustom payload key
	ObjectiveField string        // ModeEnvelope params key
	AgentID        string        // ModeEnvelope
	Action         string        // ModeEnvelope
	Command        string        // ModeRelay command name
	ResponsePaths  string        // "|"-separated candidate extraction paths
	Timeout        time.Duration // per-attempt override; zero uses the executor default
}

// Configured reports whether the descriptor points at a reachable backend.
// An empty base URL is a configuration error the caller must surface; it is
// never a reason to attempt a network call.
func (d Descriptor) Configured() bool { return d.BaseURL != "" }

// Registry maps model identifiers to backend descriptors.
type Registry struct {
	defaultName string
	backends    map[string]Descriptor
	models      map[string]string // lowercased model id -> backend name
}

// New builds a registry from configuration. Backend modes must parse and
// model routes must point at defined backends; base URLs may be absent.
func New(cfg *config.Config) (*Registry, error) {
	r := &Registry{
		defaultName: cfg.DefaultBackend,
		backends:    make(map[string]Descriptor, len(cfg.Backends)),
		models:      make(map[string]string, len(cfg.Models)+len(cfg.Backends)),
	}
	for name, bc := range cfg.Backends {
		mode, err := ModeFromString(bc.Mode)
		if err != nil {
			return nil, fmt.Errorf("backend %q: %w", name, err)
		}
		d := Descriptor{
			Name:           name,
			BaseURL:        strings.TrimRight(strings.TrimSpace(bc.BaseURL), "/"),
			Mode:           mode,
			Path:           bc.Path,
			AuthKey:        resolveAuthKey(bc),
			Model:          bc.Model,
			RequestField:   bc.RequestField,
			ObjectiveField: bc.ObjectiveField,
			AgentID:        bc.AgentID,
			Action:         bc.Action,
			Command:        bc.Command,
			ResponsePaths:  bc.ResponsePaths,
			Timeout:        time.Duration(bc.TimeoutSeconds) * time.Second,
		}
		applyModeDefaults(&d)
		r.backends[name] = d
		// Backend names double as model identifiers.
		r.models[strings.ToLower(name)] = name
	}
	for model, backend := range cfg.Models {
		if _, ok := r.backends[backend]; !ok {
			return nil, fmt.Errorf("model %q routes to unknown backend %q", model, backend)
		}
		r.models[strings.ToLower(strings.TrimSpace(model))] = backend
	}
	if _, ok := r.backends[r.defaultName]; !ok {
		return nil, fmt.Errorf("default backend %q is not defined", r.defaultName)
	}
	return r, nil
}

// resolveAuthKey picks the credential slot the descriptor should carry.
func resolveAuthKey(bc config.BackendConf) string {
	if strings.EqualFold(bc.AuthSlot, "internal") && bc.InternalAPIKey != "" {
		return bc.InternalAPIKey
	}
	return bc.APIKey
}

// applyModeDefaults fills protocol fields the configuration left empty.
func applyModeDefaults(d *Descriptor) {
	switch d.Mode {
	case ModeOpenAI:
		d.Path = OpenAIChatPath
		if d.ResponsePaths == "" {
			d.ResponsePaths = "choices.0.message.content|choices.0.text"
		}
	case ModeEnvelope:
		if d.Path == "" {
			d.Path = "/api/agent"
		}
		if d.ObjectiveField == "" {
			d.ObjectiveField = "objective"
		}
		if d.Action == "" {
			d.Action = "run"
		}
		if d.ResponsePaths == "" {
			d.ResponsePaths = "result.response|response|result.message"
		}
	case ModeCustom:
		if d.Path == "" {
			d.Path = "/api/generate"
		}
		if d.RequestField == "" {
			d.RequestField = "input"
		}
	case ModeRelay:
		if d.Path == "" {
			d.Path = "/relay"
		}
		if d.Command == "" {
			d.Command = "prompt"
		}
		if d.ResponsePaths == "" {
			d.ResponsePaths = "result.text|result.response|text"
		}
	}
}

// Resolve maps a requested model identifier to its backend descriptor.
// Unknown models route to the default backend rather than erroring.
func (r *Registry) Resolve(modelID string) Descriptor {
	name, ok := r.models[strings.ToLower(strings.TrimSpace(modelID))]
	if !ok {
		name = r.defaultName
	}
	return r.ResolveBackend(name)
}

// ResolveBackend returns the descriptor for a backend by tier name. Unknown
// names yield an unconfigured descriptor carrying just the name, which
// callers treat the same as a missing base URL.
func (r *Registry) ResolveBackend(name string) Descriptor {
	d, ok := r.backends[name]
	if !ok {
		return Descriptor{Name: name}
	}
	return d
}

// Models returns all model identifiers known to the routing table, sorted.
func (r *Registry) Models() []string {
	ids := make([]string, 0, len(r.models))
	for id := range r.models {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
