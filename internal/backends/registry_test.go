package backends

import (
	"testing"
	"time"

	"github.com/relaydesk/model-gateway/internal/config"
)

func testConfig() *config.Config {
	cfg := config.Default()
	primary := cfg.Backends["primary"]
	primary.BaseURL = "https://api.example.com/"
	primary.APIKey = "sk-public"
	primary.InternalAPIKey = "sk-internal"
	cfg.Backends["primary"] = primary

	relay := cfg.Backends["relay"]
	relay.BaseURL = "http://relay.internal:8080"
	cfg.Backends["relay"] = relay

	cfg.Models["Frontier-Large"] = "primary"
	return cfg
}

func TestModeFromString(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"openai", ModeOpenAI, false},
		{"OpenAI", ModeOpenAI, false},
		{" envelope ", ModeEnvelope, false},
		{"custom", ModeCustom, false},
		{"relay", ModeRelay, false},
		{"", "", true},
		{"bedrock", "", true},
	}
	for _, tt := range tests {
		got, err := ModeFromString(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ModeFromString(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ModeFromString(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ModeFromString(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestResolveIsCaseInsensitive(t *testing.T) {
	reg, err := New(testConfig())
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"frontier-large", "FRONTIER-LARGE", "Frontier-Large", " frontier-large "} {
		d := reg.Resolve(id)
		if d.Name != "primary" {
			t.Errorf("Resolve(%q) = %q, want primary", id, d.Name)
		}
	}
}

func TestResolveUnknownUsesDefault(t *testing.T) {
	reg, err := New(testConfig())
	if err != nil {
		t.Fatal(err)
	}
	d := reg.Resolve("some-model-nobody-configured")
	if d.Name != "primary" {
		t.Errorf("unknown model resolved to %q, want primary", d.Name)
	}
	if !d.Configured() {
		t.Error("primary should be configured in the test fixture")
	}
}

func TestResolveBackendNamesAsModels(t *testing.T) {
	reg, err := New(testConfig())
	if err != nil {
		t.Fatal(err)
	}
	if d := reg.Resolve("relay"); d.Name != "relay" {
		t.Errorf("Resolve(relay) = %q", d.Name)
	}
}

func TestUnconfiguredBackend(t *testing.T) {
	reg, err := New(testConfig())
	if err != nil {
		t.Fatal(err)
	}
	d := reg.ResolveBackend("secondary")
	if d.Configured() {
		t.Error("secondary has no base URL and must report unconfigured")
	}
	if d.Name != "secondary" {
		t.Errorf("descriptor name = %q", d.Name)
	}

	if d := reg.ResolveBackend("never-heard-of-it"); d.Configured() || d.Name != "never-heard-of-it" {
		t.Errorf("unknown backend descriptor = %+v", d)
	}
}

func TestBaseURLNormalized(t *testing.T) {
	reg, err := New(testConfig())
	if err != nil {
		t.Fatal(err)
	}
	if got := reg.Resolve("primary").BaseURL; got != "https://api.example.com" {
		t.Errorf("base url = %q, want trailing slash stripped", got)
	}
}

func TestModeDefaults(t *testing.T) {
	cfg := testConfig()
	cfg.Backends["agent"] = config.BackendConf{Mode: "envelope", BaseURL: "http://agent:9000"}
	reg, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}

	agent := reg.ResolveBackend("agent")
	if agent.Path != "/api/agent" || agent.ObjectiveField != "objective" || agent.Action != "run" {
		t.Errorf("envelope defaults not applied: %+v", agent)
	}

	secondary := reg.ResolveBackend("secondary")
	if secondary.RequestField != "input" || secondary.Path != "/api/generate" {
		t.Errorf("custom defaults not applied: %+v", secondary)
	}

	relay := reg.ResolveBackend("relay")
	if relay.Command != "prompt" || relay.Path != "/relay" {
		t.Errorf("relay defaults not applied: %+v", relay)
	}
}

func TestOpenAIPathIsFixed(t *testing.T) {
	cfg := testConfig()
	primary := cfg.Backends["primary"]
	primary.Path = "/totally/custom/route"
	cfg.Backends["primary"] = primary

	reg, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if got := reg.Resolve("primary").Path; got != OpenAIChatPath {
		t.Errorf("passthrough path = %q, want %q", got, OpenAIChatPath)
	}
}

func TestAuthSlotSelection(t *testing.T) {
	cfg := testConfig()
	reg, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if got := reg.Resolve("primary").AuthKey; got != "sk-public" {
		t.Errorf("default slot key = %q, want sk-public", got)
	}

	primary := cfg.Backends["primary"]
	primary.AuthSlot = "internal"
	cfg.Backends["primary"] = primary
	reg, err = New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if got := reg.Resolve("primary").AuthKey; got != "sk-internal" {
		t.Errorf("internal slot key = %q, want sk-internal", got)
	}
}

func TestDescriptorCopiesAreIndependent(t *testing.T) {
	reg, err := New(testConfig())
	if err != nil {
		t.Fatal(err)
	}
	first := reg.Resolve("primary")
	first.BaseURL = "http://mutated.example.com"
	first.AuthKey = "stolen"

	second := reg.Resolve("primary")
	if second.BaseURL != "https://api.example.com" || second.AuthKey != "sk-public" {
		t.Errorf("registry state leaked through a resolved copy: %+v", second)
	}
}

func TestTimeoutOverride(t *testing.T) {
	cfg := testConfig()
	primary := cfg.Backends["primary"]
	primary.TimeoutSeconds = 15
	cfg.Backends["primary"] = primary

	reg, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if got := reg.Resolve("primary").Timeout; got != 15*time.Second {
		t.Errorf("timeout = %v, want 15s", got)
	}
}

func TestNewRejectsBrokenRouting(t *testing.T) {
	cfg := testConfig()
	cfg.Models["ghost"] = "not-a-backend"
	if _, err := New(cfg); err == nil {
		t.Error("expected error for model routed to unknown backend")
	}

	cfg = testConfig()
	primary := cfg.Backends["primary"]
	primary.Mode = "quantum"
	cfg.Backends["primary"] = primary
	if _, err := New(cfg); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestModelsSorted(t *testing.T) {
	reg, err := New(testConfig())
	if err != nil {
		t.Fatal(err)
	}
	ids := reg.Models()
	if len(ids) == 0 {
		t.Fatal("expected model ids")
	}
	for i := 1; i < len(ids); i++ {
		if ids[i-1] > ids[i] {
			t.Errorf("ids not sorted: %v", ids)
			break
		}
	}
	// Backend names themselves are addressable.
	found := false
	for _, id := range ids {
		if id == "relay" {
			found = true
		}
	}
	if !found {
		t.Errorf("backend name missing from model list: %v", ids)
	}
}
