package router

import (
	"context"
	"testing"
	"time"

	"github.com/af-corp/janus-gateway/internal/config"
)

func policyConfig(enabled bool) func() config.RoutingConfig {
	return func() config.RoutingConfig {
		return config.RoutingConfig{
			PolicyEnabled: enabled,
			PolicyTimeout: 100 * time.Millisecond,
		}
	}
}

func TestPolicyDisabledAllowsEverything(t *testing.T) {
	p := NewPolicy(policyConfig(false))
	if !p.AllowAgent(context.Background(), PolicyInput{}) {
		t.Error("disabled policy must allow the agent path")
	}
}

func TestPolicyNoModulesAllowsEverything(t *testing.T) {
	p := NewPolicy(policyConfig(true))
	if !p.AllowAgent(context.Background(), PolicyInput{}) {
		t.Error("policy with no loaded modules must allow the agent path")
	}
}

func TestPolicyDenyRule(t *testing.T) {
	p := NewPolicy(policyConfig(true))
	err := p.LoadFromModules(map[string]string{
		"routing.rego": `package janus.routing

default allow_agent := false

allow_agent if input.user.id == "admin"
`,
	})
	if err != nil {
		t.Fatalf("LoadFromModules: %v", err)
	}

	if p.AllowAgent(context.Background(), PolicyInput{User: PolicyUser{ID: "alice"}}) {
		t.Error("policy must deny non-admin users")
	}
	if !p.AllowAgent(context.Background(), PolicyInput{User: PolicyUser{ID: "admin"}}) {
		t.Error("policy must allow admin")
	}
}

func TestPolicyTimeWindowRule(t *testing.T) {
	p := NewPolicy(policyConfig(true))
	err := p.LoadFromModules(map[string]string{
		"hours.rego": `package janus.routing

default allow_agent := false

allow_agent if {
	input.time.hour >= 8
	input.time.hour < 20
}
`,
	})
	if err != nil {
		t.Fatalf("LoadFromModules: %v", err)
	}

	if !p.AllowAgent(context.Background(), PolicyInput{Time: PolicyTime{Hour: 12}}) {
		t.Error("midday request must be allowed")
	}
	if p.AllowAgent(context.Background(), PolicyInput{Time: PolicyTime{Hour: 3}}) {
		t.Error("off-hours request must be denied")
	}
}

func TestPolicyBadModuleFailsLoad(t *testing.T) {
	p := NewPolicy(policyConfig(true))
	err := p.LoadFromModules(map[string]string{
		"broken.rego": `package janus.routing
this is not rego`,
	})
	if err == nil {
		t.Fatal("expected compile error for broken module")
	}
}

func TestPolicyMissingQueryFailsOpen(t *testing.T) {
	// A module that never defines allow_agent yields no result; routing
	// policy is advisory, so the agent path stays open.
	p := NewPolicy(policyConfig(true))
	err := p.LoadFromModules(map[string]string{
		"other.rego": `package janus.unrelated

default something := true
`,
	})
	if err != nil {
		t.Fatalf("LoadFromModules: %v", err)
	}
	if !p.AllowAgent(context.Background(), PolicyInput{}) {
		t.Error("undefined allow_agent must fail open")
	}
}
