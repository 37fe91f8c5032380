package router

import (
	"errors"
	"testing"

	"github.com/convoy-run/convoy/pkg/models"
)

type stubMonitor struct {
	rec *models.Recommendation
	err error
}

func (m *stubMonitor) GetRecommendation(models.TaskType) (*models.Recommendation, error) {
	return m.rec, m.err
}

func testRouter() *Router {
	r := New(map[string][]string{
		"coding":  {"claude-code", "codex"},
		"testing": {"codex"},
	})
	r.RegisterAgent(models.AgentProfile{
		ID:          "claude-code",
		BillingMode: models.BillingSubscription,
		Model:       "sonnet",
		Available:   true,
	})
	r.RegisterAgent(models.AgentProfile{
		ID:          "codex",
		BillingMode: models.BillingAPI,
		Available:   true,
	})
	return r
}

func TestRouteTaskPinned(t *testing.T) {
	r := testRouter()

	d := r.RouteTask(models.TaskDefinition{ID: "t1", Type: models.TaskTypeCoding, Agent: "codex"})
	if d.Agent != "codex" {
		t.Errorf("expected pinned agent codex, got %s", d.Agent)
	}
	if d.Rationale != "pinned" {
		t.Errorf("expected rationale pinned, got %q", d.Rationale)
	}
	if d.BillingMode != models.BillingAPI {
		t.Errorf("expected api billing, got %s", d.BillingMode)
	}
}

func TestRouteTaskPinnedUnavailableFallsBack(t *testing.T) {
	r := testRouter()
	r.SetAgentAvailable("codex", false)

	d := r.RouteTask(models.TaskDefinition{ID: "t1", Type: models.TaskTypeCoding, Agent: "codex"})
	if d.Agent != "claude-code" {
		t.Errorf("expected fallback to claude-code, got %s", d.Agent)
	}
	if d.Rationale == "pinned" {
		t.Error("fallback decision should not claim to be pinned")
	}
}

func TestRouteTaskPolicyOrder(t *testing.T) {
	r := testRouter()

	d := r.RouteTask(models.TaskDefinition{ID: "t1", Type: models.TaskTypeCoding})
	if d.Agent != "claude-code" {
		t.Errorf("expected first policy choice claude-code, got %s", d.Agent)
	}

	r.SetAgentAvailable("claude-code", false)
	d = r.RouteTask(models.TaskDefinition{ID: "t1", Type: models.TaskTypeCoding})
	if d.Agent != "codex" {
		t.Errorf("expected second policy choice codex, got %s", d.Agent)
	}
}

func TestRouteTaskUnavailable(t *testing.T) {
	r := testRouter()
	r.SetAgentAvailable("claude-code", false)
	r.SetAgentAvailable("codex", false)

	d := r.RouteTask(models.TaskDefinition{ID: "t1", Type: models.TaskTypeCoding})
	if d.BillingMode != models.BillingUnavailable {
		t.Errorf("expected unavailable billing mode, got %s", d.BillingMode)
	}
	if d.Agent != "" {
		t.Errorf("unavailable decision should have no agent, got %s", d.Agent)
	}
}

func TestRouteTaskUnknownType(t *testing.T) {
	r := testRouter()

	d := r.RouteTask(models.TaskDefinition{ID: "t1", Type: models.TaskTypeDocs})
	if d.BillingMode != models.BillingUnavailable {
		t.Errorf("expected unavailable for type with no policy, got %s", d.BillingMode)
	}
}

func TestMonitorInfluencedAlwaysSet(t *testing.T) {
	r := testRouter()

	d := r.RouteTask(models.TaskDefinition{ID: "t1", Type: models.TaskTypeCoding})
	if d.MonitorInfluenced {
		t.Error("monitorInfluenced should be false before a monitor is wired")
	}

	r.SetMonitor(&stubMonitor{}, true)
	d = r.RouteTask(models.TaskDefinition{ID: "t1", Type: models.TaskTypeCoding})
	if !d.MonitorInfluenced {
		t.Error("monitorInfluenced should be true once the monitor is enabled")
	}
	if d.MonitorRecommendation != nil {
		t.Error("no recommendation should be attached when the monitor has none")
	}
}

func TestRecommendationAttachedAtMediumConfidence(t *testing.T) {
	r := testRouter()
	rec := &models.Recommendation{
		TaskType:         models.TaskTypeCoding,
		CurrentAgent:     "claude-code",
		RecommendedAgent: "codex",
		Confidence:       models.ConfidenceMedium,
	}
	r.SetMonitor(&stubMonitor{rec: rec}, true)

	d := r.RouteTask(models.TaskDefinition{ID: "t1", Type: models.TaskTypeCoding})
	if d.MonitorRecommendation == nil {
		t.Fatal("expected recommendation attached at medium confidence")
	}
	// Advisory only: the policy choice stands even though codex is recommended.
	if d.Agent != "claude-code" {
		t.Errorf("recommendation must not override policy, got %s", d.Agent)
	}
}

func TestRecommendationSkippedAtLowConfidence(t *testing.T) {
	r := testRouter()
	r.SetMonitor(&stubMonitor{rec: &models.Recommendation{Confidence: models.ConfidenceLow}}, true)

	d := r.RouteTask(models.TaskDefinition{ID: "t1", Type: models.TaskTypeCoding})
	if d.MonitorRecommendation != nil {
		t.Error("low-confidence recommendation should not be attached")
	}
	if !d.MonitorInfluenced {
		t.Error("monitorInfluenced should still be true")
	}
}

func TestRecommendationLookupFailureIgnored(t *testing.T) {
	r := testRouter()
	r.SetMonitor(&stubMonitor{err: errors.New("db locked")}, true)

	d := r.RouteTask(models.TaskDefinition{ID: "t1", Type: models.TaskTypeCoding})
	if d.Agent != "claude-code" {
		t.Errorf("routing should survive a recommendation failure, got agent %s", d.Agent)
	}
	if d.MonitorRecommendation != nil {
		t.Error("no recommendation should be attached on lookup failure")
	}
}

func TestPinnedDecisionIgnoresRecommendation(t *testing.T) {
	r := testRouter()
	r.SetMonitor(&stubMonitor{rec: &models.Recommendation{
		RecommendedAgent: "claude-code",
		Confidence:       models.ConfidenceHigh,
	}}, true)

	d := r.RouteTask(models.TaskDefinition{ID: "t1", Type: models.TaskTypeCoding, Agent: "codex"})
	if d.Agent != "codex" {
		t.Errorf("pin must win over recommendation, got %s", d.Agent)
	}
	if d.MonitorRecommendation == nil {
		t.Error("recommendation metadata should still be attached to pinned decisions")
	}
}

func TestPreferredAgent(t *testing.T) {
	r := testRouter()

	if got := r.PreferredAgent(models.TaskTypeCoding); got != "claude-code" {
		t.Errorf("expected claude-code, got %s", got)
	}
	if got := r.PreferredAgent(models.TaskTypeDocs); got != "" {
		t.Errorf("expected empty for unmapped type, got %s", got)
	}
}

func TestSetPolicyReplacesTable(t *testing.T) {
	r := testRouter()
	r.SetPolicy(map[string][]string{"coding": {"codex"}})

	d := r.RouteTask(models.TaskDefinition{ID: "t1", Type: models.TaskTypeCoding})
	if d.Agent != "codex" {
		t.Errorf("expected codex after policy swap, got %s", d.Agent)
	}
}
