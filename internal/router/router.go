// Package router assigns ready tasks to agents. Resolution is pinned agent
// first, then the static policy table for the task's type; monitor
// recommendations are attached as advisory metadata and never override the
// policy choice.
package router

import (
	"fmt"
	"log"
	"sync"

	"github.com/convoy-run/convoy/pkg/models"
)

// Monitor supplies advisory routing recommendations. Implemented by the
// monitor package; declared here so the router does not depend on it.
type Monitor interface {
	GetRecommendation(taskType models.TaskType) (*models.Recommendation, error)
}

// Router resolves routing decisions from registered agent capability
// records and a per-type preference policy.
type Router struct {
	mu             sync.RWMutex
	agents         map[string]models.AgentProfile
	policy         map[string][]string
	monitor        Monitor
	monitorEnabled bool
}

// New creates a Router with the given type → ordered agent preference
// policy. Agents are registered separately.
func New(policy map[string][]string) *Router {
	if policy == nil {
		policy = make(map[string][]string)
	}
	return &Router{
		agents: make(map[string]models.AgentProfile),
		policy: policy,
	}
}

// RegisterAgent records an agent's capability profile. Re-registering an
// ID replaces the previous profile.
func (r *Router) RegisterAgent(p models.AgentProfile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[p.ID] = p
}

// SetAgentAvailable flips an agent's availability without touching the
// rest of its profile.
func (r *Router) SetAgentAvailable(id string, available bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.agents[id]
	if !ok {
		return
	}
	p.Available = available
	r.agents[id] = p
}

// Agent returns the registered profile for id, if any.
func (r *Router) Agent(id string) (models.AgentProfile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.agents[id]
	return p, ok
}

// SetMonitor wires in a monitor. When enabled, every subsequent decision
// reports monitorInfluenced = true even if no usable recommendation exists.
func (r *Router) SetMonitor(m Monitor, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.monitor = m
	r.monitorEnabled = enabled
}

// SetPolicy replaces the preference policy, e.g. after a config reload.
func (r *Router) SetPolicy(policy map[string][]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if policy == nil {
		policy = make(map[string][]string)
	}
	r.policy = policy
}

// PreferredAgent returns the policy-designated first choice for a task
// type, ignoring availability. The monitor uses this as the "current"
// agent when comparing performance.
func (r *Router) PreferredAgent(t models.TaskType) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	prefs := r.policy[string(t)]
	if len(prefs) == 0 {
		return ""
	}
	return prefs[0]
}

// RouteTask produces the routing decision for one dispatch attempt.
func (r *Router) RouteTask(def models.TaskDefinition) models.RoutingDecision {
	r.mu.RLock()
	defer r.mu.RUnlock()

	decision := models.RoutingDecision{
		TaskID:            def.ID,
		MonitorInfluenced: r.monitorEnabled,
	}

	if def.Agent != "" {
		if p, ok := r.agents[def.Agent]; ok && p.Available {
			decision.Agent = p.ID
			decision.BillingMode = p.BillingMode
			decision.Model = p.Model
			decision.Rationale = "pinned"
			r.attachRecommendation(&decision, def.Type)
			return decision
		}
		log.Printf("[router] task %s pinned to unavailable agent %s, falling back to policy", def.ID, def.Agent)
	}

	for _, id := range r.policy[string(def.Type)] {
		p, ok := r.agents[id]
		if !ok || !p.Available {
			continue
		}
		decision.Agent = p.ID
		decision.BillingMode = p.BillingMode
		decision.Model = p.Model
		decision.Rationale = fmt.Sprintf("policy for type %s", def.Type)
		r.attachRecommendation(&decision, def.Type)
		return decision
	}

	decision.BillingMode = models.BillingUnavailable
	decision.Rationale = fmt.Sprintf("no agent available for type %s", def.Type)
	r.attachRecommendation(&decision, def.Type)
	return decision
}

// attachRecommendation looks up a recommendation for the type and attaches
// it when it carries at least medium confidence. Lookup failures are logged
// and never abort routing. Callers hold r.mu.
func (r *Router) attachRecommendation(decision *models.RoutingDecision, t models.TaskType) {
	if !r.monitorEnabled || r.monitor == nil || !t.Valid() {
		return
	}

	rec, err := r.monitor.GetRecommendation(t)
	if err != nil {
		log.Printf("[router] recommendation lookup for %s failed: %v", t, err)
		return
	}
	if rec == nil || !rec.Confidence.AtLeast(models.ConfidenceMedium) {
		return
	}
	decision.MonitorRecommendation = rec
}
