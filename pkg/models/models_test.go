package models

import "testing"

func TestTaskStatusValid(t *testing.T) {
	valid := []TaskStatus{
		TaskStatusPending, TaskStatusReady, TaskStatusRunning,
		TaskStatusComplete, TaskStatusFailed, TaskStatusCancelled,
	}
	for _, s := range valid {
		if !s.Valid() {
			t.Errorf("expected %q to be valid", s)
		}
	}

	if TaskStatus("bogus").Valid() {
		t.Error("expected 'bogus' to be invalid")
	}
}

func TestTaskStatusTerminal(t *testing.T) {
	tests := []struct {
		status   TaskStatus
		terminal bool
	}{
		{TaskStatusPending, false},
		{TaskStatusReady, false},
		{TaskStatusRunning, false},
		{TaskStatusComplete, true},
		{TaskStatusFailed, true},
		{TaskStatusCancelled, true},
	}

	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.terminal {
			t.Errorf("%s: expected terminal=%v, got %v", tt.status, tt.terminal, got)
		}
	}
}

func TestTaskTypeValid(t *testing.T) {
	for _, tt := range TaskTypes() {
		if !tt.Valid() {
			t.Errorf("expected %q to be valid", tt)
		}
	}

	if TaskType("research").Valid() {
		t.Error("expected 'research' to be invalid")
	}
}

func TestBillingModeValid(t *testing.T) {
	for _, b := range []BillingMode{BillingSubscription, BillingAPI, BillingUnavailable} {
		if !b.Valid() {
			t.Errorf("expected %q to be valid", b)
		}
	}

	if BillingMode("free").Valid() {
		t.Error("expected 'free' to be invalid")
	}
}

func TestModelPricingCost(t *testing.T) {
	pricing := ModelPricing{InputPerMillion: 3.00, OutputPerMillion: 15.00}

	// 1M input + 1M output = 3 + 15.
	cost := pricing.Cost(1_000_000, 1_000_000)
	if cost != 18.00 {
		t.Errorf("expected cost 18.00, got %f", cost)
	}

	// Zero tokens cost nothing.
	if got := pricing.Cost(0, 0); got != 0 {
		t.Errorf("expected zero cost, got %f", got)
	}
}

func TestPerformanceAggregateSuccessRate(t *testing.T) {
	agg := PerformanceAggregate{TotalTasks: 10, SuccessfulTasks: 7}
	if got := agg.SuccessRate(); got != 70.0 {
		t.Errorf("expected success rate 70, got %f", got)
	}

	empty := PerformanceAggregate{}
	if got := empty.SuccessRate(); got != 0 {
		t.Errorf("expected success rate 0 for empty aggregate, got %f", got)
	}
}

func TestConfidenceAtLeast(t *testing.T) {
	if !ConfidenceHigh.AtLeast(ConfidenceMedium) {
		t.Error("high should be at least medium")
	}
	if !ConfidenceMedium.AtLeast(ConfidenceMedium) {
		t.Error("medium should be at least medium")
	}
	if ConfidenceLow.AtLeast(ConfidenceMedium) {
		t.Error("low should not be at least medium")
	}
}
