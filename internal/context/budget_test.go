package context

import "testing"

func TestAllocateSumsToWindow(t *testing.T) {
	ratios := Ratios{SystemPrompt: 0.1, Bootstrap: 0.05, History: 0.6, Response: 0.25}
	plan := Allocate(200000, ratios, 1000)

	if got := plan.Total(); got > 200000 {
		t.Fatalf("plan total %d exceeds window", got)
	}
	if plan.SystemPrompt != 20000 {
		t.Errorf("system prompt = %d, want 20000", plan.SystemPrompt)
	}
	if plan.Response < 1000 {
		t.Errorf("response %d below floor 1000", plan.Response)
	}
}

func TestAllocateEnforcesResponseFloorFromHistory(t *testing.T) {
	// Response ratio alone would give only 500 tokens against a 1000 floor;
	// the 500-token deficit should come out of history, not system/bootstrap.
	ratios := Ratios{SystemPrompt: 0.1, Bootstrap: 0.05, History: 0.8, Response: 0.05}
	plan := Allocate(10000, ratios, 1000)

	if plan.Response != 1000 {
		t.Fatalf("response = %d, want floor 1000", plan.Response)
	}
	if plan.SystemPrompt != 1000 || plan.Bootstrap != 500 {
		t.Errorf("system/bootstrap should be untouched by the floor: got sp=%d bs=%d", plan.SystemPrompt, plan.Bootstrap)
	}
	// history was 8000 planned, minus the 500 deficit = 7500
	if plan.History != 7500 {
		t.Errorf("history = %d, want 7500", plan.History)
	}
}

func TestAllocateZeroWindow(t *testing.T) {
	plan := Allocate(0, Ratios{SystemPrompt: 0.1, History: 0.7, Response: 0.2}, 100)
	if plan.Total() != 1 {
		t.Errorf("zero window should degenerate to a 1-token plan, got total %d", plan.Total())
	}
}

func TestReclaimFoldsUnusedCapacityIntoHistory(t *testing.T) {
	plan := Plan{SystemPrompt: 20000, Bootstrap: 10000, History: 120000, Response: 30000, Reserve: 20000}

	reclaimed, overBudget := plan.Reclaim(15000, 4000)
	if overBudget {
		t.Fatal("should not be over budget when actuals are below plan")
	}
	// unused: (20000-15000) + (10000-4000) + reserve 20000 = 5000+6000+20000 = 31000
	wantHistory := 120000 + 31000
	if reclaimed.History != wantHistory {
		t.Errorf("history = %d, want %d", reclaimed.History, wantHistory)
	}
	if reclaimed.SystemPrompt != 15000 || reclaimed.Bootstrap != 4000 {
		t.Errorf("reclaimed actuals mismatch: %+v", reclaimed)
	}
	if reclaimed.Reserve != 0 {
		t.Errorf("reserve should be fully folded away, got %d", reclaimed.Reserve)
	}
}

func TestReclaimFlagsOverBudget(t *testing.T) {
	plan := Plan{SystemPrompt: 20000, Bootstrap: 10000, History: 120000, Response: 30000, Reserve: 20000}

	reclaimed, overBudget := plan.Reclaim(25000, 4000)
	if !overBudget {
		t.Fatal("actual system prompt exceeding plan should set overBudget")
	}
	// system prompt overran, so it contributes no reclaim; bootstrap still does.
	wantHistory := 120000 + (10000 - 4000) + 20000
	if reclaimed.History != wantHistory {
		t.Errorf("history = %d, want %d", reclaimed.History, wantHistory)
	}
}
