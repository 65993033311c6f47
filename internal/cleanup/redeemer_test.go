package cleanup

import (
	"testing"
)

func TestGroupByCondition(t *testing.T) {
	t.Parallel()

	positions := []heldPosition{
		{ConditionID: "0xabc", Outcome: "Yes", Size: 3.0},
		{ConditionID: "0xabc", Outcome: "No", Size: 1.5},
		{ConditionID: "0xdef", Outcome: "Yes", Size: 2.0},
	}

	grouped := groupByCondition(positions)
	if len(grouped) != 2 {
		t.Fatalf("expected 2 conditions, got %d", len(grouped))
	}
	if grouped["0xabc"]["Yes"] != 3.0 || grouped["0xabc"]["No"] != 1.5 {
		t.Errorf("0xabc legs = %+v, want Yes=3.0 No=1.5", grouped["0xabc"])
	}
	if grouped["0xdef"]["Yes"] != 2.0 {
		t.Errorf("0xdef Yes = %v, want 2.0", grouped["0xdef"]["Yes"])
	}
}

func TestAnyNegRisk(t *testing.T) {
	t.Parallel()

	positions := []heldPosition{
		{ConditionID: "0xabc", Outcome: "Yes", NegRisk: true},
		{ConditionID: "0xdef", Outcome: "Yes", NegRisk: false},
	}

	if !anyNegRisk(positions, "0xabc") {
		t.Error("expected 0xabc to be neg-risk")
	}
	if anyNegRisk(positions, "0xdef") {
		t.Error("expected 0xdef to not be neg-risk")
	}
	if anyNegRisk(positions, "0xghi") {
		t.Error("expected unknown condition to not be neg-risk")
	}
}
