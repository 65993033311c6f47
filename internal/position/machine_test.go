package position

import (
	"testing"

	"mmterm/pkg/types"
)

func TestApplyFillSetsLegOnceFilled(t *testing.T) {
	t.Parallel()

	mc := &Machine{}
	leg := types.Leg{TokenID: "111"}

	mc.applyFill(&leg, types.FillStatus{Kind: types.FillPending})
	if leg.Filled {
		t.Fatal("pending status must not mark the leg filled")
	}

	price := types.PriceFromFloat(0.62)
	mc.applyFill(&leg, types.FillStatus{Kind: types.FillFilled, Price: price})
	if !leg.Filled {
		t.Fatal("filled status must mark the leg filled")
	}
	if leg.FillPrice.Cmp(price) != 0 {
		t.Errorf("FillPrice = %v, want %v", leg.FillPrice, price)
	}

	// Once filled, a later status must not overwrite the recorded fill price.
	mc.applyFill(&leg, types.FillStatus{Kind: types.FillFilled, Price: types.PriceFromFloat(0.9)})
	if leg.FillPrice.Cmp(price) != 0 {
		t.Errorf("FillPrice changed after already filled: got %v, want %v", leg.FillPrice, price)
	}
}

func TestCommitLegsAssignsByOutcomeIndex(t *testing.T) {
	t.Parallel()

	mc := &Machine{}
	filled := types.Leg{TokenID: "filled-leg"}
	unfilled := types.Leg{TokenID: "unfilled-leg"}

	mc.commitLegs(filled, unfilled, 0) // unfilled is YES
	if mc.pos.Yes.TokenID != "unfilled-leg" || mc.pos.No.TokenID != "filled-leg" {
		t.Errorf("outcomeIdx=0: got Yes=%s No=%s", mc.pos.Yes.TokenID, mc.pos.No.TokenID)
	}

	mc.commitLegs(filled, unfilled, 1) // unfilled is NO
	if mc.pos.No.TokenID != "unfilled-leg" || mc.pos.Yes.TokenID != "filled-leg" {
		t.Errorf("outcomeIdx=1: got Yes=%s No=%s", mc.pos.Yes.TokenID, mc.pos.No.TokenID)
	}
}
