package ctf

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"mmterm/pkg/types"
)

func TestTokenIDDistinctPerOutcome(t *testing.T) {
	t.Parallel()

	collateral := common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174")
	conditionID := "0x" + "ab"

	yes, err := TokenID(collateral, conditionID, 0)
	if err != nil {
		t.Fatalf("TokenID(YES): %v", err)
	}
	no, err := TokenID(collateral, conditionID, 1)
	if err != nil {
		t.Fatalf("TokenID(NO): %v", err)
	}
	if yes.Cmp(no) == 0 {
		t.Errorf("YES and NO token ids must differ, both = %s", yes)
	}
}

func TestTokenIDDeterministic(t *testing.T) {
	t.Parallel()

	collateral := common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174")
	conditionID := "0xdeadbeef"

	a, err := TokenID(collateral, conditionID, 0)
	if err != nil {
		t.Fatalf("TokenID: %v", err)
	}
	b, err := TokenID(collateral, conditionID, 0)
	if err != nil {
		t.Fatalf("TokenID: %v", err)
	}
	if a.Cmp(b) != 0 {
		t.Errorf("TokenID must be deterministic, got %s and %s", a, b)
	}
}

func TestTokenIDRejectsOversizedCondition(t *testing.T) {
	t.Parallel()

	collateral := common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174")
	longCondition := "0x"
	for i := 0; i < 70; i++ {
		longCondition += "a"
	}
	if _, err := TokenID(collateral, longCondition, 0); err == nil {
		t.Error("expected error for oversized condition id, got nil")
	}
}

func TestMoneyUnitsRoundTrip(t *testing.T) {
	t.Parallel()

	want := types.MoneyFromFloat(2.5)
	units := moneyToUnits(want)

	wantUnits := big.NewInt(2_500_000)
	if units.Cmp(wantUnits) != 0 {
		t.Errorf("moneyToUnits(2.5) = %s, want %s", units, wantUnits)
	}

	got := unitsToMoney(units)
	if got.Cmp(want) != 0 {
		t.Errorf("unitsToMoney(moneyToUnits(2.5)) = %s, want %s", got, want)
	}
}
