package fees

import (
	"errors"
	"math/big"
	"testing"
)

func TestApplySplitsGross(t *testing.T) {
	policy := Policy{FeePercent: 5, Treasury: [20]byte{0x01}}
	res, err := policy.Apply(big.NewInt(100))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Fee.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("expected fee 5, got %s", res.Fee)
	}
	if res.Net.Cmp(big.NewInt(95)) != 0 {
		t.Fatalf("expected net 95, got %s", res.Net)
	}
}

func TestApplyConservesGross(t *testing.T) {
	treasury := [20]byte{0xAB}
	grosses := []int64{0, 1, 7, 99, 100, 101, 12345, 1_000_000_007}
	for percent := uint64(0); percent <= 100; percent += 7 {
		policy := Policy{FeePercent: percent, Treasury: treasury}
		for _, gross := range grosses {
			res, err := policy.Apply(big.NewInt(gross))
			if err != nil {
				t.Fatalf("apply percent=%d gross=%d: %v", percent, gross, err)
			}
			total := new(big.Int).Add(res.Fee, res.Net)
			if total.Cmp(big.NewInt(gross)) != 0 {
				t.Fatalf("fee %s + net %s != gross %d", res.Fee, res.Net, gross)
			}
		}
	}
}

func TestPolicyValidation(t *testing.T) {
	if err := (Policy{FeePercent: 101, Treasury: [20]byte{0x01}}).Valid(); !errors.Is(err, ErrPercentOutOfRange) {
		t.Fatalf("expected percent range error, got %v", err)
	}
	if err := (Policy{FeePercent: 5}).Valid(); !errors.Is(err, ErrNilTreasury) {
		t.Fatalf("expected treasury error, got %v", err)
	}
	if err := (Policy{FeePercent: 0}).Valid(); err != nil {
		t.Fatalf("zero-fee policy without treasury should be valid, got %v", err)
	}
	if _, err := (Policy{FeePercent: 5, Treasury: [20]byte{0x01}}).Apply(big.NewInt(-1)); err == nil {
		t.Fatal("expected error for negative gross")
	}
}
