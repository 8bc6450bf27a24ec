package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func mustPercent(t *testing.T, s string) decimal.Decimal {
	t.Helper()

	pct, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("parse percent %q: %v", s, err)
	}
	return pct
}

func TestPayoutRuleAmount(t *testing.T) {
	cases := []struct {
		percent string
		total   int64
		want    int64
	}{
		{"10", 100000, 10000},
		{"12.5", 100000, 12500},
		{"3", 99900, 2997},
		// Арифметическое округление дробных геллеров.
		{"2.5", 101, 3},  // 2.525 -> 3
		{"1.1", 135, 1},  // 1.485 -> 1
		{"10", 0, 0},
		{"0", 100000, 0},
	}

	for _, tc := range cases {
		rule := PayoutRule{Percent: mustPercent(t, tc.percent)}
		if got := rule.Amount(tc.total); got != tc.want {
			t.Errorf("%s%% of %d: got %d, want %d", tc.percent, tc.total, got, tc.want)
		}
	}
}

func TestEffectiveRules(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	rules := []PayoutRule{
		{ID: "designer-old", PartnerCode: "designer", ValidFrom: now.Add(-60 * 24 * time.Hour)},
		{ID: "designer-new", PartnerCode: "designer", ValidFrom: now.Add(-24 * time.Hour)},
		{ID: "designer-future", PartnerCode: "designer", ValidFrom: now.Add(24 * time.Hour)},
		{ID: "platform", PartnerCode: "platform", ValidFrom: now.Add(-48 * time.Hour)},
	}

	effective := EffectiveRules(rules, now)
	if len(effective) != 2 {
		t.Fatalf("expected 2 effective rules, got %d", len(effective))
	}

	byPartner := make(map[string]string, len(effective))
	for _, rule := range effective {
		byPartner[rule.PartnerCode] = rule.ID
	}
	if byPartner["designer"] != "designer-new" {
		t.Fatalf("designer: got %s", byPartner["designer"])
	}
	if byPartner["platform"] != "platform" {
		t.Fatalf("platform: got %s", byPartner["platform"])
	}
}

func TestEffectiveRules_PriorityBreaksTie(t *testing.T) {
	at := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	validFrom := at.Add(-24 * time.Hour)

	rules := []PayoutRule{
		{ID: "low-priority", PartnerCode: "designer", ValidFrom: validFrom, Priority: 10},
		{ID: "high-priority", PartnerCode: "designer", ValidFrom: validFrom, Priority: 1},
	}

	effective := EffectiveRules(rules, at)
	if len(effective) != 1 || effective[0].ID != "high-priority" {
		t.Fatalf("expected high-priority rule, got %+v", effective)
	}
}

func TestEffectiveRules_BoundaryInclusive(t *testing.T) {
	at := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	rules := []PayoutRule{{ID: "exact", PartnerCode: "designer", ValidFrom: at}}
	effective := EffectiveRules(rules, at)
	if len(effective) != 1 {
		t.Fatalf("rule starting exactly at the moment must apply")
	}
}

func TestEffectiveRules_Empty(t *testing.T) {
	if got := EffectiveRules(nil, time.Now()); len(got) != 0 {
		t.Fatalf("expected empty result, got %+v", got)
	}
}
