package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// PayoutStatus описывает состояние партнёрской выплаты.
type PayoutStatus string

const (
	PayoutStatusPending   PayoutStatus = "pending"
	PayoutStatusPaid      PayoutStatus = "paid"
	PayoutStatusCancelled PayoutStatus = "cancelled"
)

// Payout — обязательство по выплате партнёру с подтверждённого заказа.
type Payout struct {
	ID          string
	OrderID     string
	PartnerCode string
	RuleID      string
	AmountMinor int64
	Currency    string
	Status      PayoutStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PayoutRule — версионированное во времени правило распределения выручки.
// Набор правил append-only: изменение процентов не переписывает историю.
type PayoutRule struct {
	ID          string
	PartnerCode string
	// Percent — доля партнёра в процентах от суммы заказа.
	Percent decimal.Decimal
	// ValidFrom — дата, с которой правило действует.
	ValidFrom time.Time
	// Priority разрешает конфликт правил с одинаковым ValidFrom (меньше — важнее).
	Priority  int
	CreatedAt time.Time
}

// Amount вычисляет сумму выплаты по правилу: total * percent / 100,
// округлённую до целых минимальных единиц (banker's rounding не нужен,
// исходная система округляла арифметически).
func (r PayoutRule) Amount(totalMinor int64) int64 {
	return decimal.NewFromInt(totalMinor).
		Mul(r.Percent).
		Div(decimal.NewFromInt(100)).
		Round(0).
		IntPart()
}

// EffectiveRules выбирает действующие правила на момент at: правила с
// ValidFrom позже at отбрасываются, для каждого партнёра остаётся правило
// с самым поздним ValidFrom (ничья решается меньшим Priority).
func EffectiveRules(rules []PayoutRule, at time.Time) []PayoutRule {
	applicable := make([]PayoutRule, 0, len(rules))
	for _, rule := range rules {
		if !rule.ValidFrom.After(at) {
			applicable = append(applicable, rule)
		}
	}

	sort.Slice(applicable, func(i, j int) bool {
		if !applicable[i].ValidFrom.Equal(applicable[j].ValidFrom) {
			return applicable[i].ValidFrom.After(applicable[j].ValidFrom)
		}
		return applicable[i].Priority < applicable[j].Priority
	})

	seen := make(map[string]struct{}, len(applicable))
	effective := make([]PayoutRule, 0, len(applicable))
	for _, rule := range applicable {
		if _, ok := seen[rule.PartnerCode]; ok {
			continue
		}
		seen[rule.PartnerCode] = struct{}{}
		effective = append(effective, rule)
	}

	return effective
}
