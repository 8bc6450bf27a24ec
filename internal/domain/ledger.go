package domain

import (
	"fmt"
	"time"
)

// LedgerEntryType описывает тип денежного движения.
type LedgerEntryType string

const (
	LedgerEntrySale          LedgerEntryType = "sale"
	LedgerEntryRefund        LedgerEntryType = "refund"
	LedgerEntryChargeback    LedgerEntryType = "chargeback"
	LedgerEntryChargebackFee LedgerEntryType = "chargeback_fee"
)

// LedgerDirection описывает направление движения средств.
type LedgerDirection string

const (
	LedgerDirectionIn  LedgerDirection = "in"
	LedgerDirectionOut LedgerDirection = "out"
)

// LedgerEntry — неизменяемая запись денежного движения. Записи только
// добавляются; исправления делаются компенсирующими записями, не правками.
type LedgerEntry struct {
	ID string
	// OrderID пуст для записей, не привязанных к заказу.
	OrderID   string
	Type      LedgerEntryType
	Direction LedgerDirection
	// AmountMinor — знаковая сумма: положительная для in, отрицательная для out.
	AmountMinor int64
	Currency    string
	Metadata    map[string]string
	// DedupeKey — детерминированный ключ идемпотентности; уникальность
	// энфорсится на уровне хранилища, а не в коде приложения.
	DedupeKey string
	CreatedAt time.Time
}

// SaleDedupeKey возвращает ключ идемпотентности sale-записи заказа.
// Детерминированность ключа гарантирует не более одной sale-записи на заказ.
func SaleDedupeKey(orderID string) string {
	return "sale-" + orderID
}

// RefundDedupeKey возвращает ключ идемпотентности refund-записи.
func RefundDedupeKey(orderID, providerEventID string) string {
	return fmt.Sprintf("refund:%s:%s", orderID, providerEventID)
}

// ChargebackDedupeKey возвращает ключ идемпотентности chargeback-записи.
func ChargebackDedupeKey(orderID, providerEventID string) string {
	return fmt.Sprintf("chargeback:%s:%s", orderID, providerEventID)
}

// ChargebackFeeDedupeKey возвращает ключ идемпотентности записи комиссии за chargeback.
func ChargebackFeeDedupeKey(orderID, providerEventID string) string {
	return fmt.Sprintf("chargeback-fee:%s:%s", orderID, providerEventID)
}

// ValidateInvariants проверяет согласованность записи перед записью в ledger.
func (e *LedgerEntry) ValidateInvariants() []error {
	var errs []error

	if e.DedupeKey == "" {
		errs = append(errs, ErrLedgerDedupeKeyRequired)
	}
	if e.Currency == "" {
		errs = append(errs, ErrCurrencyRequired)
	}
	switch e.Direction {
	case LedgerDirectionIn:
		if e.AmountMinor < 0 {
			errs = append(errs, ErrLedgerAmountSignMismatch)
		}
	case LedgerDirectionOut:
		if e.AmountMinor > 0 {
			errs = append(errs, ErrLedgerAmountSignMismatch)
		}
	default:
		errs = append(errs, ErrLedgerDirectionInvalid)
	}

	return errs
}
