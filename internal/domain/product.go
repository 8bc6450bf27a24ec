package domain

import "time"

// Product хранит товарную позицию каталога и её доступный остаток.
type Product struct {
	ID   string
	Name string
	// PriceMinor — актуальная цена; в заказ копируется цена на момент оформления.
	PriceMinor int64
	Currency   string
	// Stock — доступный остаток; не может уйти в минус. Мутируется
	// исключительно атомарным условным декрементом, никогда прямым присваиванием.
	Stock     int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// StockShortage описывает позицию заказа, по которой не хватило остатка.
type StockShortage struct {
	ProductID string
	Requested int32
}
