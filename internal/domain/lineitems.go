package domain

import (
	"encoding/json"
	"fmt"
)

// lineItemsSchemaVersion — текущая версия схемы payload позиций заказа.
const lineItemsSchemaVersion = 2

// LineItem представляет одну позицию заказа с ценой, зафиксированной в момент оформления.
type LineItem struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name,omitempty"`
	Size      string `json:"size,omitempty"`
	Qty       int32  `json:"qty"`
	// UnitPriceMinor — цена за единицу в минимальных денежных единицах.
	UnitPriceMinor int64 `json:"unit_price_minor"`
}

// ShippingInfo хранит метаданные доставки, появившиеся в схеме v2.
type ShippingInfo struct {
	Carrier        string `json:"carrier,omitempty"`
	PickupPointID  string `json:"pickup_point_id,omitempty"`
	PriceMinor     int64  `json:"price_minor,omitempty"`
	TrackingNumber string `json:"tracking_number,omitempty"`
}

// lineItemsEnvelope — on-disk представление схемы v2.
type lineItemsEnvelope struct {
	Version  int           `json:"version"`
	Items    []LineItem    `json:"items"`
	Shipping *ShippingInfo `json:"shipping,omitempty"`
}

// EncodeLineItems сериализует позиции заказа в payload текущей схемы.
// Новые записи всегда пишутся в v2, даже без данных доставки.
func EncodeLineItems(items []LineItem, shipping *ShippingInfo) ([]byte, error) {
	envelope := lineItemsEnvelope{
		Version:  lineItemsSchemaVersion,
		Items:    items,
		Shipping: shipping,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("encode line items: %w", err)
	}
	return data, nil
}

// DecodeLineItems разбирает payload позиций заказа с миграцией при чтении:
// legacy-записи хранят голый JSON-массив, текущие — объект с версией и
// данными доставки. Оба варианта нормализуются в один типизированный вид.
func DecodeLineItems(payload []byte) ([]LineItem, *ShippingInfo, error) {
	if len(payload) == 0 {
		return nil, nil, ErrLineItemsPayloadEmpty
	}

	// Первый непробельный байт различает legacy-массив и объект-конверт.
	switch firstToken(payload) {
	case '[':
		var items []LineItem
		if err := json.Unmarshal(payload, &items); err != nil {
			return nil, nil, fmt.Errorf("decode legacy line items: %w", err)
		}
		return items, nil, nil
	case '{':
		var envelope lineItemsEnvelope
		if err := json.Unmarshal(payload, &envelope); err != nil {
			return nil, nil, fmt.Errorf("decode line items envelope: %w", err)
		}
		if envelope.Version != lineItemsSchemaVersion {
			return nil, nil, fmt.Errorf("%w: version %d", ErrLineItemsVersionUnknown, envelope.Version)
		}
		return envelope.Items, envelope.Shipping, nil
	default:
		return nil, nil, ErrLineItemsPayloadInvalid
	}
}

func firstToken(payload []byte) byte {
	for _, b := range payload {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			return b
		}
	}
	return 0
}
