// Package model содержит доменные сущности сервиса shipsync.
package model

import "time"

// Address представляет адрес доставки из события заказа.
type Address struct {
	Address1 string `json:"address1"`
	Address2 string `json:"address2"`
	City     string `json:"city"`
	Zip      string `json:"zip"`
	Province string `json:"province"`
	Country  string `json:"country"`
}

// FulfillmentUnfulfilled — единственный статус заказа, допускающий объединение.
// Заказ с любым другим непустым статусом уже взят в работу складом.
const FulfillmentUnfulfilled = "unfulfilled"

// OrderEvent описывает событие создания заказа после валидации на границе HTTP.
type OrderEvent struct {
	CustomerID        string
	Email             string
	OrderName         string
	FulfillmentStatus string
	ShippingAddress   Address
	// ShippingCost — стоимость доставки из события; nil, если событие её не несёт.
	ShippingCost *float64
}

// Eligible сообщает, может ли событие участвовать в объединении.
// Пустой статус трактуется как "unfulfilled": вебхук создания заказа
// часто приходит до назначения статуса.
func (e OrderEvent) Eligible() bool {
	return e.FulfillmentStatus == "" || e.FulfillmentStatus == FulfillmentUnfulfilled
}

// Candidate представляет кандидата на объединение заказов в одну отправку.
type Candidate struct {
	ID           int64
	CustomerID   string
	Email        string
	ShippingHash string
	MemberOrders []string
	Confirmed    bool
	ShippingCost float64
	CreatedAt    time.Time
}

// CombineCheck — вердикт о возможности объединения заказов покупателя.
type CombineCheck struct {
	CanCombine   bool     `json:"canCombine"`
	Orders       []string `json:"orders,omitempty"`
	ShippingCost *float64 `json:"shippingCost,omitempty"`
}
