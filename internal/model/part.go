package model

import "time"

// SparePart - 예비 부품 재고
//
// 불변식: 0 <= QuantityReserved <= QuantityOnHand
type SparePart struct {
	ID               string    `json:"id"`
	PartNumber       string    `json:"part_number"`
	Description      string    `json:"description"`
	QuantityOnHand   int       `json:"quantity_on_hand"`
	QuantityReserved int       `json:"quantity_reserved"`
	MinStock         int       `json:"min_stock"`
	UnitCost         float64   `json:"unit_cost"`
	LeadTimeDays     int       `json:"lead_time_days"`
	Version          int64     `json:"version"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Available - 예약 가능 수량
func (p *SparePart) Available() int {
	return p.QuantityOnHand - p.QuantityReserved
}

// LowStock - 가용 수량이 최소 재고 미만
func (p *SparePart) LowStock() bool {
	return p.Available() < p.MinStock
}

// Consistent - 재고 불변식 확인
func (p *SparePart) Consistent() bool {
	return p.QuantityReserved >= 0 && p.QuantityReserved <= p.QuantityOnHand
}

// CreatePartRequest - 부품 등록 요청
type CreatePartRequest struct {
	ID             string  `json:"id" yaml:"id" validate:"required"`
	PartNumber     string  `json:"part_number" yaml:"part_number" validate:"required"`
	Description    string  `json:"description" yaml:"description"`
	QuantityOnHand int     `json:"quantity_on_hand" yaml:"quantity_on_hand" validate:"gte=0"`
	MinStock       int     `json:"min_stock" yaml:"min_stock" validate:"gte=0"`
	UnitCost       float64 `json:"unit_cost" yaml:"unit_cost" validate:"gte=0"`
	LeadTimeDays   int     `json:"lead_time_days" yaml:"lead_time_days" validate:"gte=0"`
}

// PartQuantityRequest - reserve/release/consume/receive 요청
type PartQuantityRequest struct {
	Qty int `json:"qty"`
}

// PartResponse - 부품 조회 응답 (파생 필드 포함)
type PartResponse struct {
	SparePart
	Available int  `json:"available"`
	LowStock  bool `json:"low_stock"`
}

// NewPartResponse - 파생 필드 채우기
func NewPartResponse(p *SparePart) PartResponse {
	return PartResponse{SparePart: *p, Available: p.Available(), LowStock: p.LowStock()}
}
