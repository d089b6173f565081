// 서비스 에러 분류
//
//	ErrNotFound          - 없는 id
//	ErrValidation        - 필수 값 누락/형식 오류 (재시도 불가)
//	ErrInvalidTransition - 현재 상태에서 허용되지 않는 명령 (재시도 불가)
//	ErrInsufficientStock - 예약 수량 > 가용 수량 (StockError에 가용 수량 포함)
//	ErrConflict          - optimistic version 불일치 (재조회 후 재시도 가능)
//	ErrDeadlineExceeded  - 호출자 deadline 만료로 재시도 루프 중단
//
// 모든 에러는 errors.Is로 위 sentinel과 비교 가능

package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/plantops/equipment-health/internal/db"
	"github.com/plantops/equipment-health/internal/model"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation error")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrConflict          = errors.New("conflict")
	ErrDeadlineExceeded  = errors.New("deadline exceeded")
)

// Error - 엔티티 정보를 담은 서비스 에러
type Error struct {
	Kind    error
	Entity  model.EntityKind
	ID      string
	Message string
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Entity != "" {
		msg = fmt.Sprintf("%s %s: %s", e.Entity, e.ID, msg)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// StockError - 재고 부족 (UI에 가용 수량 표시용)
type StockError struct {
	PartID    string
	Requested int
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for part %s: requested %d, available %d", e.PartID, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error {
	return ErrInsufficientStock
}

func validationError(format string, args ...any) error {
	return &Error{Kind: ErrValidation, Message: fmt.Sprintf(format, args...)}
}

func notFound(entity model.EntityKind, id string) error {
	return &Error{Kind: ErrNotFound, Entity: entity, ID: id}
}

func invalidTransition(entity model.EntityKind, id, op string, from any) error {
	return &Error{Kind: ErrInvalidTransition, Entity: entity, ID: id, Message: fmt.Sprintf("cannot %s from %v", op, from)}
}

func conflict(entity model.EntityKind, id, msg string) error {
	return &Error{Kind: ErrConflict, Entity: entity, ID: id, Message: msg}
}

// ctxError - ctx 만료/취소를 ErrDeadlineExceeded로 변환
func ctxError(err error) error {
	return &Error{Kind: ErrDeadlineExceeded, Message: err.Error()}
}

// storeErr - db 레이어 에러를 서비스 에러로 변환
func storeErr(entity model.EntityKind, id string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, db.ErrNotFound):
		return notFound(entity, id)
	case errors.Is(err, db.ErrVersionConflict):
		return conflict(entity, id, "stale version")
	case errors.Is(err, db.ErrDuplicate):
		return conflict(entity, id, "already exists")
	case errors.Is(err, db.ErrConstraint):
		return conflict(entity, id, "constraint violated by concurrent write")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ctxError(err)
	}
	return fmt.Errorf("%s %s: %w", entity, id, err)
}

// ErrorKind - 로그/메트릭/HTTP 응답용 분류 문자열
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrDeadlineExceeded):
		return "deadline_exceeded"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	}
	return "internal"
}
