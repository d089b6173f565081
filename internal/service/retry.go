package service

import (
	"context"
	"errors"
)

// DefaultRetryAttempts - 명시적 version 없이 들어온 명령의 재시도 횟수
const DefaultRetryAttempts = 5

// RetryOnConflict - fn이 ErrConflict를 반환하면 다시 실행
// fn은 매번 엔티티를 재조회하고 전이 가능 여부를 재검증해야 함
// ctx 만료 시 ErrDeadlineExceeded
func RetryOnConflict(ctx context.Context, attempts int, fn func() error) error {
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxError(ctxErr)
		}
		err = fn()
		if !errors.Is(err, ErrConflict) {
			return err
		}
	}
	return err
}
