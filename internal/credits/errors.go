package credits

import (
	"errors"
	"fmt"
)

var (
	ErrInsufficientCredits = errors.New("积分不足")
	ErrAccountNotFound     = errors.New("积分账户不存在")
	ErrInvalidAmount       = errors.New("无效的积分金额")
	ErrPricingNotFound     = errors.New("定价规则不存在")
	ErrInvalidPricing      = errors.New("无效的定价规则")
	ErrLockTimeout         = errors.New("获取用户扣费锁超时")
)

// InsufficientCreditsError 余额不足，携带所需与可用额度
type InsufficientCreditsError struct {
	Required  int64
	Available int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("积分不足: 需要 %d，可用 %d", e.Required, e.Available)
}

// Is 使 errors.Is(err, ErrInsufficientCredits) 成立
func (e *InsufficientCreditsError) Is(target error) bool {
	return target == ErrInsufficientCredits
}
