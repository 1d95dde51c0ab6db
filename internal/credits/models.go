package credits

import (
	"time"

	"gorm.io/datatypes"
)

// AccountTier 账户等级
type AccountTier string

const (
	TierFree      AccountTier = "free"
	TierPro       AccountTier = "pro"
	TierUnlimited AccountTier = "unlimited" // 内部/运营账户，不扣费
)

// CreditAccount 积分账户
type CreditAccount struct {
	ID         string      `json:"id" gorm:"primaryKey;size:36"`
	UserID     string      `json:"userId" gorm:"size:64;not null;uniqueIndex:idx_credit_account_user"`
	Balance    int64       `json:"balance" gorm:"not null;default:0"` // 当前余额，永不为负
	Tier       AccountTier `json:"tier" gorm:"size:20;not null;default:free"`
	TotalUsed  int64       `json:"totalUsed" gorm:"not null;default:0"`  // 累计消耗
	TotalAdded int64       `json:"totalAdded" gorm:"not null;default:0"` // 累计充值
	CreatedAt  time.Time   `json:"createdAt" gorm:"not null;autoCreateTime"`
	UpdatedAt  time.Time   `json:"updatedAt" gorm:"not null;autoUpdateTime"`
}

// TransactionType 交易类型
type TransactionType string

const (
	TransactionTypeRecharge TransactionType = "recharge" // 充值
	TransactionTypeConsume  TransactionType = "consume"  // 工具消费
	TransactionTypeGift     TransactionType = "gift"     // 赠送
	TransactionTypeRefund   TransactionType = "refund"   // 退款
)

// CreditTransaction 积分流水，只追加
type CreditTransaction struct {
	ID             string          `json:"id" gorm:"primaryKey;size:36"`
	UserID         string          `json:"userId" gorm:"size:64;not null;index:idx_credit_tx_user"`
	AccountID      string          `json:"accountId" gorm:"size:36;not null;index"`
	Type           TransactionType `json:"type" gorm:"size:20;not null"`
	Amount         int64           `json:"amount" gorm:"not null"` // 变动金额（正负）
	BalanceBefore  int64           `json:"balanceBefore" gorm:"not null"`
	BalanceAfter   int64           `json:"balanceAfter" gorm:"not null"`
	ToolName       string          `json:"toolName" gorm:"size:100"`
	ConversationID string          `json:"conversationId" gorm:"size:64"`
	Description    string          `json:"description" gorm:"size:500"`
	OperatorID     string          `json:"operatorId" gorm:"size:64"` // 充值/调整时的操作人
	CreatedAt      time.Time       `json:"createdAt" gorm:"not null;autoCreateTime;index:idx_credit_tx_time"`
}

// UnitKind 计价单位
type UnitKind string

const (
	UnitFlat             UnitKind = "flat"
	UnitPerMillionTokens UnitKind = "per_million_tokens"
	UnitPerSecond        UnitKind = "per_second"
)

// Valid 是否为已知计价单位
func (u UnitKind) Valid() bool {
	switch u {
	case UnitFlat, UnitPerMillionTokens, UnitPerSecond:
		return true
	}
	return false
}

// PricingRule 工具/服务定价规则，每个 Service 同一时间只有一条生效规则
type PricingRule struct {
	ID          string    `json:"id" gorm:"primaryKey;size:36"`
	Service     string    `json:"service" gorm:"size:100;not null;index:idx_pricing_service"`
	Unit        UnitKind  `json:"unit" gorm:"size:30;not null"`
	Price       float64   `json:"price" gorm:"not null"` // 单价（积分）
	IsActive    bool      `json:"isActive" gorm:"not null;default:true"`
	Description string    `json:"description" gorm:"size:255"`
	CreatedAt   time.Time `json:"createdAt" gorm:"not null;autoCreateTime"`
	UpdatedAt   time.Time `json:"updatedAt" gorm:"not null;autoUpdateTime"`
}

// UsageRecord 用量记录，每次工具调用一条，只追加
type UsageRecord struct {
	ID               string            `json:"id" gorm:"primaryKey;size:36"`
	UserID           string            `json:"userId" gorm:"size:64;not null;index:idx_usage_user"`
	ConversationID   string            `json:"conversationId" gorm:"size:64;index"`
	ToolName         string            `json:"toolName" gorm:"size:100;not null;index"`
	Cost             int64             `json:"cost" gorm:"not null;default:0"`
	Unit             UnitKind          `json:"unit" gorm:"size:30"`
	PromptTokens     int               `json:"promptTokens"`
	CompletionTokens int               `json:"completionTokens"`
	DurationSeconds  float64           `json:"durationSeconds"`
	Success          bool              `json:"success"`
	Detail           string            `json:"detail" gorm:"size:500"` // 失败原因等
	Quantities       datatypes.JSONMap `json:"quantities,omitempty"`
	CreatedAt        time.Time         `json:"createdAt" gorm:"not null;index:idx_usage_time"`
}

// RechargeRequest 充值请求
type RechargeRequest struct {
	UserID     string `json:"userId"`
	Amount     int64  `json:"amount"`
	Remark     string `json:"remark"`
	OperatorID string `json:"operatorId"`
}

// DebitRequest 扣费请求
type DebitRequest struct {
	UserID         string
	Amount         int64
	ToolName       string
	ConversationID string
}

// DebitResult 扣费结果
type DebitResult struct {
	TransactionID string
	BalanceBefore int64
	BalanceAfter  int64
}

// TokenInfo 模型调用 Token 数
type TokenInfo struct {
	PromptTokens     int
	CompletionTokens int
}
