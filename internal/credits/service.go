package credits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service 基于 gorm 的积分存储，实现 CreditStore
type Service struct {
	db *gorm.DB
}

// NewService 创建积分服务
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Models 需要迁移的表
func Models() []any {
	return []any{&CreditAccount{}, &CreditTransaction{}, &PricingRule{}, &UsageRecord{}}
}

// ============ 账户管理 ============

// GetOrCreateAccount 获取或创建积分账户
func (s *Service) GetOrCreateAccount(ctx context.Context, userID string) (*CreditAccount, error) {
	return s.getOrCreateAccountTx(s.db.WithContext(ctx), userID)
}

func (s *Service) getOrCreateAccountTx(db *gorm.DB, userID string) (*CreditAccount, error) {
	var account CreditAccount
	err := db.Where("user_id = ?", userID).First(&account).Error
	if err == nil {
		return &account, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	account = CreditAccount{
		ID:     uuid.New().String(),
		UserID: userID,
		Tier:   TierFree,
	}
	if err := db.Create(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// GetAccount 获取积分账户
func (s *Service) GetAccount(ctx context.Context, userID string) (*CreditAccount, error) {
	var account CreditAccount
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// GetBalance 获取余额，账户不存在时视为 0
func (s *Service) GetBalance(ctx context.Context, userID string) (int64, error) {
	account, err := s.GetAccount(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return account.Balance, nil
}

// SetTier 调整账户等级
func (s *Service) SetTier(ctx context.Context, userID string, tier AccountTier) error {
	return s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		account, err := s.getOrCreateAccountTx(db, userID)
		if err != nil {
			return err
		}
		return db.Model(account).Update("tier", tier).Error
	})
}

// ============ 充值 ============

// Recharge 管理员充值
func (s *Service) Recharge(ctx context.Context, req *RechargeRequest) (*CreditTransaction, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	var tx *CreditTransaction
	err := s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		account, err := s.getOrCreateAccountTx(db, req.UserID)
		if err != nil {
			return err
		}

		if err := db.Model(&CreditAccount{}).Where("id = ?", account.ID).Updates(map[string]any{
			"balance":     gorm.Expr("balance + ?", req.Amount),
			"total_added": gorm.Expr("total_added + ?", req.Amount),
		}).Error; err != nil {
			return err
		}

		tx = &CreditTransaction{
			ID:            uuid.New().String(),
			UserID:        req.UserID,
			AccountID:     account.ID,
			Type:          TransactionTypeRecharge,
			Amount:        req.Amount,
			BalanceBefore: account.Balance,
			BalanceAfter:  account.Balance + req.Amount,
			Description:   fmt.Sprintf("管理员充值 %d 积分", req.Amount),
			OperatorID:    req.OperatorID,
		}
		if req.Remark != "" {
			tx.Description = req.Remark
		}
		return db.Create(tx).Error
	})
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// ============ 扣费 ============

// Debit 原子扣减余额并写入消费流水。
// 行锁 + 条件更新保证余额不会被扣成负数。
func (s *Service) Debit(ctx context.Context, req *DebitRequest) (*DebitResult, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	var result *DebitResult
	err := s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		var account CreditAccount
		if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", req.UserID).
			First(&account).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAccountNotFound
			}
			return err
		}

		if account.Balance < req.Amount {
			return &InsufficientCreditsError{Required: req.Amount, Available: account.Balance}
		}

		res := db.Model(&CreditAccount{}).
			Where("id = ? AND balance >= ?", account.ID, req.Amount).
			Updates(map[string]any{
				"balance":    gorm.Expr("balance - ?", req.Amount),
				"total_used": gorm.Expr("total_used + ?", req.Amount),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &InsufficientCreditsError{Required: req.Amount, Available: account.Balance}
		}

		tx := &CreditTransaction{
			ID:             uuid.New().String(),
			UserID:         req.UserID,
			AccountID:      account.ID,
			Type:           TransactionTypeConsume,
			Amount:         -req.Amount,
			BalanceBefore:  account.Balance,
			BalanceAfter:   account.Balance - req.Amount,
			ToolName:       req.ToolName,
			ConversationID: req.ConversationID,
			Description:    fmt.Sprintf("工具调用消耗 %d 积分 (%s)", req.Amount, req.ToolName),
		}
		if err := db.Create(tx).Error; err != nil {
			return err
		}

		result = &DebitResult{
			TransactionID: tx.ID,
			BalanceBefore: tx.BalanceBefore,
			BalanceAfter:  tx.BalanceAfter,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ============ 用量 ============

// AppendUsage 追加用量记录
func (s *Service) AppendUsage(ctx context.Context, rec *UsageRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	return s.db.WithContext(ctx).Create(rec).Error
}

// UsageQuery 用量查询条件
type UsageQuery struct {
	UserID         string
	ConversationID string
	ToolName       string
	Since          time.Time
	Limit          int
}

// ListUsage 按时间倒序列出用量记录
func (s *Service) ListUsage(ctx context.Context, q UsageQuery) ([]UsageRecord, error) {
	query := s.db.WithContext(ctx).Model(&UsageRecord{}).Where("user_id = ?", q.UserID)
	if q.ConversationID != "" {
		query = query.Where("conversation_id = ?", q.ConversationID)
	}
	if q.ToolName != "" {
		query = query.Where("tool_name = ?", q.ToolName)
	}
	if !q.Since.IsZero() {
		query = query.Where("created_at >= ?", q.Since)
	}
	limit := q.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var records []UsageRecord
	err := query.Order("created_at DESC").Limit(limit).Find(&records).Error
	return records, err
}

// UsageSummary 按工具汇总
type UsageSummary struct {
	ToolName  string `json:"toolName"`
	Calls     int64  `json:"calls"`
	TotalCost int64  `json:"totalCost"`
}

// SummarizeUsage 按工具聚合调用次数与积分
func (s *Service) SummarizeUsage(ctx context.Context, userID string, since time.Time) ([]UsageSummary, error) {
	var rows []UsageSummary
	query := s.db.WithContext(ctx).Model(&UsageRecord{}).
		Select("tool_name, COUNT(*) AS calls, COALESCE(SUM(cost), 0) AS total_cost").
		Where("user_id = ?", userID)
	if !since.IsZero() {
		query = query.Where("created_at >= ?", since)
	}
	err := query.Group("tool_name").Order("total_cost DESC").Scan(&rows).Error
	return rows, err
}

// ListTransactions 列出积分流水
func (s *Service) ListTransactions(ctx context.Context, userID string, limit int) ([]CreditTransaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var txs []CreditTransaction
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&txs).Error
	return txs, err
}
