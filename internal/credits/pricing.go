package credits

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

//go:embed pricing_seed.yaml
var defaultPricingYAML []byte

// PricingRepository 基于 gorm 的定价存储，实现 PricingStore
type PricingRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewPricingRepository 创建定价存储
func NewPricingRepository(db *gorm.DB, logger *zap.Logger) *PricingRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PricingRepository{db: db, logger: logger}
}

// GetActiveRule 获取服务当前生效的定价规则
func (r *PricingRepository) GetActiveRule(ctx context.Context, service string) (*PricingRule, error) {
	var rule PricingRule
	err := r.db.WithContext(ctx).
		Where("service = ? AND is_active = ?", service, true).
		Order("updated_at DESC").
		First(&rule).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPricingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

// ListActiveRules 列出全部生效规则
func (r *PricingRepository) ListActiveRules(ctx context.Context) ([]PricingRule, error) {
	var rules []PricingRule
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("service ASC").
		Find(&rules).Error
	return rules, err
}

// UpsertRule 写入新规则并停用该服务的旧规则，保证同一服务只有一条生效规则
func (r *PricingRepository) UpsertRule(ctx context.Context, rule *PricingRule) error {
	if err := validateRule(rule); err != nil {
		return err
	}
	isNew := rule.ID == ""
	if isNew {
		rule.ID = uuid.New().String()
	}
	rule.IsActive = true

	return r.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		if err := db.Model(&PricingRule{}).
			Where("service = ? AND is_active = ? AND id <> ?", rule.Service, true, rule.ID).
			Update("is_active", false).Error; err != nil {
			return err
		}
		if isNew {
			return db.Create(rule).Error
		}
		return db.Save(rule).Error
	})
}

// DeactivateRule 停用服务的定价规则
func (r *PricingRepository) DeactivateRule(ctx context.Context, service string) error {
	return r.db.WithContext(ctx).Model(&PricingRule{}).
		Where("service = ? AND is_active = ?", service, true).
		Update("is_active", false).Error
}

type pricingSeed struct {
	Rules []struct {
		Service     string   `yaml:"service"`
		Unit        UnitKind `yaml:"unit"`
		Price       float64  `yaml:"price"`
		Description string   `yaml:"description"`
	} `yaml:"rules"`
}

// SeedDefaults 为没有生效规则的服务写入内置默认定价，返回写入条数
func (r *PricingRepository) SeedDefaults(ctx context.Context) (int, error) {
	return r.Seed(ctx, defaultPricingYAML)
}

// Seed 从 YAML 写入定价，已有生效规则的服务保持不变
func (r *PricingRepository) Seed(ctx context.Context, data []byte) (int, error) {
	var seed pricingSeed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return 0, fmt.Errorf("解析定价配置失败: %w", err)
	}

	created := 0
	for _, item := range seed.Rules {
		_, err := r.GetActiveRule(ctx, item.Service)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrPricingNotFound) {
			return created, err
		}

		rule := &PricingRule{
			Service:     item.Service,
			Unit:        item.Unit,
			Price:       item.Price,
			Description: item.Description,
		}
		if err := r.UpsertRule(ctx, rule); err != nil {
			return created, fmt.Errorf("写入定价 %s 失败: %w", item.Service, err)
		}
		created++
	}

	if created > 0 {
		r.logger.Info("默认定价已写入", zap.Int("count", created))
	}
	return created, nil
}

func validateRule(rule *PricingRule) error {
	if rule == nil || strings.TrimSpace(rule.Service) == "" {
		return fmt.Errorf("%w: service 不能为空", ErrInvalidPricing)
	}
	if !rule.Unit.Valid() {
		return fmt.Errorf("%w: 未知计价单位 %q", ErrInvalidPricing, rule.Unit)
	}
	if rule.Price < 0 {
		return fmt.Errorf("%w: 价格不能为负", ErrInvalidPricing)
	}
	return nil
}
