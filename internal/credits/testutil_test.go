package credits

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupCreditsTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:credits_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// 内存库在共享缓存下并发写会报 table locked，测试中串行化连接
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(Models()...))
	return db
}

func seedAccount(t *testing.T, svc *Service, userID string, balance int64) {
	t.Helper()
	ctx := context.Background()
	_, err := svc.GetOrCreateAccount(ctx, userID)
	require.NoError(t, err)
	if balance > 0 {
		_, err = svc.Recharge(ctx, &RechargeRequest{UserID: userID, Amount: balance, OperatorID: "test"})
		require.NoError(t, err)
	}
}

func seedRule(t *testing.T, repo *PricingRepository, service string, unit UnitKind, price float64) {
	t.Helper()
	require.NoError(t, repo.UpsertRule(context.Background(), &PricingRule{Service: service, Unit: unit, Price: price}))
}
