package api

import (
	"net/http"
	"os"
	"strings"

	"aistudio/internal/infra"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// ReadinessResponse 就绪检查响应
type ReadinessResponse struct {
	Status   string `json:"status"`
	Reason   string `json:"reason,omitempty"`
	Database string `json:"database,omitempty"`
	Redis    string `json:"redis,omitempty"`
}

// HealthCheck 健康检查
// @Summary 服务健康检查
// @Description 返回基础健康状态，可供监控探针使用
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func HealthCheck() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, HealthResponse{Status: "healthy", Service: "aistudio"})
	}
}

// ReadinessCheck 就绪检查，rdb 为空表示未启用 Redis
// @Summary 服务就绪检查
// @Description 包含数据库与 Redis 连通性结果
// @Tags System
// @Produce json
// @Success 200 {object} ReadinessResponse
// @Failure 503 {object} ReadinessResponse
// @Router /ready [get]
func ReadinessCheck(db *gorm.DB, rdb redis.UniversalClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := infra.HealthCheck(db); err != nil {
			c.JSON(http.StatusServiceUnavailable, ReadinessResponse{Status: "not_ready", Reason: "database ping failed"})
			return
		}
		resp := ReadinessResponse{Status: "ready", Database: "connected"}
		if rdb != nil {
			if err := infra.HealthCheckRedis(c.Request.Context(), rdb); err != nil {
				c.JSON(http.StatusServiceUnavailable, ReadinessResponse{Status: "not_ready", Reason: "redis ping failed", Database: "connected"})
				return
			}
			resp.Redis = "connected"
		}
		c.JSON(http.StatusOK, resp)
	}
}

// --- 环境变量辅助函数 ---

// getEnvList 读取逗号分隔的环境变量列表
func getEnvList(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	var res []string
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			res = append(res, v)
		}
	}
	return res
}

// stringInSlice 判断字符串是否存在于切片中
func stringInSlice(target string, list []string) bool {
	for _, v := range list {
		if v == target {
			return true
		}
	}
	return false
}

// defaultIfEmpty 返回非空列表或默认值
func defaultIfEmpty(list []string, def []string) []string {
	if len(list) == 0 {
		return def
	}
	return list
}
