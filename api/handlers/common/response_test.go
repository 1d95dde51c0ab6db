package common

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIResponse(t *testing.T) {
	t.Run("成功响应", func(t *testing.T) {
		body, err := json.Marshal(APIResponse{Success: true, Data: map[string]string{"key": "value"}})
		require.NoError(t, err)
		assert.JSONEq(t, `{"success":true,"data":{"key":"value"}}`, string(body))
	})

	t.Run("错误响应", func(t *testing.T) {
		body, err := json.Marshal(Fail(CodeNotFound, "missing"))
		require.NoError(t, err)
		assert.JSONEq(t, `{"success":false,"code":"not_found","message":"missing"}`, string(body))
	})
}
