package shared

import (
	"strconv"
	"strings"

	"github.com/dujiao-next/settlement/internal/http/response"

	"github.com/gin-gonic/gin"
)

// ParseUintParam 读取路径参数中的正整数 ID，非法时直接写入错误响应。
func ParseUintParam(c *gin.Context, name, invalidKey string) (uint, bool) {
	raw := strings.TrimSpace(c.Param(name))
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || value == 0 {
		RespondError(c, response.CodeBadRequest, invalidKey, nil)
		return 0, false
	}
	return uint(value), true
}
