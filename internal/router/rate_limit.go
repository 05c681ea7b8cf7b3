package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dujiao-next/settlement/internal/cache"
	"github.com/dujiao-next/settlement/internal/http/response"
	"github.com/dujiao-next/settlement/internal/i18n"
	"github.com/dujiao-next/settlement/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RateLimitKeyFunc 生成限流主体
type RateLimitKeyFunc func(*gin.Context) string

// RateLimitRule 限流规则
type RateLimitRule struct {
	Scene         string
	WindowSeconds int
	MaxRequests   int
	MessageKey    string
	// FailOpen Redis 异常时放行。支付回调必须放行，否则网关会持续重试甚至放弃通知
	FailOpen bool
}

func (r RateLimitRule) active() bool {
	return r.WindowSeconds > 0 && r.MaxRequests > 0
}

// windowCounter 固定窗口计数
type windowCounter interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)
}

var errMalformedCounterReply = errors.New("malformed rate limit reply")

// INCR 与 EXPIRE 放在同一脚本里，避免首个请求后进程退出留下永不过期的 key
var rateLimitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
	redis.call("EXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("TTL", KEYS[1])
return {current, ttl}
`)

type redisWindow struct {
	client redis.Scripter
}

func (w redisWindow) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	values, err := rateLimitScript.Run(ctx, w.client, []string{key}, int(window/time.Second)).Int64Slice()
	if err != nil {
		return 0, 0, err
	}
	if len(values) < 2 {
		return 0, 0, errMalformedCounterReply
	}
	return values[0], time.Duration(values[1]) * time.Second, nil
}

// RateLimitMiddleware Redis 固定窗口限流，未启用 Redis 时直接放行
func RateLimitMiddleware(store *cache.Store, rule RateLimitRule, keyFunc RateLimitKeyFunc) gin.HandlerFunc {
	client := store.Client()
	if client == nil || !rule.active() {
		return func(c *gin.Context) { c.Next() }
	}
	return rateLimitHandler(redisWindow{client: client}, store.Key, rule, keyFunc)
}

func rateLimitHandler(counter windowCounter, namespace func(string) string, rule RateLimitRule, keyFunc RateLimitKeyFunc) gin.HandlerFunc {
	window := time.Duration(rule.WindowSeconds) * time.Second
	msgKey := strings.TrimSpace(rule.MessageKey)
	if msgKey == "" {
		msgKey = "error.rate_limited"
	}
	limit := strconv.Itoa(rule.MaxRequests)

	return func(c *gin.Context) {
		subject := ""
		if keyFunc != nil {
			subject = strings.TrimSpace(keyFunc(c))
		}
		if subject == "" {
			subject = c.ClientIP()
		}
		key := cache.RateLimitKey(rule.Scene, subject)
		if namespace != nil {
			key = namespace(key)
		}

		count, ttl, err := counter.Incr(c.Request.Context(), key, window)
		if err != nil {
			logger.Warnw("rate_limit_unavailable", "scene", rule.Scene, "fail_open", rule.FailOpen, "error", err)
			if rule.FailOpen {
				c.Next()
				return
			}
			response.Error(c, response.CodeInternal, i18n.T(i18n.ResolveLocale(c), "error.rate_limit_unavailable"))
			c.Abort()
			return
		}

		remaining := int64(rule.MaxRequests) - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", limit)
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if count <= int64(rule.MaxRequests) {
			c.Next()
			return
		}

		wait := int(ttl / time.Second)
		if wait < 1 {
			wait = max(rule.WindowSeconds, 1)
		}
		c.Header("Retry-After", strconv.Itoa(wait))
		response.Error(c, response.CodeTooManyRequests, i18n.Sprintf(i18n.ResolveLocale(c), msgKey, wait))
		c.Abort()
	}
}

// KeyByIP 使用 IP 作为限流主体
func KeyByIP(c *gin.Context) string {
	return c.ClientIP()
}

// KeyByIPAndJSONField 使用 JSON 字段（小写）+ IP 作为限流主体，字段缺失时退回 IP。
// 读取后会还原请求体，后续 handler 仍可正常绑定。
func KeyByIPAndJSONField(field string) RateLimitKeyFunc {
	return func(c *gin.Context) string {
		value := strings.ToLower(readJSONField(c, field))
		if value == "" {
			return c.ClientIP()
		}
		return value + "|" + c.ClientIP()
	}
}

func readJSONField(c *gin.Context, field string) string {
	if c == nil || c.Request == nil || c.Request.Body == nil {
		return ""
	}
	body, err := io.ReadAll(c.Request.Body)
	c.Request.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil || len(body) == 0 {
		return ""
	}
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	var text string
	if err := json.Unmarshal(payload[field], &text); err != nil {
		return ""
	}
	return strings.TrimSpace(text)
}
