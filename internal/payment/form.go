package payment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrGatewayStatus 网关返回非 2xx 状态
var ErrGatewayStatus = errors.New("payment gateway unexpected status")

// FormToParams 取表单每个字段的第一个值
func FormToParams(form map[string][]string) map[string]string {
	params := make(map[string]string, len(form))
	for key, values := range form {
		if len(values) == 0 {
			continue
		}
		params[key] = values[0]
	}
	return params
}

// ParamsToRaw 转为可落库的原始报文
func ParamsToRaw(params map[string]string) map[string]interface{} {
	raw := make(map[string]interface{}, len(params))
	for key, value := range params {
		raw[key] = value
	}
	return raw
}

// EncodeParams 编码为查询串，跳过空值
func EncodeParams(params map[string]string) string {
	values := url.Values{}
	for key, value := range params {
		if value == "" {
			continue
		}
		values.Set(key, value)
	}
	return values.Encode()
}

// FirstNonEmpty 返回第一个去空白后非空的值
func FirstNonEmpty(values ...string) string {
	for _, value := range values {
		if v := strings.TrimSpace(value); v != "" {
			return v
		}
	}
	return ""
}

// JoinURL 拼接网关地址与路径
func JoinURL(base, path string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	path = strings.TrimSpace(path)
	if path == "" {
		return base
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

// PostForm 以表单方式请求网关
func PostForm(ctx context.Context, client *http.Client, endpoint string, params map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(EncodeParams(params)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json, text/plain, */*")
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %d", ErrGatewayStatus, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
}
