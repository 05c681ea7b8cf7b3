package payment

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"sort"
	"strings"
)

// KeyPlacement 密钥拼接位置
type KeyPlacement int

const (
	// KeySuffix canonical + key
	KeySuffix KeyPlacement = iota
	// KeyParam canonical + "&key=" + key
	KeyParam
	// KeyPrefix key + canonical
	KeyPrefix
)

const defaultSignField = "sign"

// SignatureScheme 参数签名方案：排序拼接后做带密钥的 MD5 摘要
type SignatureScheme struct {
	Key       string
	Placement KeyPlacement
	Upper     bool     // 摘要是否输出大写十六进制
	SignField string   // 签名字段名，默认 sign
	Exclude   []string // 额外不参与签名的字段（如 sign_type）
}

// Canonical 生成待签名串：去掉签名字段与空值，按键名升序以 & 连接 key=value
func (s SignatureScheme) Canonical(params map[string]string) string {
	signField := s.signField()
	keys := make([]string, 0, len(params))
	for key, value := range params {
		if value == "" || key == signField || s.excluded(key) {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var builder strings.Builder
	for i, key := range keys {
		if i > 0 {
			builder.WriteByte('&')
		}
		builder.WriteString(key)
		builder.WriteByte('=')
		builder.WriteString(params[key])
	}
	return builder.String()
}

// Sign 计算签名
func (s SignatureScheme) Sign(params map[string]string) string {
	canonical := s.Canonical(params)
	var content string
	switch s.Placement {
	case KeyParam:
		content = canonical + "&key=" + s.Key
	case KeyPrefix:
		content = s.Key + canonical
	default:
		content = canonical + s.Key
	}
	sum := md5.Sum([]byte(content))
	digest := hex.EncodeToString(sum[:])
	if s.Upper {
		return strings.ToUpper(digest)
	}
	return digest
}

// Verify 重新计算签名并与报文中的签名做常量时间比较（大小写须与网关一致）
func (s SignatureScheme) Verify(params map[string]string) bool {
	asserted := params[s.signField()]
	if asserted == "" || s.Key == "" {
		return false
	}
	expected := s.Sign(params)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(asserted)) == 1
}

func (s SignatureScheme) signField() string {
	if s.SignField == "" {
		return defaultSignField
	}
	return s.SignField
}

func (s SignatureScheme) excluded(key string) bool {
	for _, item := range s.Exclude {
		if item == key {
			return true
		}
	}
	return false
}
