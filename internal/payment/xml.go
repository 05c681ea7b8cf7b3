package payment

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"sort"
	"strings"
)

// ErrXMLInvalid XML 报文无法解析
var ErrXMLInvalid = errors.New("payment xml payload invalid")

// EncodeXML 编码为 <xml><k><![CDATA[v]]></k></xml> 平铺报文，键按字典序输出
func EncodeXML(params map[string]string) []byte {
	keys := make([]string, 0, len(params))
	for key, value := range params {
		if value == "" {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var buf bytes.Buffer
	buf.WriteString("<xml>")
	for _, key := range keys {
		buf.WriteString("<" + key + "><![CDATA[")
		buf.WriteString(strings.ReplaceAll(params[key], "]]>", "]]]]><![CDATA[>"))
		buf.WriteString("]]></" + key + ">")
	}
	buf.WriteString("</xml>")
	return buf.Bytes()
}

// DecodeXML 解析平铺 XML 报文为键值对，只取根节点下一层
func DecodeXML(body []byte) (map[string]string, error) {
	decoder := xml.NewDecoder(bytes.NewReader(body))
	params := make(map[string]string)
	depth := 0
	var current string
	var text strings.Builder
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, ErrXMLInvalid
		}
		switch tok := token.(type) {
		case xml.StartElement:
			depth++
			if depth == 2 {
				current = tok.Name.Local
				text.Reset()
			}
		case xml.CharData:
			if depth == 2 {
				text.Write(tok)
			}
		case xml.EndElement:
			if depth == 2 && current != "" {
				params[current] = strings.TrimSpace(text.String())
				current = ""
			}
			depth--
		}
	}
	if depth != 0 {
		return nil, ErrXMLInvalid
	}
	return params, nil
}

// ParamsToForm 转为表单结构，便于与表单回调共用校验逻辑
func ParamsToForm(params map[string]string) map[string][]string {
	form := make(map[string][]string, len(params))
	for key, value := range params {
		form[key] = []string{value}
	}
	return form
}

// CallbackResponder 回调应答格式由网关决定时实现该接口
type CallbackResponder interface {
	CallbackReply(ok bool) (contentType string, body string)
}
