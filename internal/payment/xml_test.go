package payment

import "testing"

func TestXMLRoundTrip(t *testing.T) {
	body := EncodeXML(map[string]string{
		"return_code": "SUCCESS",
		"body":        "卡密 <1>",
		"empty":       "",
	})
	want := "<xml><body><![CDATA[卡密 <1>]]></body><return_code><![CDATA[SUCCESS]]></return_code></xml>"
	if string(body) != want {
		t.Fatalf("encode want %s got %s", want, body)
	}
	params, err := DecodeXML(body)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if params["body"] != "卡密 <1>" || params["return_code"] != "SUCCESS" {
		t.Fatalf("decoded params mismatch: %+v", params)
	}
}

func TestDecodeXMLPlainText(t *testing.T) {
	params, err := DecodeXML([]byte("<xml><total_fee>100</total_fee><out_trade_no>DJK1</out_trade_no></xml>"))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if params["total_fee"] != "100" || params["out_trade_no"] != "DJK1" {
		t.Fatalf("decoded params mismatch: %+v", params)
	}
}

func TestDecodeXMLInvalid(t *testing.T) {
	if _, err := DecodeXML([]byte("<xml><a>1</a>")); err == nil {
		t.Fatalf("truncated xml should fail")
	}
}
