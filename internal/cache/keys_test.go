package cache

import (
	"strings"
	"testing"
)

func TestBuildKey_OrderIndependent(t *testing.T) {
	a := BuildKey("dart", "company", map[string]string{"b": "2", "a": "1", "c": "3"})
	b := BuildKey("dart", "company", map[string]string{"c": "3", "a": "1", "b": "2"})
	if a != b {
		t.Errorf("key order changed fingerprint: %s vs %s", a, b)
	}
	if !strings.HasPrefix(a, "dart:company:") {
		t.Errorf("key = %s, want dart:company: prefix", a)
	}
}

func TestBuildKey_DistinctParams(t *testing.T) {
	a := BuildKey("dart", "company", map[string]string{"corp_code": "00126380"})
	b := BuildKey("dart", "company", map[string]string{"corp_code": "00164779"})
	if a == b {
		t.Error("different params produced the same key")
	}
}

func TestBuildKey_IgnoresAuthParams(t *testing.T) {
	a := BuildKey("dart", "company", map[string]string{"corp_code": "00126380", "crtfc_key": "key-1"})
	b := BuildKey("dart", "company", map[string]string{"corp_code": "00126380", "crtfc_key": "key-2"})
	if a != b {
		t.Error("rotating crtfc_key changed the cache key")
	}

	c := BuildKey("kis", "price", map[string]string{"code": "005930", "appkey": "x", "appsecret": "y", "tr_id": "FHKST01010100"})
	d := BuildKey("kis", "price", map[string]string{"code": "005930"})
	if c != d {
		t.Error("auth headers participated in the cache key")
	}
}

func TestKeyPrefix(t *testing.T) {
	key := BuildKey("dart", "company", map[string]string{"corp_code": "00126380"})
	if !strings.HasPrefix(key, KeyPrefix("dart", "company")) {
		t.Errorf("key %s does not start with %s", key, KeyPrefix("dart", "company"))
	}
}
