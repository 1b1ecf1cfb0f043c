package fingerprint

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func decode(t *testing.T, raw string) interface{} {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var v interface{}
	assert.NoError(t, dec.Decode(&v))
	return v
}

func TestCompute_KeyOrderInvariant(t *testing.T) {
	a := decode(t, `{"userId":"u1","assetCode":"GOLD_COINS","amount":"100"}`)
	b := decode(t, `{"amount":"100","assetCode":"GOLD_COINS","userId":"u1"}`)
	assert.Equal(t, Compute("POST", "/wallet/topup", a), Compute("POST", "/wallet/topup", b))
}

func TestCompute_NestedStructures(t *testing.T) {
	a := decode(t, `{"x":{"b":2,"a":[1,2,{"z":null,"y":true}]}}`)
	b := decode(t, `{"x":{"a":[1,2,{"y":true,"z":null}],"b":2}}`)
	assert.Equal(t, Compute("POST", "/p", a), Compute("POST", "/p", b))
}

func TestCompute_DifferentValuesDiffer(t *testing.T) {
	a := decode(t, `{"amount":"100"}`)
	b := decode(t, `{"amount":"101"}`)
	assert.NotEqual(t, Compute("POST", "/p", a), Compute("POST", "/p", b))
}

func TestCompute_ArrayOrderMatters(t *testing.T) {
	a := decode(t, `{"ids":[1,2]}`)
	b := decode(t, `{"ids":[2,1]}`)
	assert.NotEqual(t, Compute("POST", "/p", a), Compute("POST", "/p", b))
}

func TestCompute_NumberVersusStringDiffer(t *testing.T) {
	// amounts are not normalised before fingerprinting
	a := decode(t, `{"amount":1}`)
	b := decode(t, `{"amount":"1"}`)
	assert.NotEqual(t, Compute("POST", "/p", a), Compute("POST", "/p", b))
}

func TestCompute_MethodCaseInsensitive(t *testing.T) {
	body := decode(t, `{"a":1}`)
	assert.Equal(t, Compute("post", "/p", body), Compute("POST", "/p", body))
}

func TestCompute_HexDigestLength(t *testing.T) {
	fp := Compute("POST", "/p", nil)
	assert.Len(t, fp, 64)
}
