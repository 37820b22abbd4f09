package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFirstJSONArray(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `[1,2]`, `[1,2]`},
		{"prose around", "Here is the plan:\n[{\"a\":1}]\nDone.", `[{"a":1}]`},
		{"nested", `x [[1],[2]] y [3]`, `[[1],[2]]`},
		{"bracket in string", `[{"memo":"a]b"}] tail`, `[{"memo":"a]b"}]`},
		{"escaped quote", `[{"memo":"say \"]\""}]`, `[{"memo":"say \"]\""}]`},
		{"none", `no json here`, ``},
		{"unterminated then valid", `[ oops [1]`, `[1]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FirstJSONArray(tt.in))
		})
	}
}

func TestFirstJSONObject(t *testing.T) {
	in := "```json\n{\"businessName\":\"주식회사 {쿨피스}\",\"n\":{\"x\":1}}\n```"
	assert.Equal(t, `{"businessName":"주식회사 {쿨피스}","n":{"x":1}}`, FirstJSONObject(in))
	assert.Equal(t, "", FirstJSONObject("[]"))
}
