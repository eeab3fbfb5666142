package keys

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromCode(t *testing.T) {
	tests := []struct {
		name string
		code int
		kind Kind
	}{
		{"character", 65, KindCode},
		{"space", Space, KindCode},
		{"basic layout", -1, KindSentinel},
		{"dot com", -5, KindSentinel},
		{"outside sentinel set", -6, KindNone},
		{"zero", 0, KindNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, FromCode(tt.code).Kind())
		})
	}
}

func TestIdentityAccessors(t *testing.T) {
	a := Code(65)
	assert.True(t, a.Is(65))
	assert.False(t, a.IsAction(SwitchKeyboard))
	assert.Equal(t, 65, a.Code())

	sw := Action(SwitchKeyboard)
	s, ok := sw.Sentinel()
	assert.True(t, ok)
	assert.Equal(t, SwitchKeyboard, s)
	assert.Equal(t, -3, sw.Code())
	assert.False(t, sw.Is(-3), "sentinels are not character codes")

	sel := Selection("hello", "42")
	assert.True(t, sel.IsSelection())
	assert.Equal(t, 0, sel.Code())
	assert.Equal(t, "hello", sel.Text())
	assert.Equal(t, "42", sel.Data())

	var none Identity
	assert.True(t, none.IsNone())
	assert.Equal(t, "none", none.String())
}

func TestIsControl(t *testing.T) {
	assert.True(t, IsControl(Backspace))
	assert.True(t, IsControl(Return))
	assert.False(t, IsControl(Space))
	assert.False(t, IsControl('a'))
}
