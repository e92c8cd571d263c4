package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNumericCode(t *testing.T) {
	t.Parallel()

	for i := 0; i < 50; i++ {
		code, err := NewNumericCode(4)
		require.NoError(t, err)
		require.Len(t, code, 4)
		for _, r := range code {
			assert.True(t, r >= '0' && r <= '9', "unexpected rune %q in %q", r, code)
		}
	}

	_, err := NewNumericCode(0)
	assert.Error(t, err)
}

func TestNewRefreshToken(t *testing.T) {
	t.Parallel()

	a, err := NewRefreshToken(16)
	require.NoError(t, err)
	b, err := NewRefreshToken(16)
	require.NoError(t, err)

	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}

func TestSlugify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{in: "Acme Corp", want: "acme-corp"},
		{in: "  Acme -- Corp!  ", want: "acme-corp"},
		{in: "R&D Lab_2", want: "rd-lab_2"},
		{in: "---", want: ""},
		{in: "Café Münster", want: "cafe-munster"},
		{in: "会社コード", want: ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Slugify(tc.in), tc.in)
	}
}

func TestDateOrdinal(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 719163, DateOrdinal(time.Date(1970, 1, 1, 12, 0, 0, 0, time.UTC)))
	assert.Equal(t, 738521, DateOrdinal(time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 737669, DateOrdinal(time.Date(2020, 9, 1, 23, 59, 0, 0, time.UTC)))
}
