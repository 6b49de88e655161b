package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketconcierge/internal/bookingerr"
)

func TestNormalize_Forms(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"already 254", "254712345678", "254712345678"},
		{"leading plus", "+254712345678", "254712345678"},
		{"leading zero", "0712345678", "254712345678"},
		{"bare nine digits", "712345678", "254712345678"},
		{"whitespace and hyphens", "0712-345 678", "254712345678"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Normalize(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNormalize_Rejects(t *testing.T) {
	cases := []string{"", "abc", "12345", "254199999999"}
	for _, in := range cases {
		_, err := Normalize(in)
		require.Error(t, err)
		assert.Equal(t, bookingerr.InvalidPhone, bookingerr.KindOf(err))
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{"0712345678", "+254712345678", "712345678"}
	for _, in := range inputs {
		once, err := Normalize(in)
		require.NoError(t, err)
		twice, err := Normalize(once)
		require.NoError(t, err)
		assert.Equal(t, once, twice)
	}
}

func TestValidate_MatchesNormalize(t *testing.T) {
	ok := []string{"254712345678", "0712345678"}
	for _, in := range ok {
		n, err := Normalize(in)
		if err != nil {
			continue
		}
		assert.True(t, Validate(n))
	}
}

func TestMask(t *testing.T) {
	assert.Equal(t, "2547****678", Mask("254712345678"))
}
