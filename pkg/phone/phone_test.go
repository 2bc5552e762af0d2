package phone

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "local safaricom", in: "0712345678", want: "254712345678"},
		{name: "local 01 range", in: "0110345678", want: "254110345678"},
		{name: "international plus", in: "+254 712 345 678", want: "254712345678"},
		{name: "international bare", in: "254712345678", want: "254712345678"},
		{name: "national without zero", in: "712345678", want: "254712345678"},
		{name: "dashes", in: "0712-345-678", want: "254712345678"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Normalize(tc.in)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
			require.True(t, IsSubscriber(got))
		})
	}
}

func TestNormalizeRejects(t *testing.T) {
	for _, in := range []string{"", "abc", "07ABCDEFGH", "0201234567", "+1 415 555 0100", "07123"} {
		_, err := Normalize(in)
		require.ErrorIs(t, err, ErrInvalid, in)
	}
}
