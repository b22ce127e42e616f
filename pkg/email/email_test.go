package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "aigerim@Example.KZ", want: "aigerim@example.kz"},
		{in: "  first.last+tag@mail.com ", want: "first.last+tag@mail.com"},
		{in: "not-an-email", wantErr: true},
		{in: "Jane <jane@example.com>", wantErr: true},
		{in: "@example.com", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Normalize(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalid)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDomain(t *testing.T) {
	assert.Equal(t, "mailinator.com", Domain("x@Mailinator.com"))
	assert.Equal(t, "", Domain("no-at-sign"))
	assert.Equal(t, "", Domain("trailing@"))
}
