package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfroyo/pathq/pkg/errdefs"
)

func TestParseResolveMode(t *testing.T) {
	tests := []struct {
		in   string
		want ResolveMode
	}{
		{"none", ModeNone},
		{"Retry", ModeRetry},
		{"retry_or_use_previous", ModeRetryOrUsePrevious},
		{"RetryOrUsePrevious", ModeRetryOrUsePrevious},
		{"use-previous", ModeUsePrevious},
	}
	for _, tt := range tests {
		got, err := ParseResolveMode(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseResolveMode("sometimes")
	assert.True(t, errdefs.IsConfiguration(err))
}

func TestPolicyValidate(t *testing.T) {
	assert.NoError(t, DefaultPolicy().Validate())
	assert.NoError(t, Policy{Mode: ModeNone}.Validate())
	assert.NoError(t, Policy{Mode: ModeUsePrevious, RetryAmount: 0}.Validate())
	assert.NoError(t, Retry(1, 0).Validate())

	for _, p := range []Policy{
		{},
		{Mode: "later"},
		Retry(0, time.Second),
		RetryOrUsePrevious(2, -time.Second),
	} {
		err := p.Validate()
		require.Error(t, err, p.String())
		assert.True(t, errdefs.IsConfiguration(err))
	}
}

func TestPolicyAttempts(t *testing.T) {
	assert.Equal(t, 3, DefaultPolicy().Attempts())
	assert.Equal(t, 1, Policy{Mode: ModeNone, RetryAmount: 5}.Attempts())
	assert.Equal(t, 1, Policy{Mode: ModeUsePrevious, RetryAmount: 5}.Attempts())
	assert.Equal(t, "retry(3, 5s)", DefaultPolicy().String())
}
