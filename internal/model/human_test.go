package model_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/finchlyline/relsleuth/internal/model"
)

func TestDurationUnmarshal(t *testing.T) {
	var d model.Duration
	require.NoError(t, d.UnmarshalText([]byte("90s")))
	require.Equal(t, 90*time.Second, d.Duration)

	require.Error(t, d.UnmarshalText([]byte("not-a-duration")))

	t.Setenv("RELSLEUTH_TTL", "36h")
	require.NoError(t, d.UnmarshalText([]byte("$RELSLEUTH_TTL")))
	require.Equal(t, 36*time.Hour, d.Duration)
}

func TestDurationMarshal(t *testing.T) {
	d := model.Duration{Duration: 15 * time.Minute}
	text, err := d.MarshalText()
	require.NoError(t, err)
	require.Equal(t, "15m0s", string(text))

	var zero model.Duration
	text, err = zero.MarshalText()
	require.NoError(t, err)
	require.Empty(t, text)
}
