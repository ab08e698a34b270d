package log

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestCtxFallsBackToGlobal(t *testing.T) {
	l := Ctx(context.Background())
	require.Equal(t, L(), l)
}

func TestWithLoggerRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), zerolog.New(&buf))

	l := Ctx(ctx)
	l.Info().Str(FieldUserID, "7").Msg("hello")

	require.Contains(t, buf.String(), `"hello"`)
	require.Contains(t, buf.String(), FieldUserID)
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, zerolog.DebugLevel, parseLevel("debug"))
	require.Equal(t, zerolog.WarnLevel, parseLevel("WARNING"))
	require.Equal(t, zerolog.InfoLevel, parseLevel("nonsense"))
}
