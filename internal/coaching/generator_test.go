package coaching

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeGateway struct {
	answer string
	err    error
	prompt string
}

func (g *fakeGateway) GetAnswer(_ context.Context, prompt string) (string, error) {
	g.prompt = prompt
	return g.answer, g.err
}

func TestGeneratorComposesPromptGatewayAndParser(t *testing.T) {
	gateway := &fakeGateway{answer: wrapEnvelope(t, fullDocument)}
	gen := NewGenerator(gateway, zaptest.NewLogger(t))

	rec, err := gen.Generate(context.Background(), sampleActivity)
	require.NoError(t, err)
	require.Equal(t, BuildPrompt(sampleActivity), gateway.prompt)
	require.Equal(t, sampleActivity.ID, rec.ActivityID)
	require.Equal(t, sampleActivity.UserID, rec.UserID)
}

func TestGeneratorWrapsGatewayErrors(t *testing.T) {
	boom := errors.New("connection reset")
	gen := NewGenerator(&fakeGateway{err: boom}, nil)

	rec, err := gen.Generate(context.Background(), sampleActivity)
	require.Nil(t, rec)
	require.ErrorIs(t, err, boom)
	var parseErr *ParseError
	require.False(t, errors.As(err, &parseErr))
}

func TestGeneratorSurfacesParseErrors(t *testing.T) {
	gen := NewGenerator(&fakeGateway{answer: `{"candidates":[]}`}, nil)

	_, err := gen.Generate(context.Background(), sampleActivity)
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	require.Equal(t, "envelope", parseErr.Stage)
}
