package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromise_SettledOnce(t *testing.T) {
	p := NewPromise()
	require.NoError(t, p.Fulfill([]byte(`{"ok":true}`)))
	assert.ErrorIs(t, p.Fulfill([]byte(`{}`)), ErrAlreadySettled)
	assert.ErrorIs(t, p.Fail(errors.New("late")), ErrAlreadySettled)

	result, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(result))
}

func TestPromise_Fail(t *testing.T) {
	p := NewPromise()
	go func() { _ = p.Fail(errors.New("boom")) }()

	_, err := p.Wait(context.Background())
	assert.EqualError(t, err, "boom")
}

func TestPromise_WaitCanceled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := NewPromise().Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
