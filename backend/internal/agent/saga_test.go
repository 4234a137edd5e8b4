package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "branchboard/backend/pkg/errors"
	"branchboard/backend/pkg/logger"
)

func TestSaga_RunsStepsInOrder(t *testing.T) {
	var order []string
	s := &saga{name: "test", logger: logger.Get()}
	for _, name := range []string{"one", "two", "three"} {
		name := name
		s.add(sagaStep{
			name:    name,
			execute: func(ctx context.Context) error { order = append(order, name); return nil },
		})
	}

	require.NoError(t, s.run(context.Background()))
	assert.Equal(t, []string{"one", "two", "three"}, order)
}

func TestSaga_CompensatesInReverse(t *testing.T) {
	var undone []string
	stepErr := errors.New("step three failed")

	s := &saga{name: "test", logger: logger.Get()}
	for _, name := range []string{"one", "two"} {
		name := name
		s.add(sagaStep{
			name:       name,
			execute:    func(ctx context.Context) error { return nil },
			compensate: func(ctx context.Context) error { undone = append(undone, name); return nil },
		})
	}
	s.add(sagaStep{
		name:       "three",
		execute:    func(ctx context.Context) error { return stepErr },
		compensate: func(ctx context.Context) error { undone = append(undone, "three"); return nil },
	})

	err := s.run(context.Background())

	assert.ErrorIs(t, err, stepErr)
	assert.Equal(t, []string{"two", "one"}, undone)
}

func TestSaga_FailedCompensationIsPartialFailure(t *testing.T) {
	stepErr := errors.New("edge write failed")
	compErr := errors.New("delete failed")

	s := &saga{name: "branch", logger: logger.Get()}
	s.add(sagaStep{
		name:       "create node",
		execute:    func(ctx context.Context) error { return nil },
		compensate: func(ctx context.Context) error { return compErr },
	})
	s.add(sagaStep{
		name:    "create edge",
		execute: func(ctx context.Context) error { return stepErr },
	})

	err := s.run(context.Background())

	require.Error(t, err)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypePartialFailure))
	assert.ErrorIs(t, err, stepErr)

	var partial *apperrors.ErrPartialFailure
	require.True(t, errors.As(err, &partial))
	assert.ErrorIs(t, partial.CompensationErr, compErr)
}

func TestSaga_CompensationSurvivesCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var compCtxErr error

	s := &saga{name: "test", logger: logger.Get()}
	s.add(sagaStep{
		name:    "create node",
		execute: func(ctx context.Context) error { return nil },
		compensate: func(ctx context.Context) error {
			compCtxErr = ctx.Err()
			return nil
		},
	})
	s.add(sagaStep{
		name: "create edge",
		execute: func(ctx context.Context) error {
			cancel()
			return ctx.Err()
		},
	})

	err := s.run(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.NoError(t, compCtxErr)
}
