package agent

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	apperrors "branchboard/backend/pkg/errors"
)

const compensationTimeout = 30 * time.Second

// sagaStep is one write of a multi-step operation together with the write
// that undoes it
type sagaStep struct {
	name       string
	execute    func(ctx context.Context) error
	compensate func(ctx context.Context) error
}

// saga runs steps in order. When a step fails, the completed steps are
// compensated in reverse order and the step's own error is returned. If a
// compensation fails too, the result is a partial failure wrapping both.
type saga struct {
	name   string
	steps  []sagaStep
	logger *zap.Logger
}

func (s *saga) add(step sagaStep) {
	s.steps = append(s.steps, step)
}

func (s *saga) run(ctx context.Context) error {
	completed := make([]sagaStep, 0, len(s.steps))

	for _, step := range s.steps {
		err := step.execute(ctx)
		if err == nil {
			completed = append(completed, step)
			continue
		}

		s.logger.Warn("Saga step failed, compensating",
			zap.String("saga", s.name),
			zap.String("step", step.name),
			zap.Error(err),
		)

		if compErr := s.compensate(ctx, completed); compErr != nil {
			s.logger.Error("Saga compensation failed, storage left partially written",
				zap.String("saga", s.name),
				zap.String("step", step.name),
				zap.Error(err),
				zap.NamedError("compensation_error", compErr),
			)
			return apperrors.NewPartialFailure(s.name, err, compErr)
		}
		return err
	}
	return nil
}

// compensate undoes completed steps newest first. It keeps going after a
// failure so every step gets its chance.
func (s *saga) compensate(ctx context.Context, completed []sagaStep) error {
	// a cancelled request must still roll back
	compCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	var errs []error
	for i := len(completed) - 1; i >= 0; i-- {
		step := completed[i]
		if step.compensate == nil {
			continue
		}
		if err := step.compensate(compCtx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
