package retry

import "context"

// DoTyped runs fn under r's policy and returns its result, avoiding a manual
// captured-variable dance at call sites.
func DoTyped[T any](r *Retryer, ctx context.Context, fn func(attempt int) (T, error)) (T, error) {
	var result T
	err := r.Do(ctx, func(attempt int) error {
		v, err := fn(attempt)
		if err == nil {
			result = v
		}
		return err
	})
	return result, err
}
