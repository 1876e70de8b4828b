package functools

import "github.com/cockroachdb/errors"

// MapWithError applies fn to every element and stops at the first failure.
// The error names the index that failed.
func MapWithError[T any, R any](slice []T, fn func(T) (R, error)) ([]R, error) {
	if slice == nil {
		return nil, nil
	}
	result := make([]R, 0, len(slice))
	for i, v := range slice {
		r, err := fn(v)
		if err != nil {
			return nil, errors.Wrapf(err, "element %d", i)
		}
		result = append(result, r)
	}
	return result, nil
}
