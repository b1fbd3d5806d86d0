package assetcache

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownKind = errors.New("assetcache: unknown resource kind")
	ErrClosed      = errors.New("assetcache: cache closed")
)

// FetchError is returned to every awaiter of a failed fetch. It is never cached.
type FetchError struct {
	Key Key
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("assetcache: fetch %s: %v", e.Key, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// MissingFetcherError reports kinds with no fetch function at registry construction.
type MissingFetcherError struct {
	Kinds []Kind
}

func (e *MissingFetcherError) Error() string {
	names := make([]string, len(e.Kinds))
	for i, k := range e.Kinds {
		names[i] = k.String()
	}
	return "assetcache: no fetcher for kind(s): " + strings.Join(names, ", ")
}

// InvalidateError is returned by the Clear family when both the generation
// bump and a provider delete failed, leaving stale bytes that another reader
// sharing the provider could still accept. Either failure alone is logged and
// tolerated. The index and in-flight table are cleared regardless.
type InvalidateError struct {
	Count   int     // cached entries removed
	BumpErr error   // GenStore.Bump failure
	DelErrs []error // provider delete failures
}

func (e *InvalidateError) Error() string {
	switch {
	case e.BumpErr != nil && len(e.DelErrs) > 0:
		return fmt.Sprintf("assetcache: invalidate: gen bump failed: %v; %d provider deletes failed", e.BumpErr, len(e.DelErrs))
	case e.BumpErr != nil:
		return fmt.Sprintf("assetcache: invalidate: gen bump failed: %v", e.BumpErr)
	case len(e.DelErrs) == 1:
		return fmt.Sprintf("assetcache: invalidate: delete failed: %v", e.DelErrs[0])
	case len(e.DelErrs) > 1:
		return fmt.Sprintf("assetcache: invalidate: %d provider deletes failed, first: %v", len(e.DelErrs), e.DelErrs[0])
	default:
		return "assetcache: invalidate: unknown error"
	}
}

func (e *InvalidateError) Unwrap() []error {
	errs := make([]error, 0, len(e.DelErrs)+1)
	if e.BumpErr != nil {
		errs = append(errs, e.BumpErr)
	}
	return append(errs, e.DelErrs...)
}
