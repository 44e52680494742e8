package llm

import (
	"errors"
	"strings"
)

// ErrFatalAPI marks provider errors that retrying cannot fix: exhausted
// credits, revoked keys, billing problems. The retry loop must not burn
// attempts (or budget) on these.
var ErrFatalAPI = errors.New("fatal llm api error")

var fatalFragments = []string{
	"credit balance",
	"rate limit",
	"quota",
	"billing",
	"invalid api key",
	"authentication",
	"unauthorized",
	"401",
	"403",
}

// isFatalAPIError reports whether err is unrecoverable regardless of retries.
func isFatalAPIError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, fragment := range fatalFragments {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}

// wrapFatalError tags fatal API errors with ErrFatalAPI so callers can
// branch with errors.Is. Non-fatal errors pass through unchanged.
func wrapFatalError(err error) error {
	if err == nil {
		return nil
	}
	if isFatalAPIError(err) {
		return errors.Join(ErrFatalAPI, err)
	}
	return err
}
