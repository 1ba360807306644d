package hashcache

import "fmt"

// CacheUnavailableError reports that the persistent store could not be opened
// or reached. It is fatal for the running phase.
type CacheUnavailableError struct {
	Location string
	Err      error
}

func (e *CacheUnavailableError) Error() string {
	if e.Location == "" {
		return fmt.Sprintf("hash cache unavailable: %v", e.Err)
	}
	return fmt.Sprintf("hash cache at %s unavailable: %v", e.Location, e.Err)
}

func (e *CacheUnavailableError) Unwrap() error {
	return e.Err
}
