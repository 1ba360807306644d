package scanner

import "fmt"

// DiscoveryError reports a root that is neither a file nor a directory, or a
// directory that cannot be listed. It aborts discovery.
type DiscoveryError struct {
	Path string
	Err  error
}

func (e *DiscoveryError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s is neither a file nor a directory", e.Path)
	}
	return fmt.Sprintf("cannot discover images in %s: %v", e.Path, e.Err)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// DiscoveryStats counts what a discovery pass saw
type DiscoveryStats struct {
	Files   int
	Images  int
	Skipped int
	RAW     int
}
