package finder

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"imagemanager/logging"
	"imagemanager/types"

	"github.com/sirupsen/logrus"
)

// ProcessImageResult holds the outcome of hashing one image in a phase
type ProcessImageResult struct {
	Path   string
	Cached bool
	Error  error
}

// PhaseStats summarizes a finished phase
type PhaseStats struct {
	Phase     string
	Total     int
	Processed int
	Cached    int
	Computed  int
	Failed    int
	Elapsed   time.Duration

	// FailedImages lists the images that could not be hashed, in completion order.
	FailedImages []types.ImageRef
}

// ProgressTracker counts phase results and optionally prints a progress line
type ProgressTracker struct {
	stats    PhaseStats
	start    time.Time
	ticker   *time.Ticker
	done     chan bool
	results  chan ProcessImageResult
	finished chan struct{}
	mu       sync.Mutex
	display  bool
	out      io.Writer
	log      *logrus.Entry
}

// NewProgressTracker initializes the progress tracker
func NewProgressTracker(phase string, total int, display bool, log *logrus.Entry) *ProgressTracker {
	tracker := &ProgressTracker{
		stats:    PhaseStats{Phase: phase, Total: total},
		start:    time.Now(),
		ticker:   time.NewTicker(500 * time.Millisecond),
		done:     make(chan bool),
		results:  make(chan ProcessImageResult, 100),
		finished: make(chan struct{}),
		display:  display,
		out:      os.Stderr,
		log:      log,
	}

	go tracker.displayProgress()
	go tracker.processResults()

	return tracker
}

// Record queues the result of one image. It must not be called after Stop.
func (p *ProgressTracker) Record(result ProcessImageResult) {
	p.results <- result
}

func (p *ProgressTracker) displayProgress() {
	for {
		select {
		case <-p.done:
			return
		case <-p.ticker.C:
			if p.display {
				p.printLine()
			}
		}
	}
}

func (p *ProgressTracker) printLine() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stats.Failed > 0 {
		fmt.Fprintf(p.out, "\r%s: %d/%d (cached: %d, errors: %d)",
			p.stats.Phase, p.stats.Processed, p.stats.Total, p.stats.Cached, p.stats.Failed)
	} else {
		fmt.Fprintf(p.out, "\r%s: %d/%d (cached: %d)",
			p.stats.Phase, p.stats.Processed, p.stats.Total, p.stats.Cached)
	}
}

func (p *ProgressTracker) processResults() {
	defer close(p.finished)
	for result := range p.results {
		p.mu.Lock()
		p.stats.Processed++
		switch {
		case result.Error != nil:
			p.stats.Failed++
			p.stats.FailedImages = append(p.stats.FailedImages, types.ImageRef(result.Path))
		case result.Cached:
			p.stats.Cached++
		default:
			p.stats.Computed++
		}
		p.mu.Unlock()

		logging.LogImageProcessed(p.log, result.Path, result.Error)
	}
}

// Stop drains pending results, ends the display and returns the final counts
func (p *ProgressTracker) Stop() PhaseStats {
	close(p.results)
	<-p.finished
	p.ticker.Stop()
	close(p.done)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.Elapsed = time.Since(p.start)
	if p.display {
		fmt.Fprintf(p.out, "\r%s: %d/%d (cached: %d, errors: %d) in %v\n",
			p.stats.Phase, p.stats.Processed, p.stats.Total, p.stats.Cached, p.stats.Failed,
			p.stats.Elapsed.Round(time.Millisecond))
	}
	return p.stats
}
