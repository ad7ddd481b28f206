// Package spinner reports pipeline stage progress on a terminal.
package spinner

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/term"
)

// Reporter receives progress from long-running stages.
type Reporter interface {
	// Step announces the stage now running.
	Step(message string)
	// Done ends progress output.
	Done()
}

// Nop discards progress.
type Nop struct{}

func (Nop) Step(string) {}
func (Nop) Done()       {}

// ForWriter returns a Spinner writing to w when w is a terminal, and Nop otherwise
// so redirected output stays free of control characters.
func ForWriter(ctx context.Context, w io.Writer) Reporter {
	if f, ok := w.(*os.File); ok && isTerminal(f) {
		return New(ctx, w, "")
	}
	return Nop{}
}

// Spinner is a spinning progress indicator showing the current stage and how long
// it has been running.
type Spinner struct {
	frames  []string
	delay   time.Duration
	writer  io.Writer
	active  bool
	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
	message string
	since   time.Time
	wg      sync.WaitGroup
}

// New creates a spinner. Cancelling ctx stops the animation goroutine.
func New(ctx context.Context, writer io.Writer, message string) *Spinner {
	spinnerCtx, cancel := context.WithCancel(ctx)
	return &Spinner{
		frames:  []string{"◜", "◠", "◝", "◞", "◡", "◟"},
		delay:   100 * time.Millisecond,
		writer:  writer,
		message: message,
		since:   time.Now(),
		ctx:     spinnerCtx,
		cancel:  cancel,
	}
}

// Step shows message and starts the animation if it is not running.
func (s *Spinner) Step(message string) {
	s.UpdateMessage(message)
	s.Start()
}

// Done stops the animation.
func (s *Spinner) Done() { s.Stop() }

// Start begins the spinner animation.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active || s.ctx.Err() != nil {
		return
	}

	s.active = true

	s.wg.Add(1)
	go s.run()
}

// Stop stops the spinner animation and clears the line. A stopped spinner cannot
// be restarted.
func (s *Spinner) Stop() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return // not running
	}

	s.active = false
	s.cancel()
	s.mu.Unlock()

	// wait for spinner goroutine to finish
	s.wg.Wait()

	// only clear if we're writing to a terminal (not redirected)
	if f, ok := s.writer.(*os.File); ok && isTerminal(f) {
		fmt.Fprint(s.writer, "\r\033[2K")
	} else {
		fmt.Fprint(s.writer, "\r")
	}
}

// IsActive returns whether the spinner is currently running
func (s *Spinner) IsActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// UpdateMessage replaces the message and restarts the elapsed timer.
func (s *Spinner) UpdateMessage(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.message = message
	s.since = time.Now()
}

func (s *Spinner) run() {
	defer s.wg.Done()

	frameIndex := 0
	ticker := time.NewTicker(s.delay)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.mu.RLock()
			frame := s.frames[frameIndex%len(s.frames)]
			message := s.message
			elapsed := time.Since(s.since).Truncate(time.Second)
			s.mu.RUnlock()

			// clear to end of line so a shorter message leaves no residue
			fmt.Fprintf(s.writer, "\r%s %s (%s)\033[K", frame, message, elapsed)
			frameIndex++
		}
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
