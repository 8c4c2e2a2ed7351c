package service

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/ludo-technologies/irflow/domain"
)

// ProgressManagerImpl implements the ProgressManager interface
type ProgressManagerImpl struct {
	mu          sync.Mutex
	writer      io.Writer
	description string
	progressBar *progressbar.ProgressBar
	interactive bool
}

// NewProgressManager creates a progress manager drawing on stderr when it
// is a terminal
func NewProgressManager(description string) domain.ProgressManager {
	return NewProgressManagerWithWriter(description, os.Stderr)
}

// NewProgressManagerWithWriter creates a progress manager drawing on
// writer. Only terminals are interactive.
func NewProgressManagerWithWriter(description string, writer io.Writer) *ProgressManagerImpl {
	interactive := false
	if file, ok := writer.(*os.File); ok {
		interactive = term.IsTerminal(int(file.Fd()))
	}
	return &ProgressManagerImpl{
		writer:      writer,
		description: description,
		interactive: interactive,
	}
}

// Initialize creates the bar for maxValue units of work
func (pm *ProgressManagerImpl) Initialize(maxValue int) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if pm.interactive && pm.progressBar == nil {
		pm.progressBar = pm.createProgressBar(maxValue)
	}
}

// Increment advances the bar by one
func (pm *ProgressManagerImpl) Increment() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if pm.progressBar != nil {
		_ = pm.progressBar.Add(1)
	}
}

// Complete marks the progress as completed (finishes the progress bar)
func (pm *ProgressManagerImpl) Complete(success bool) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if pm.progressBar == nil {
		return
	}
	if success {
		_ = pm.progressBar.Finish()
	} else {
		_ = pm.progressBar.Exit()
	}
	pm.progressBar = nil
}

// IsInteractive returns true if progress bars should be shown
func (pm *ProgressManagerImpl) IsInteractive() bool {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	return pm.interactive
}

// Close cleans up any resources
func (pm *ProgressManagerImpl) Close() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if pm.progressBar != nil {
		_ = pm.progressBar.Close()
		pm.progressBar = nil
	}
}

// createProgressBar creates a new progress bar with consistent styling
func (pm *ProgressManagerImpl) createProgressBar(max int) *progressbar.ProgressBar {
	writer := pm.writer
	if writer == nil {
		writer = io.Discard
	}

	return progressbar.NewOptions(max,
		progressbar.OptionSetDescription(pm.description),
		progressbar.OptionSetWidth(50),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("scopes"),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionSetWriter(writer),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(writer)
		}),
	)
}

// noOpProgressManager is used when progress output is disabled
type noOpProgressManager struct{}

// NewNoOpProgressManager returns a progress manager that draws nothing
func NewNoOpProgressManager() domain.ProgressManager {
	return noOpProgressManager{}
}

func (noOpProgressManager) Initialize(int)      {}
func (noOpProgressManager) Increment()          {}
func (noOpProgressManager) Complete(bool)       {}
func (noOpProgressManager) IsInteractive() bool { return false }
func (noOpProgressManager) Close()              {}
