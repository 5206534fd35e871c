package pipeline

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// ProgressCallback receives page-level progress events while a document
// is processed.
type ProgressCallback interface {
	// OnStart is called once with the total number of pages.
	OnStart(total int)

	// OnProgress is called after each page finishes.
	OnProgress(current, total int)

	// OnComplete is called when the whole document is done.
	OnComplete()

	// OnError is called when a page fails.
	OnError(page int, err error)
}

// NoOpProgressCallback implements ProgressCallback but does nothing.
type NoOpProgressCallback struct{}

func (NoOpProgressCallback) OnStart(total int)             {}
func (NoOpProgressCallback) OnProgress(current, total int) {}
func (NoOpProgressCallback) OnComplete()                   {}
func (NoOpProgressCallback) OnError(page int, err error)   {}

// ConsoleProgressCallback prints page progress to a writer.
type ConsoleProgressCallback struct {
	writer io.Writer
	prefix string
	mutex  sync.Mutex
}

// NewConsoleProgressCallback creates a console progress reporter. A nil
// writer defaults to stderr.
func NewConsoleProgressCallback(writer io.Writer, prefix string) *ConsoleProgressCallback {
	if writer == nil {
		writer = os.Stderr
	}
	return &ConsoleProgressCallback{writer: writer, prefix: prefix}
}

func (c *ConsoleProgressCallback) OnStart(total int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	fmt.Fprintf(c.writer, "%s: processing %d page(s)\n", c.prefix, total)
}

func (c *ConsoleProgressCallback) OnProgress(current, total int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	fmt.Fprintf(c.writer, "%s: %d/%d pages\n", c.prefix, current, total)
}

func (c *ConsoleProgressCallback) OnComplete() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	fmt.Fprintf(c.writer, "%s: done\n", c.prefix)
}

func (c *ConsoleProgressCallback) OnError(page int, err error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	fmt.Fprintf(c.writer, "%s: page %d failed: %v\n", c.prefix, page, err)
}
