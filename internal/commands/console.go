package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

// Console reads commands line by line and prints replies.
type Console struct {
	router *Router
	in     io.Reader
	out    io.Writer
	logger *logrus.Logger

	mu sync.Mutex
}

// NewConsole creates a Console reading from in and writing to out.
func NewConsole(router *Router, in io.Reader, out io.Writer, logger *logrus.Logger) *Console {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Console{router: router, in: in, out: out, logger: logger}
}

// Send prints one reply. Safe for concurrent use.
func (c *Console) Send(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, text)
}

// Run prints the banner and routes lines until in is exhausted or ctx is done.
// Commands run one at a time in input order.
func (c *Console) Run(ctx context.Context) error {
	c.Send(Banner)

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil {
						return fmt.Errorf("read console: %w", err)
					}
				default:
				}
				return nil
			}
			cmd, ok := Parse(line)
			if !ok {
				continue
			}
			// Route renders failures through Send.
			if err := c.router.Route(ctx, cmd, c.Send); err != nil {
				c.logger.WithField("command", cmd.Name).Debug("console command failed")
			}
		}
	}
}
