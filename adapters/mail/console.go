package mail

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/lborres/opgate"
)

// ConsoleNotifier prints reset links instead of mailing them. It writes to
// its own stream so links never enter the structured logs; use it only in
// development.
type ConsoleNotifier struct {
	mu sync.Mutex
	w  io.Writer
}

var _ opgate.ResetNotifier = (*ConsoleNotifier)(nil)

// NewConsoleNotifier writes to w, or stderr when w is nil.
func NewConsoleNotifier(w io.Writer) *ConsoleNotifier {
	if w == nil {
		w = os.Stderr
	}
	return &ConsoleNotifier{w: w}
}

func (c *ConsoleNotifier) SendPasswordReset(_ context.Context, n opgate.ResetNotification) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := fmt.Fprintf(c.w, "password reset for %s (expires %s):\n  %s\n",
		n.Email, n.ExpiresAt.UTC().Format(time.RFC3339), n.Link)
	return err
}
