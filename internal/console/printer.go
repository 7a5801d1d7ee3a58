package console

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dxtools/quotetap/internal/feed"
	"github.com/dxtools/quotetap/internal/model"
)

// Printer serializes console output. Listener callbacks arrive from one
// delivery goroutine per subscription; the shared lock keeps their lines
// from interleaving.
type Printer struct {
	mu  sync.Mutex
	out io.Writer
}

// NewPrinter creates a printer writing to out.
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// Printf writes a single formatted line under the output lock.
func (p *Printer) Printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format, args...)
}

// Quote prints a decoded quote attributed to a subscription tag and its
// listener identity.
func (p *Printer) Quote(tag int, listenerID int, q model.Quote) {
	p.Printf("Sub[%d]: Listener[%d]: %s\n", tag, listenerID, FormatQuote(q))
}

// LastError prints a feed session's last-error state.
func (p *Printer) LastError(le feed.LastError) {
	if le.Code == feed.CodeSuccess {
		p.Printf("No error information is stored\n")
		return
	}
	p.Printf("Error occurred and successfully retrieved:\nerror code = %d (%s), description = %q\n",
		le.Code, le.Code, le.Description)
}

// FormatQuote renders a quote in the canonical console shape.
func FormatQuote(q model.Quote) string {
	return fmt.Sprintf(
		"Quote{symbol = %s, bidTime = %s, bidExchangeCode = %s, bidPrice = %g, bidSize = %g, "+
			"askTime = %s, askExchangeCode = %s, askPrice = %g, askSize = %g, scope = %s}",
		q.Symbol,
		FormatTimestampMillis(q.BidTime, time.Local),
		q.BidExchangeCode, q.BidPrice, q.BidSize,
		FormatTimestampMillis(q.AskTime, time.Local),
		q.AskExchangeCode, q.AskPrice, q.AskSize,
		q.Scope,
	)
}

// FormatTimestampMillis renders a millisecond epoch timestamp as
// "2006-01-02 15:04:05.000" in the given location.
func FormatTimestampMillis(ms int64, loc *time.Location) string {
	t := time.UnixMilli(ms).In(loc)
	return fmt.Sprintf("%s.%03d", t.Format("2006-01-02 15:04:05"), ms%1000)
}
