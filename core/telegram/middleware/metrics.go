package middleware

import (
	"sync/atomic"

	tele "gopkg.in/telebot.v4"
)

const countersKey = "reply_counters"

// replyCounters survive the handler: queued sends increment them from sender workers.
type replyCounters struct {
	sent    atomic.Int32
	edited  atomic.Int32
	deleted atomic.Int32
	kb      atomic.Bool
}

// countingContext counts replies delivered through the wrapped tele.Context.
type countingContext struct {
	tele.Context
	n *replyCounters
}

func withMarkup(opts []interface{}) bool {
	for _, o := range opts {
		switch v := o.(type) {
		case *tele.SendOptions:
			if v != nil && v.ReplyMarkup != nil {
				return true
			}
		case *tele.ReplyMarkup:
			if v != nil {
				return true
			}
		}
	}
	return false
}

func (c countingContext) track(counter *atomic.Int32, opts []interface{}, err error) error {
	if err == nil {
		counter.Add(1)
		if withMarkup(opts) {
			c.n.kb.Store(true)
		}
	}
	return err
}

func (c countingContext) Send(what interface{}, opts ...interface{}) error {
	return c.track(&c.n.sent, opts, c.Context.Send(what, opts...))
}

func (c countingContext) Reply(what interface{}, opts ...interface{}) error {
	return c.track(&c.n.sent, opts, c.Context.Reply(what, opts...))
}

func (c countingContext) Edit(what interface{}, opts ...interface{}) error {
	return c.track(&c.n.edited, opts, c.Context.Edit(what, opts...))
}

func (c countingContext) Delete() error {
	return c.track(&c.n.deleted, nil, c.Context.Delete())
}

// MessageMetricsMiddleware counts the messages a handler sends, edits and deletes.
func MessageMetricsMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		n := &replyCounters{}
		c.Set(countersKey, n)
		return next(countingContext{Context: c, n: n})
	}
}

// GetCounters reports how many messages were sent or edited for the update and
// whether any of them carried a keyboard.
func GetCounters(c tele.Context) (int, bool) {
	n, _ := c.Get(countersKey).(*replyCounters)
	if n == nil {
		return 0, false
	}
	return int(n.sent.Load() + n.edited.Load()), n.kb.Load()
}

// DeletedCount reports how many messages were deleted for the update.
func DeletedCount(c tele.Context) int {
	n, _ := c.Get(countersKey).(*replyCounters)
	if n == nil {
		return 0
	}
	return int(n.deleted.Load())
}
