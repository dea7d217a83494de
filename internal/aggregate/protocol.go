package aggregate

import (
	"context"
	"reflect"

	"github.com/vk/hookwire/internal/capture"
	"github.com/vk/hookwire/internal/ctxlog"
	"github.com/vk/hookwire/internal/fault"
	"github.com/vk/hookwire/internal/introspect"
	"github.com/vk/hookwire/internal/metrics"
)

// Protocol opens aggregations over a shared table registry.
type Protocol struct {
	tables  *Tables
	metrics *metrics.Collector
}

// Option configures a Protocol.
type Option func(*Protocol)

// WithMetrics records finished aggregations on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(p *Protocol) { p.metrics = c }
}

// NewProtocol returns a protocol using tables, or a private registry when
// tables is nil.
func NewProtocol(tables *Tables, opts ...Option) *Protocol {
	if tables == nil {
		tables = NewTables()
	}
	p := &Protocol{tables: tables}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Tables returns the table registry.
func (p *Protocol) Tables() *Tables { return p.tables }

// Aggregation feeds one builder from one open session. It is not safe for
// concurrent use.
type Aggregation struct {
	ctx     context.Context
	sess    *capture.Session
	table   *Table
	recv    reflect.Value
	metrics *metrics.Collector

	delivered int
	dropped   int
}

// Open starts an aggregation of sess into builder.
func (p *Protocol) Open(ctx context.Context, sess *capture.Session, builder any) (*Aggregation, error) {
	const op = "aggregate.Open"
	if err := sess.CheckOpen(op); err != nil {
		return nil, err
	}
	tbl, err := p.tables.For(reflect.TypeOf(builder))
	if err != nil {
		return nil, err
	}
	recv := reflect.ValueOf(builder)
	if recv.IsNil() {
		return nil, fault.Declaration(op, "group builder %s is nil", introspect.ShortName(tbl.builder))
	}
	return &Aggregation{ctx: ctx, sess: sess, table: tbl, recv: recv, metrics: p.metrics}, nil
}

// Session returns the aggregated session.
func (a *Aggregation) Session() *capture.Session { return a.sess }

// Deliver routes c to its handler. A capture no handler accepts is dropped
// by lenient sessions and rejected by strict ones. A handler error fails the
// session.
func (a *Aggregation) Deliver(c capture.Capture) error {
	const op = "aggregate.Deliver"
	if err := a.sess.CheckOpen(op); err != nil {
		return err
	}
	if c.Session() != a.sess {
		return fault.IllegalState(op, "%s belongs to session %q, not %q", c, c.Session().Name(), a.sess.Name())
	}

	h, ok := a.table.lookup(reflect.TypeOf(c))
	if !ok {
		if a.sess.Policy() == capture.Strict {
			err := fault.Unsupported(op, c.String(), "%s has no handler for this capture", introspect.ShortName(a.table.builder))
			a.sess.Fail(err)
			return err
		}
		a.dropped++
		ctxlog.FromContext(a.ctx).Debug("Dropped unhandled capture.", "session", a.sess.Name(), "capture", c.String())
		return nil
	}

	out := a.recv.Method(h.fn).Call([]reflect.Value{reflect.ValueOf(c)})
	a.delivered++
	if h.returnsErr && !out[0].IsNil() {
		err := out[0].Interface().(error)
		a.sess.Fail(err)
		return err
	}
	return nil
}

// Build calls the builder's Build once. On error the session fails and no
// result is returned. A second call is an illegal-state error.
func (a *Aggregation) Build() (any, error) {
	logger := ctxlog.FromContext(a.ctx)
	if err := a.sess.BeginBuild(); err != nil {
		return nil, err
	}

	out := a.recv.Method(a.table.build).Call(nil)
	if !out[1].IsNil() {
		err := out[1].Interface().(error)
		a.sess.Fail(err)
		a.metrics.Aggregation(metrics.ResultError)
		logger.Debug("Aggregation failed.", "session", a.sess.Name(), "error", err)
		return nil, err
	}
	if err := a.sess.Seal(); err != nil {
		return nil, err
	}
	a.metrics.Aggregation(metrics.ResultOK)
	logger.Debug("Aggregation built.",
		"session", a.sess.Name(),
		"builder", introspect.ShortName(a.table.builder),
		"delivered", a.delivered,
		"dropped", a.dropped,
	)
	return out[0].Interface(), nil
}

// Run opens an aggregation, delivers caps in order and builds the result.
func Run[G any](ctx context.Context, p *Protocol, sess *capture.Session, builder any, caps []capture.Capture) (G, error) {
	var zero G
	agg, err := p.Open(ctx, sess, builder)
	if err != nil {
		return zero, err
	}
	if want := reflect.TypeFor[G](); !agg.table.result.AssignableTo(want) {
		return zero, fault.Declaration("aggregate.Run", "%s builds %v, not %v",
			introspect.ShortName(agg.table.builder), agg.table.result, want)
	}
	for _, c := range caps {
		if err := agg.Deliver(c); err != nil {
			return zero, err
		}
	}
	res, err := agg.Build()
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	return res.(G), nil
}
