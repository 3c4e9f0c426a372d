package filter

import (
	"context"
	"slices"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/metagate/pkg/errors"
)

// Point is a named extension point whose filters receive a T.
type Point[T any] struct {
	name string
}

// NewPoint declares a point named name.
func NewPoint[T any](name string) Point[T] { return Point[T]{name: name} }

// Name returns the point name.
func (p Point[T]) Name() string { return p.name }

// Func is a response filter. data is shared by all filters of one
// invocation; change it only inside [Call.Mutate].
type Func[T any] func(ctx context.Context, data T, c *Call) error

// Values carries request-scoped information to filters.
type Values map[string]any

type registration struct {
	plugin string
	fn     any // Func[T] of the point
}

// Builder collects registrations at startup.
type Builder struct {
	logger *log.Logger
	points map[string]bool
	order  map[string][]string
	regs   map[string][]registration
}

// NewBuilder creates a builder for the closed set of points.
func NewBuilder(points ...string) *Builder {
	b := &Builder{
		points: make(map[string]bool, len(points)),
		order:  make(map[string][]string),
		regs:   make(map[string][]registration),
	}
	for _, p := range points {
		b.points[p] = true
	}
	return b
}

// WithLogger sets the logger that receives filter failures.
func (b *Builder) WithLogger(l *log.Logger) *Builder {
	b.logger = l
	return b
}

// Order declares the order of plugins on point. Existing registrations are
// re-sorted.
func (b *Builder) Order(point string, plugins ...string) error {
	if !b.points[point] {
		return errors.New(errors.ErrCodeInvalidInput, "unknown extension point %q", point)
	}
	b.order[point] = slices.Clone(plugins)
	regs := b.regs[point]
	slices.SortStableFunc(regs, func(x, y registration) int {
		return b.position(point, x.plugin) - b.position(point, y.plugin)
	})
	return nil
}

// position returns the declared index of plugin, or a value past every
// declared index.
func (b *Builder) position(point, plugin string) int {
	order := b.order[point]
	if i := slices.Index(order, plugin); i >= 0 {
		return i
	}
	return len(order)
}

// Register adds fn as plugin's filter on point. The registration is placed
// before the first registration with a later declared position.
//
// Declared order is dispatch order: the first plugin of an [Builder.Order]
// list runs first and can be awaited by every plugin listed after it.
// Plugins missing from the list follow in registration order.
func Register[T any](b *Builder, point Point[T], plugin string, fn Func[T]) error {
	if !b.points[point.name] {
		return errors.New(errors.ErrCodeInvalidInput, "unknown extension point %q", point.name)
	}
	if fn == nil {
		return errors.New(errors.ErrCodeInvalidInput, "plugin %q: nil filter for %q", plugin, point.name)
	}
	regs := b.regs[point.name]
	for _, r := range regs {
		if r.plugin == plugin {
			return errors.New(errors.ErrCodeInvalidInput, "plugin %q already registered for %q", plugin, point.name)
		}
		if _, ok := r.fn.(Func[T]); !ok {
			return errors.New(errors.ErrCodeInvalidInput, "plugin %q: filter type does not match point %q", plugin, point.name)
		}
	}

	pos := b.position(point.name, plugin)
	at := len(regs)
	for i, r := range regs {
		if b.position(point.name, r.plugin) > pos {
			at = i
			break
		}
	}
	b.regs[point.name] = slices.Insert(regs, at, registration{plugin: plugin, fn: fn})
	return nil
}

// Build freezes the registrations.
func (b *Builder) Build() *Registry {
	r := &Registry{
		logger: b.logger,
		regs:   make(map[string][]registration, len(b.regs)),
	}
	if r.logger == nil {
		r.logger = log.Default()
	}
	for p := range b.points {
		r.points = append(r.points, p)
	}
	slices.Sort(r.points)
	for p, regs := range b.regs {
		r.regs[p] = slices.Clone(regs)
	}
	return r
}

// Registry is an immutable set of filters per point.
type Registry struct {
	logger *log.Logger
	points []string
	regs   map[string][]registration
}

// Points returns the declared point names, sorted.
func (r *Registry) Points() []string { return slices.Clone(r.points) }

// Plugins returns the plugin ids registered on point in dispatch order.
func (r *Registry) Plugins(point string) []string {
	regs := r.regs[point]
	out := make([]string, len(regs))
	for i, reg := range regs {
		out[i] = reg.plugin
	}
	return out
}

type invocation struct {
	mu    sync.Mutex // serializes Mutate
	index map[string]int
	done  []chan struct{}
	errs  []error
}

// Call is the per-filter view of one invocation.
type Call struct {
	Point  string
	Plugin string
	Values Values

	inv *invocation
	pos int
}

// Await waits for the filter of plugin to finish and returns its error.
// Only plugins dispatched before the caller can be awaited; a plugin that is
// not registered on the point returns immediately.
func (c *Call) Await(ctx context.Context, plugin string) error {
	i, ok := c.inv.index[plugin]
	if !ok {
		return nil
	}
	if i >= c.pos {
		return errors.New(errors.ErrCodeInvalidInput, "%s: %q cannot await %q dispatched after it", c.Point, c.Plugin, plugin)
	}
	select {
	case <-c.inv.done[i]:
		return c.inv.errs[i]
	case <-ctx.Done():
		return errors.Cancelled(ctx.Err())
	}
}

// Mutate runs fn while no other filter of this invocation mutates.
func (c *Call) Mutate(fn func()) {
	c.inv.mu.Lock()
	defer c.inv.mu.Unlock()
	fn()
}

// Run invokes every filter registered on point with data and waits for all
// of them. Failures are logged, never returned.
func Run[T any](ctx context.Context, r *Registry, point Point[T], data T, values Values) {
	regs := r.regs[point.name]
	if len(regs) == 0 {
		return
	}
	inv := &invocation{
		index: make(map[string]int, len(regs)),
		done:  make([]chan struct{}, len(regs)),
		errs:  make([]error, len(regs)),
	}
	for i, reg := range regs {
		inv.index[reg.plugin] = i
		inv.done[i] = make(chan struct{})
	}

	var wg sync.WaitGroup
	for i, reg := range regs {
		c := &Call{Point: point.name, Plugin: reg.plugin, Values: values, inv: inv, pos: i}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer close(inv.done[i])
			inv.errs[i] = r.invoke(ctx, reg, data, c)
		}()
	}
	wg.Wait()
}

func (r *Registry) invoke(ctx context.Context, reg registration, data any, c *Call) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.New(errors.ErrCodeInternal, "filter panicked: %v", p)
		}
		if err != nil {
			r.logger.Error("response filter failed", "point", c.Point, "plugin", c.Plugin, "err", err)
		}
	}()
	f, ok := reg.fn.(caller)
	if !ok {
		return errors.New(errors.ErrCodeInternal, "filter for %q has an unexpected type", c.Point)
	}
	return f.call(ctx, data, c)
}

// caller keeps invoke non-generic.
type caller interface {
	call(ctx context.Context, data any, c *Call) error
}

func (f Func[T]) call(ctx context.Context, data any, c *Call) error {
	v, _ := data.(T)
	return f(ctx, v, c)
}
