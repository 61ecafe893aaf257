package structure

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/meenmo/fxstruct/logger"
	"github.com/meenmo/fxstruct/product"
	"github.com/meenmo/fxstruct/resolver"
	"github.com/meenmo/fxstruct/schema"
)

// Listener is notified with "{package}@{version}" after each registration of its package.
type Listener interface {
	StructureChanged(version string)
}

// ListenerFunc adapts a function. Func values are not comparable, so a ListenerFunc
// is subscribed anew on every AddListener; remove it by subscription id. Wrap the
// function in a *FuncListener to get de-duplication.
type ListenerFunc func(version string)

func (f ListenerFunc) StructureChanged(version string) { f(version) }

// FuncListener is a pointer-backed function listener. The same *FuncListener added
// twice keeps one subscription and can be removed with RemoveListener.
type FuncListener struct {
	Fn func(version string)
}

func (f *FuncListener) StructureChanged(version string) { f.Fn(version) }

type subscription struct {
	id       uuid.UUID
	listener Listener
}

// Registry holds package templates for the lifetime of the process.
type Registry struct {
	mu        sync.RWMutex
	defines   map[string]*Define
	listeners map[string][]subscription

	resolver *resolver.Resolver
	log      *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.log = l }
}

// WithResolver sets the resolver used for definition rows.
func WithResolver(res *resolver.Resolver) Option {
	return func(r *Registry) { r.resolver = res }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		defines:   make(map[string]*Define),
		listeners: make(map[string][]subscription),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.resolver == nil {
		r.resolver = resolver.New(nil)
	}
	r.log = logger.OrDefault(r.log)
	return r
}

// Register parses every row-set, then stores the templates. Each touched package gets
// exactly one version bump and one notification per call. Versions are returned in
// first-seen package order. A parse error leaves the registry unchanged.
func (r *Registry) Register(rowSets ...resolver.Batch) ([]string, error) {
	templates := make([]Template, 0, len(rowSets))
	for i, rows := range rowSets {
		res, err := r.resolver.Resolve(schema.StructureDefine, rows)
		if err != nil {
			return nil, fmt.Errorf("Register: row-set %d: %w", i, err)
		}
		if err := res.Err(); err != nil {
			return nil, fmt.Errorf("Register: row-set %d: %w", i, err)
		}
		t, err := buildTemplate(res.Args)
		if err != nil {
			return nil, fmt.Errorf("Register: row-set %d: %w", i, err)
		}
		templates = append(templates, t)
	}

	type notice struct {
		version   string
		listeners []Listener
	}
	var (
		order   []string
		notices []notice
	)
	r.mu.Lock()
	touched := make(map[string]*Define)
	for _, t := range templates {
		key := schema.NormalizeKey(t.PackageKey)
		d, ok := r.defines[key]
		if !ok {
			d = &Define{BySide: make(map[product.Side]Template)}
			r.defines[key] = d
		}
		d.PackageKey = t.PackageKey
		d.BySide[t.Side] = t
		if _, seen := touched[key]; !seen {
			touched[key] = d
			order = append(order, key)
		}
	}
	versions := make([]string, 0, len(order))
	for _, key := range order {
		d := touched[key]
		d.Version++
		v := versionString(d)
		versions = append(versions, v)
		notices = append(notices, notice{version: v, listeners: r.snapshotListeners(key)})
	}
	r.mu.Unlock()

	for _, n := range notices {
		r.log.Info("structure registered", "version", n.version, "listeners", len(n.listeners))
		for _, l := range n.listeners {
			l.StructureChanged(n.version)
		}
	}
	return versions, nil
}

func versionString(d *Define) string {
	return fmt.Sprintf("%s@%d", d.PackageKey, d.Version)
}

func (r *Registry) snapshotListeners(key string) []Listener {
	subs := r.listeners[key]
	out := make([]Listener, len(subs))
	for i, s := range subs {
		out[i] = s.listener
	}
	return out
}

// Template returns a copy of the template registered for (pkg, side).
func (r *Registry) Template(pkg string, side product.Side) (Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.defines[schema.NormalizeKey(pkg)]
	if !ok {
		return Template{}, &UnknownPackageError{PackageKey: pkg}
	}
	t, ok := d.BySide[side]
	if !ok {
		return Template{}, &UnknownSideError{PackageKey: d.PackageKey, Side: side}
	}
	return t.clone(), nil
}

// Version returns the current version of a package.
func (r *Registry) Version(pkg string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.defines[schema.NormalizeKey(pkg)]
	if !ok {
		return 0, false
	}
	return d.Version, true
}

// Packages lists registered package names in sorted order.
func (r *Registry) Packages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.defines))
	for _, d := range r.defines {
		out = append(out, d.PackageKey)
	}
	sort.Strings(out)
	return out
}

// Binding is the outcome of matching pricing arguments against a template.
type Binding struct {
	PackageKey string
	Side       product.Side
	Template   Template
	Missing    []string
	Invalid    []string
	Values     map[string]float64
}

var errNotNumeric = errors.New("not a number")

// Err reports absent names as a MissingFieldsError and non-numeric names as an
// InvalidFieldsError. When both occur the two are joined.
func (b Binding) Err() error {
	var errs []error
	if len(b.Missing) > 0 {
		errs = append(errs, &resolver.MissingFieldsError{SchemaID: b.PackageKey, Missing: append([]string(nil), b.Missing...)})
	}
	if len(b.Invalid) > 0 {
		fe := make(map[string]error, len(b.Invalid))
		for _, name := range b.Invalid {
			fe[name] = errNotNumeric
		}
		errs = append(errs, &resolver.InvalidFieldsError{SchemaID: b.PackageKey, FieldErrors: fe})
	}
	return errors.Join(errs...)
}

// Validate looks up the template named by the PackageName and BuySell arguments and
// binds every declared strike and argument name from the raw input. Absent names are
// reported in Missing; names present with a non-numeric value are reported in Invalid.
func (r *Registry) Validate(args resolver.CanonicalArgs) (Binding, error) {
	pkg, ok := args.Text("PackageName")
	if !ok || pkg == "" {
		return Binding{}, fmt.Errorf("Validate: %w", &resolver.MissingFieldsError{SchemaID: "structure", Missing: []string{"PackageName"}})
	}
	raw, _ := args.Get("BuySell")
	side, ok := raw.(product.Side)
	if !ok {
		return Binding{}, fmt.Errorf("Validate: %w", &resolver.MissingFieldsError{SchemaID: pkg, Missing: []string{"BuySell"}})
	}
	t, err := r.Template(pkg, side)
	if err != nil {
		return Binding{}, fmt.Errorf("Validate: %w", err)
	}

	b := Binding{PackageKey: t.PackageKey, Side: side, Template: t, Values: make(map[string]float64)}
	for _, name := range t.Names() {
		if raw, ok := args.Raw(name); !ok || raw == nil || raw == "" {
			b.Missing = append(b.Missing, name)
			continue
		}
		v, ok := args.RawFloat(name)
		if !ok {
			b.Invalid = append(b.Invalid, name)
			continue
		}
		b.Values[schema.NormalizeKey(name)] = v
	}
	return b, nil
}

// AddListener subscribes l to a package. When a template already exists, l is called
// immediately with the current version. Adding a comparable listener twice returns the
// original subscription id and does not call it again. Listeners of non-comparable
// types, such as ListenerFunc, are never de-duplicated: each call adds a subscription
// that fires separately. Use a pointer-backed type such as *FuncListener to de-duplicate
// a function listener.
func (r *Registry) AddListener(pkg string, l Listener) uuid.UUID {
	key := schema.NormalizeKey(pkg)

	r.mu.Lock()
	for _, s := range r.listeners[key] {
		if sameListener(s.listener, l) {
			r.mu.Unlock()
			return s.id
		}
	}
	id := uuid.New()
	r.listeners[key] = append(r.listeners[key], subscription{id: id, listener: l})
	var current string
	if d, ok := r.defines[key]; ok {
		current = versionString(d)
	}
	r.mu.Unlock()

	r.log.Debug("listener added", "package", pkg, "id", id.String())
	if current != "" {
		l.StructureChanged(current)
	}
	return id
}

// RemoveListener drops a comparable listener. It reports whether one was removed.
func (r *Registry) RemoveListener(pkg string, l Listener) bool {
	return r.remove(pkg, func(s subscription) bool { return sameListener(s.listener, l) })
}

// RemoveListenerID drops a subscription by id.
func (r *Registry) RemoveListenerID(pkg string, id uuid.UUID) bool {
	return r.remove(pkg, func(s subscription) bool { return s.id == id })
}

func (r *Registry) remove(pkg string, match func(subscription) bool) bool {
	key := schema.NormalizeKey(pkg)

	r.mu.Lock()
	defer r.mu.Unlock()

	subs := r.listeners[key]
	for i, s := range subs {
		if match(s) {
			r.listeners[key] = append(subs[:i:i], subs[i+1:]...)
			return true
		}
	}
	return false
}

func sameListener(a, b Listener) bool {
	if a == nil || b == nil {
		return false
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}
