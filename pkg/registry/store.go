package registry

import (
    "encoding/json"
    "errors"
    "fmt"
    "sort"
    "strings"
    "sync"
    "time"

    "go.uber.org/zap"

    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/config"
    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/memkv"
    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/node"
    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/port"
)

var (
    ErrUnknownKind   = errors.New("registry: unknown node kind")
    ErrDuplicateKind = errors.New("registry: kind already registered")
)

// Env is what a factory may share with the node it builds.
type Env struct {
    Store   *memkv.Store
    Log     *zap.Logger
    Metrics *node.Metrics
}

// Options turns the environment into lifecycle options.
func (e Env) Options(extra ...node.Option) []node.Option {
    var opts []node.Option
    if e.Log != nil { opts = append(opts, node.WithLogger(e.Log)) }
    if e.Metrics != nil { opts = append(opts, node.WithMetrics(e.Metrics)) }
    return append(opts, extra...)
}

// Factory builds a node instance named name. Ports are bound through p when
// the instance starts, so p may still be filled in after the call.
type Factory func(name string, cfg config.Configuration, p port.Provider, env Env) (node.Instance, error)

// KindInfo describes a registered kind.
type KindInfo struct {
    Name    string
    Summary string
}

type kindEntry struct {
    info KindInfo
    f    Factory
}

// Store keeps the node kinds known to the host and a record of every
// instance it created. Instance records live in memkv so other components
// (and a future persistent KV) can list them without holding references.
type Store struct {
    kv *memkv.Store

    mu    sync.RWMutex
    kinds map[string]kindEntry
    // live instances, for Refresh; records themselves live in kv
    instances map[string]node.Instance
    retain    time.Duration
}

// NewStore keeps instance records in kv. A nil kv gets a private store.
func NewStore(kv *memkv.Store) *Store {
    if kv == nil { kv = memkv.New(memkv.Options{SweepInterval: -1}) }
    return &Store{kv: kv, kinds: make(map[string]kindEntry), instances: make(map[string]node.Instance)}
}

// RetainTerminated keeps the record of a terminated instance for d after
// Refresh first sees it terminated; the store's janitor then drops it. Zero
// keeps records forever.
func (s *Store) RetainTerminated(d time.Duration) {
    s.mu.Lock(); s.retain = d; s.mu.Unlock()
}

func normKind(k string) string { return strings.ToLower(strings.TrimSpace(k)) }

// Register adds a kind.
func (s *Store) Register(kind, summary string, f Factory) error {
    k := normKind(kind)
    if k == "" || f == nil { return fmt.Errorf("registry: invalid registration %q", kind) }
    s.mu.Lock(); defer s.mu.Unlock()
    if _, dup := s.kinds[k]; dup { return fmt.Errorf("%w: %s", ErrDuplicateKind, k) }
    s.kinds[k] = kindEntry{info: KindInfo{Name: k, Summary: summary}, f: f}
    return nil
}

// MustRegister is Register for init-time tables.
func (s *Store) MustRegister(kind, summary string, f Factory) {
    if err := s.Register(kind, summary, f); err != nil { panic(err) }
}

// Kinds lists registered kinds by name.
func (s *Store) Kinds() []KindInfo {
    s.mu.RLock(); defer s.mu.RUnlock()
    out := make([]KindInfo, 0, len(s.kinds))
    for _, e := range s.kinds { out = append(out, e.info) }
    sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
    return out
}

// Create builds an instance of kind and records it.
func (s *Store) Create(kind, name string, cfg config.Configuration, p port.Provider, env Env) (node.Instance, error) {
    s.mu.RLock(); e, ok := s.kinds[normKind(kind)]; s.mu.RUnlock()
    if !ok { return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind) }
    inst, err := e.f(name, cfg, p, env)
    if err != nil { return nil, fmt.Errorf("create %s (%s): %w", name, e.info.Name, err) }
    s.mu.Lock(); s.instances[name] = inst; s.mu.Unlock()
    s.Record(e.info.Name, inst)
    zap.L().Debug("node created", zap.String("node", name), zap.String("kind", e.info.Name), zap.String("node_id", inst.ID()))
    return inst, nil
}

// InstanceDoc is the stored record of one instance.
type InstanceDoc struct {
    Name          string `json:"name"`
    ID            string `json:"id"`
    Kind          string `json:"kind"`
    Role          string `json:"role"`
    Phase         string `json:"phase"`
    Error         string `json:"error,omitempty"`
    UpdatedUnixMs int64  `json:"updated_unix_ms"`

    // ExpiresIn is the time left before the record is dropped; zero for
    // records kept forever. Filled on read.
    ExpiresIn time.Duration `json:"-"`
}

func keyInstance(name string) string { return "reg:node:" + name }

// Record writes the current phase of inst.
func (s *Store) Record(kind string, inst node.Instance) {
    doc := InstanceDoc{
        Name:          inst.Name(),
        ID:            inst.ID(),
        Kind:          kind,
        Role:          inst.Kind().String(),
        Phase:         inst.Phase().String(),
        UpdatedUnixMs: time.Now().UnixMilli(),
    }
    if err := inst.Err(); err != nil { doc.Error = err.Error() }
    b, _ := json.Marshal(doc)
    if err := s.kv.Set(keyInstance(inst.Name()), b, 0); err != nil {
        zap.L().Warn("instance record dropped", zap.String("node", inst.Name()), zap.Error(err))
    }
}

// Refresh re-records every live instance, picking up phase changes.
// Terminated instances leave the live set; their last record starts its
// retention period.
func (s *Store) Refresh() {
    s.mu.Lock()
    insts := make([]node.Instance, 0, len(s.instances))
    for _, i := range s.instances { insts = append(insts, i) }
    retain := s.retain
    s.mu.Unlock()
    for _, inst := range insts {
        // read the phase first so an expiring record is never stale
        terminated := inst.Phase() == node.Terminated
        kind := ""
        if d, ok := s.Get(inst.Name()); ok { kind = d.Kind }
        s.Record(kind, inst)
        if !terminated { continue }
        s.mu.Lock()
        if s.instances[inst.Name()] == inst { delete(s.instances, inst.Name()) }
        s.mu.Unlock()
        if retain > 0 { s.kv.Expire(keyInstance(inst.Name()), retain) }
    }
}

// Get returns the stored record of an instance.
func (s *Store) Get(name string) (InstanceDoc, bool) {
    b, ok := s.kv.Get(keyInstance(name))
    if !ok { return InstanceDoc{}, false }
    var doc InstanceDoc
    if err := json.Unmarshal(b, &doc); err != nil { return InstanceDoc{}, false }
    doc.ExpiresIn, _ = s.kv.TTL(keyInstance(name))
    return doc, true
}

// Instances lists stored records by name.
func (s *Store) Instances() []InstanceDoc {
    keys := s.kv.Keys("reg:node:")
    out := make([]InstanceDoc, 0, len(keys))
    for _, k := range keys {
        if d, ok := s.Get(strings.TrimPrefix(k, "reg:node:")); ok { out = append(out, d) }
    }
    return out
}
