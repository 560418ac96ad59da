package memkv

import (
    "encoding/binary"
    "errors"
    "hash/fnv"
    "sort"
    "strings"
    "sync"
    "sync/atomic"
    "time"
)

var (
    // ErrFull is returned when a write would exceed Options.MaxBytes.
    ErrFull = errors.New("memkv: size limit reached")
    // ErrNotCounter is returned by Incr when the stored value is not an 8-byte counter.
    ErrNotCounter = errors.New("memkv: value is not a counter")
)

type Options struct {
    Shards        int           // number of shards (default 64)
    MaxBytes      uint64        // cap on total value bytes (0 = unlimited)
    SweepInterval time.Duration // janitor period (default 1s, <0 disables)
}

func (o Options) withDefaults() Options {
    if o.Shards <= 0 { o.Shards = 64 }
    if o.SweepInterval == 0 { o.SweepInterval = time.Second }
    return o
}

type Store struct {
    opts   Options
    shards []shard
    bytes  atomic.Uint64
    stats  counters
    nowFn  func() time.Time

    closeOnce sync.Once
    closeCh   chan struct{}
    wg        sync.WaitGroup
}

type shard struct {
    mu sync.RWMutex
    m  map[string]entry
}

type entry struct {
    val      []byte
    expireAt int64 // unix nano; 0 = never
}

func (e entry) expired(now int64) bool { return e.expireAt != 0 && e.expireAt <= now }

type counters struct {
    sets, gets, hits, misses, dels, expired atomic.Uint64
}

func New(opts Options) *Store {
    opts = opts.withDefaults()
    s := &Store{
        opts:    opts,
        shards:  make([]shard, opts.Shards),
        nowFn:   time.Now,
        closeCh: make(chan struct{}),
    }
    for i := range s.shards { s.shards[i].m = make(map[string]entry) }
    if opts.SweepInterval > 0 {
        s.wg.Add(1)
        go s.janitor(opts.SweepInterval)
    }
    return s
}

// Close stops the janitor. The store stays readable.
func (s *Store) Close() {
    s.closeOnce.Do(func() { close(s.closeCh) })
    s.wg.Wait()
}

func (s *Store) shardFor(key string) *shard {
    h := fnv.New64a()
    _, _ = h.Write([]byte(key))
    return &s.shards[h.Sum64()%uint64(len(s.shards))]
}

func (s *Store) expiry(ttl time.Duration) int64 {
    if ttl <= 0 { return 0 }
    return s.nowFn().Add(ttl).UnixNano()
}

// reserve accounts for a size change of delta bytes; growth fails past MaxBytes.
func (s *Store) reserve(delta int) bool {
    if delta <= 0 {
        s.bytes.Add(^uint64(-delta - 1))
        return true
    }
    for {
        cur := s.bytes.Load()
        next := cur + uint64(delta)
        if s.opts.MaxBytes > 0 && next > s.opts.MaxBytes { return false }
        if s.bytes.CompareAndSwap(cur, next) { return true }
    }
}

// Set stores a copy of val under key. A ttl <= 0 never expires.
func (s *Store) Set(key string, val []byte, ttl time.Duration) error {
    v := append([]byte(nil), val...)
    sh := s.shardFor(key)
    sh.mu.Lock()
    defer sh.mu.Unlock()
    old := sh.m[key]
    if !s.reserve(len(v) - len(old.val)) { return ErrFull }
    sh.m[key] = entry{val: v, expireAt: s.expiry(ttl)}
    s.stats.sets.Add(1)
    return nil
}

// Get returns a copy of the value stored under key.
func (s *Store) Get(key string) ([]byte, bool) {
    sh := s.shardFor(key)
    sh.mu.RLock()
    e, ok := sh.m[key]
    sh.mu.RUnlock()
    s.stats.gets.Add(1)
    if !ok || e.expired(s.nowFn().UnixNano()) {
        if ok { s.evict(sh, key) }
        s.stats.misses.Add(1)
        return nil, false
    }
    s.stats.hits.Add(1)
    return append([]byte(nil), e.val...), true
}

// evict drops key if it is still expired once the write lock is held.
func (s *Store) evict(sh *shard, key string) {
    sh.mu.Lock()
    defer sh.mu.Unlock()
    if e, ok := sh.m[key]; ok && e.expired(s.nowFn().UnixNano()) {
        delete(sh.m, key)
        s.reserve(-len(e.val))
        s.stats.expired.Add(1)
    }
}

func (s *Store) Delete(key string) bool {
    sh := s.shardFor(key)
    sh.mu.Lock()
    defer sh.mu.Unlock()
    e, ok := sh.m[key]
    if !ok { return false }
    delete(sh.m, key)
    s.reserve(-len(e.val))
    s.stats.dels.Add(1)
    return true
}

// Update applies fn to the current value (nil when absent) under the shard
// lock and stores its result. Returning nil deletes the key. The TTL of an
// existing key is kept.
func (s *Store) Update(key string, fn func(old []byte) ([]byte, error)) error {
    sh := s.shardFor(key)
    sh.mu.Lock()
    defer sh.mu.Unlock()
    e, ok := sh.m[key]
    if ok && e.expired(s.nowFn().UnixNano()) {
        delete(sh.m, key)
        s.reserve(-len(e.val))
        s.stats.expired.Add(1)
        e, ok = entry{}, false
    }
    next, err := fn(e.val)
    if err != nil { return err }
    if next == nil {
        if ok {
            delete(sh.m, key)
            s.reserve(-len(e.val))
            s.stats.dels.Add(1)
        }
        return nil
    }
    next = append([]byte(nil), next...)
    if !s.reserve(len(next) - len(e.val)) { return ErrFull }
    sh.m[key] = entry{val: next, expireAt: e.expireAt}
    s.stats.sets.Add(1)
    return nil
}

// Incr adds delta to the counter stored under key, creating it at zero, and
// returns the new value. Counters are stored as 8-byte big-endian integers.
func (s *Store) Incr(key string, delta int64) (int64, error) {
    var n int64
    err := s.Update(key, func(old []byte) ([]byte, error) {
        if old != nil {
            if len(old) != 8 { return nil, ErrNotCounter }
            n = int64(binary.BigEndian.Uint64(old))
        }
        n += delta
        return binary.BigEndian.AppendUint64(nil, uint64(n)), nil
    })
    return n, err
}

// Counter reads a counter written by Incr or SetCounter.
func (s *Store) Counter(key string) (int64, bool, error) {
    v, ok := s.Get(key)
    if !ok { return 0, false, nil }
    if len(v) != 8 { return 0, true, ErrNotCounter }
    return int64(binary.BigEndian.Uint64(v)), true, nil
}

func (s *Store) SetCounter(key string, n int64) error {
    return s.Set(key, binary.BigEndian.AppendUint64(nil, uint64(n)), 0)
}

// Expire sets a new TTL on an existing key. ttl <= 0 deletes it.
func (s *Store) Expire(key string, ttl time.Duration) bool {
    if ttl <= 0 { return s.Delete(key) }
    sh := s.shardFor(key)
    sh.mu.Lock()
    defer sh.mu.Unlock()
    e, ok := sh.m[key]
    if !ok || e.expired(s.nowFn().UnixNano()) { return false }
    e.expireAt = s.expiry(ttl)
    sh.m[key] = e
    return true
}

// TTL reports the remaining lifetime; zero with ok=true means no expiry.
func (s *Store) TTL(key string) (time.Duration, bool) {
    sh := s.shardFor(key)
    sh.mu.RLock()
    e, ok := sh.m[key]
    sh.mu.RUnlock()
    if !ok { return 0, false }
    if e.expireAt == 0 { return 0, true }
    left := e.expireAt - s.nowFn().UnixNano()
    if left <= 0 { return 0, false }
    return time.Duration(left), true
}

// Keys lists live keys with the given prefix in lexical order.
func (s *Store) Keys(prefix string) []string {
    now := s.nowFn().UnixNano()
    var out []string
    for i := range s.shards {
        sh := &s.shards[i]
        sh.mu.RLock()
        for k, e := range sh.m {
            if strings.HasPrefix(k, prefix) && !e.expired(now) { out = append(out, k) }
        }
        sh.mu.RUnlock()
    }
    sort.Strings(out)
    return out
}

func (s *Store) janitor(every time.Duration) {
    defer s.wg.Done()
    t := time.NewTicker(every)
    defer t.Stop()
    for {
        select {
        case <-s.closeCh:
            return
        case <-t.C:
            s.sweep()
        }
    }
}

func (s *Store) sweep() {
    now := s.nowFn().UnixNano()
    for i := range s.shards {
        sh := &s.shards[i]
        sh.mu.Lock()
        for k, e := range sh.m {
            if e.expired(now) {
                delete(sh.m, k)
                s.reserve(-len(e.val))
                s.stats.expired.Add(1)
            }
        }
        sh.mu.Unlock()
    }
}

// Stats is a point-in-time snapshot of the store counters.
type Stats struct {
    Keys    int
    Bytes   uint64
    Sets    uint64
    Gets    uint64
    Hits    uint64
    Misses  uint64
    Dels    uint64
    Expired uint64
}

func (s *Store) Stats() Stats {
    st := Stats{
        Bytes:   s.bytes.Load(),
        Sets:    s.stats.sets.Load(),
        Gets:    s.stats.gets.Load(),
        Hits:    s.stats.hits.Load(),
        Misses:  s.stats.misses.Load(),
        Dels:    s.stats.dels.Load(),
        Expired: s.stats.expired.Load(),
    }
    for i := range s.shards {
        sh := &s.shards[i]
        sh.mu.RLock()
        st.Keys += len(sh.m)
        sh.mu.RUnlock()
    }
    return st
}
