package nodes

import (
    "bufio"
    "context"
    "fmt"
    "io"
    "os"
    "path/filepath"
    "strings"

    "go.uber.org/zap"

    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/codec"
    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/config"
    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/node"
    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/port"
    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/registry"
)

// sinkState owns the destination file, if any.
type sinkState struct {
    f *os.File
    w *bufio.Writer
}

// fileSink writes each received value. Without a "file" setting values go
// to the logger instead.
type fileSink struct {
    input   string
    format  func(v any) string
    defFile string
    log     *zap.Logger
}

func (s fileSink) Setup(_ context.Context, cfg config.Configuration) (*sinkState, error) {
    path := cfg.String("file", s.defFile)
    if path == "" { return &sinkState{}, nil }
    if dir := filepath.Dir(path); dir != "." {
        if err := os.MkdirAll(dir, 0o755); err != nil { return nil, err }
    }
    flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
    if cfg.Bool("append", false) { flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND }
    f, err := os.OpenFile(path, flags, 0o644)
    if err != nil { return nil, fmt.Errorf("open sink file: %w", err) }
    return &sinkState{f: f, w: bufio.NewWriter(f)}, nil
}

func (s fileSink) Iterate(_ context.Context, st *sinkState, cy *node.Cycle) (node.Outputs, error) {
    line := s.format(cy.Inputs[s.input].Data)
    if st.w == nil {
        s.log.Info("sink received", zap.String("value", line))
        return nil, nil
    }
    if _, err := io.WriteString(st.w, line); err != nil { return nil, node.Fatal(err) }
    if err := st.w.Flush(); err != nil { return nil, node.Fatal(err) }
    return nil, nil
}

// Finalize flushes and closes the file. It tolerates a partial setup.
func (s fileSink) Finalize(_ context.Context, st *sinkState) error {
    if st == nil || st.f == nil { return nil }
    ferr := st.w.Flush()
    if err := st.f.Close(); err != nil { return err }
    return ferr
}

func sinkFactory(input, defFile string, format func(any) string) registry.Factory {
    return func(name string, cfg config.Configuration, p port.Provider, env registry.Env) (node.Instance, error) {
        log := env.Log
        if log == nil { log = zap.L() }
        desc := node.Descriptor{Name: name, Kind: node.Sink, Ports: []port.Port{port.In(input, codec.TypeAny)}}
        impl := fileSink{input: input, format: format, defFile: defFile, log: log.With(zap.String("node", name))}
        return node.New[sinkState](desc, impl, cfg, p, env.Options()...)
    }
}

func genericLine(v any) string {
    return fmt.Sprintf("#######\nExample Generic Sink Received -> %s\n#######\n", render(v))
}

// plainLine writes the value on its own line.
func plainLine(v any) string {
    s := render(v)
    if !strings.HasSuffix(s, "\n") { s += "\n" }
    return s
}
