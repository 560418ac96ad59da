package config

import (
    "fmt"
    "strings"
)

// DataflowConfig lists node instances and the links between their ports.
// Example YAML:
// dataflow:
//   name: fizzbuzz
//   channel_capacity: 16
//   nodes:
//     - id: counter
//       kind: counter-source
//       config: {initial: 1, period: 500ms}
//     - id: fizz
//       kind: fizz
//   links:
//     - from: counter.out
//       to: fizz.Int
//     - from: fizz.Str
//       to: buzz.Str
//       transport: mem
//       codec: cbor
type DataflowConfig struct {
    Name            string       `mapstructure:"name"`
    ChannelCapacity int          `mapstructure:"channel_capacity"`
    Nodes           []NodeConfig `mapstructure:"nodes"`
    Links           []LinkConfig `mapstructure:"links"`
}

// NodeConfig declares one node instance.
type NodeConfig struct {
    ID     string         `mapstructure:"id"`
    Kind   string         `mapstructure:"kind"`
    Config map[string]any `mapstructure:"config"`
}

// LinkConfig connects an output port to an input port. Transport is empty for
// a direct in-process channel, or "mem" to route the hop through an encoded
// stream using Codec (default cbor). Rate caps an encoded link in messages
// per second (0 = unpaced).
type LinkConfig struct {
    From      string `mapstructure:"from"`
    To        string `mapstructure:"to"`
    Capacity  int    `mapstructure:"capacity"`
    Transport string `mapstructure:"transport"`
    Codec     string `mapstructure:"codec"`
    Rate      int64  `mapstructure:"rate"`
}

// Endpoint is a parsed "node.port" reference.
type Endpoint struct {
    Node string
    Port string
}

func (e Endpoint) String() string { return e.Node + "." + e.Port }

// ParseEndpoint splits "node.port" on the first dot.
func ParseEndpoint(s string) (Endpoint, error) {
    s = strings.TrimSpace(s)
    i := strings.IndexByte(s, '.')
    if i <= 0 || i == len(s)-1 {
        return Endpoint{}, fmt.Errorf("invalid endpoint %q: want node.port", s)
    }
    return Endpoint{Node: s[:i], Port: s[i+1:]}, nil
}

func (d *DataflowConfig) normalize() error {
    if d.ChannelCapacity <= 0 {
        d.ChannelCapacity = 16
    }
    seen := make(map[string]struct{}, len(d.Nodes))
    for i := range d.Nodes {
        n := &d.Nodes[i]
        n.ID = strings.TrimSpace(n.ID)
        n.Kind = strings.ToLower(strings.TrimSpace(n.Kind))
        if n.ID == "" {
            return fmt.Errorf("dataflow.nodes[%d]: missing id", i)
        }
        if n.Kind == "" {
            return fmt.Errorf("dataflow.nodes[%d] (%s): missing kind", i, n.ID)
        }
        if _, dup := seen[n.ID]; dup {
            return fmt.Errorf("dataflow.nodes[%d]: duplicate id %q", i, n.ID)
        }
        seen[n.ID] = struct{}{}
    }
    for i := range d.Links {
        l := &d.Links[i]
        if _, err := ParseEndpoint(l.From); err != nil {
            return fmt.Errorf("dataflow.links[%d].from: %w", i, err)
        }
        if _, err := ParseEndpoint(l.To); err != nil {
            return fmt.Errorf("dataflow.links[%d].to: %w", i, err)
        }
        l.Transport = strings.ToLower(strings.TrimSpace(l.Transport))
        if l.Capacity <= 0 {
            l.Capacity = d.ChannelCapacity
        }
        if l.Rate < 0 {
            return fmt.Errorf("dataflow.links[%d]: negative rate", i)
        }
        if l.Transport != "" && l.Codec == "" {
            l.Codec = "cbor"
        }
    }
    return nil
}
