package node

import (
    "fmt"
    "strings"

    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/channel"
)

// Policy is a Readiness Gate policy.
type Policy int

const (
    // AllReady is the default policy.
    AllReady Policy = iota
    AnyReady
)

func (p Policy) String() string {
    switch p {
    case AnyReady:
        return "any-ready"
    default:
        return "all-ready"
    }
}

// ParsePolicy accepts "all", "all-ready", "any", "any-ready" (case-insensitive).
func ParsePolicy(s string) (Policy, error) {
    switch strings.ToLower(strings.TrimSpace(s)) {
    case "", "all", "all-ready", "allready":
        return AllReady, nil
    case "any", "any-ready", "anyready":
        return AnyReady, nil
    default:
        return AllReady, fmt.Errorf("node: unknown gate policy %q", s)
    }
}

// Evaluate decides, from the current tokens only, whether the node fires and
// which tokens to consume. With no inputs AllReady always fires and AnyReady
// never does.
func (p Policy) Evaluate(tokens []channel.Token) (fire bool, consume []int) {
    switch p {
    case AnyReady:
        for i, t := range tokens {
            if t.IsReady() { return true, []int{i} }
        }
        return false, nil
    default:
        consume = make([]int, 0, len(tokens))
        for i, t := range tokens {
            if !t.IsReady() { return false, nil }
            consume = append(consume, i)
        }
        return true, consume
    }
}
