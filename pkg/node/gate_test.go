package node

import (
    "testing"

    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/channel"
)

func tokens(states ...bool) []channel.Token {
    out := make([]channel.Token, len(states))
    for i, ready := range states {
        if ready { out[i] = channel.ReadyToken(channel.NewMessage(i)) }
    }
    return out
}

func TestAllReady(t *testing.T) {
    cases := []struct {
        name string
        in   []channel.Token
        fire bool
        n    int
    }{
        {"none ready", tokens(false, false), false, 0},
        {"partial", tokens(true, false, true), false, 0},
        {"all", tokens(true, true, true), true, 3},
        {"no inputs", nil, true, 0},
    }
    for _, tc := range cases {
        t.Run(tc.name, func(t *testing.T) {
            fire, idx := AllReady.Evaluate(tc.in)
            if fire != tc.fire || len(idx) != tc.n { t.Fatalf("fire=%v idx=%v", fire, idx) }
        })
    }
}

func TestAnyReady(t *testing.T) {
    if fire, _ := AnyReady.Evaluate(tokens(false, false)); fire { t.Fatalf("fired without ready tokens") }
    if fire, _ := AnyReady.Evaluate(nil); fire { t.Fatalf("fired without inputs") }
    fire, idx := AnyReady.Evaluate(tokens(false, true, false))
    if !fire || len(idx) != 1 || idx[0] != 1 { t.Fatalf("fire=%v idx=%v", fire, idx) }
    // several ready: exactly one is consumed, which one is unspecified
    fire, idx = AnyReady.Evaluate(tokens(true, true))
    if !fire || len(idx) != 1 { t.Fatalf("fire=%v idx=%v", fire, idx) }
}

func TestEvaluateIsPure(t *testing.T) {
    in := tokens(true, false)
    before := []channel.State{in[0].State, in[1].State}
    AllReady.Evaluate(in)
    AnyReady.Evaluate(in)
    if in[0].State != before[0] || in[1].State != before[1] { t.Fatalf("Evaluate mutated tokens") }
}

func TestParsePolicy(t *testing.T) {
    for in, want := range map[string]Policy{"": AllReady, "ALL": AllReady, "any-ready": AnyReady, "any": AnyReady} {
        got, err := ParsePolicy(in)
        if err != nil || got != want { t.Fatalf("%q: %v %v", in, got, err) }
    }
    if _, err := ParsePolicy("some"); err == nil { t.Fatalf("expected error") }
}
