package channel

// State is the readiness of one input port for one cycle.
type State int

const (
    Pending State = iota
    Ready
)

func (s State) String() string {
    switch s {
    case Ready:
        return "ready"
    default:
        return "pending"
    }
}

// Token is the transient readiness indicator of an input port. Msg is only
// meaningful when State is Ready.
type Token struct {
    State State
    Msg   Message
}

// ReadyToken wraps m into a Ready token.
func ReadyToken(m Message) Token { return Token{State: Ready, Msg: m} }

func (t Token) IsReady() bool { return t.State == Ready }
