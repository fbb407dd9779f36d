package smtpd

import "crypto/tls"

// State is one of the ten session states named in spec §4.1. Unlike the
// teacher's conState bitmask (used there to mean "valid in any of these
// states"), State is a plain value; the "valid in" relation is expressed
// directly in dispatch's switch, and Phase (below) carries the orthogonal
// gating spec §4.1 calls out explicitly.
type State int

const (
	StateNew State = iota
	StateConnected
	StateTLS
	StateHelo
	StateAuthInit
	StateAuthUsername
	StateAuthPassword
	StateAuthFinalize
	StateBody
	StateQuit
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateConnected:
		return "CONNECTED"
	case StateTLS:
		return "TLS"
	case StateHelo:
		return "HELO"
	case StateAuthInit:
		return "AUTH_INIT"
	case StateAuthUsername:
		return "AUTH_USERNAME"
	case StateAuthPassword:
		return "AUTH_PASSWORD"
	case StateAuthFinalize:
		return "AUTH_FINALIZE"
	case StateBody:
		return "BODY"
	case StateQuit:
		return "QUIT"
	default:
		return "UNKNOWN"
	}
}

// Phase is the coarse lifecycle gate orthogonal to State (spec §3, §4.1).
type Phase int

const (
	PhaseInit Phase = iota
	PhaseSetup
	PhaseTransaction
)

func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "INIT"
	case PhaseSetup:
		return "SETUP"
	case PhaseTransaction:
		return "TRANSACTION"
	default:
		return "UNKNOWN"
	}
}

// Flags is the session flag bitset of spec §3.
type Flags uint16

const (
	FlagEHLO Flags = 1 << iota
	Flag8BITMIME
	FlagSecure
	FlagAuthenticated
	FlagSMTPEnd
	FlagMFAEnd
	FlagKick
)

func (f Flags) has(bit Flags) bool { return f&bit != 0 }

// Limits holds the resource caps of spec §5, defaulted to the spec's own
// numbers.
type Limits struct {
	MaxMail        int // SMTP_MAXMAIL
	MaxRcpt        int // SMTP_MAXRCPT
	KickThreshold  int // SMTP_KICKTHRESHOLD
	MaxLineLength  int
	MaxMessageSize int64
	IdleTimeout    int64 // seconds; enforced by the caller via conn deadlines
}

// DefaultLimits mirrors spec §5's named constants.
var DefaultLimits = Limits{
	MaxMail:        100,
	MaxRcpt:        1000,
	KickThreshold:  50,
	MaxLineLength:  2048,
	MaxMessageSize: 32 * 1024 * 1024,
	IdleTimeout:    300,
}

// ListenerMode selects the TLS posture of a listener (spec §6).
type ListenerMode int

const (
	ModeSMTP ListenerMode = iota
	ModeSubmission
	ModeSMTPS
)

// ListenerConfig is the per-listener configuration the engine consumes,
// distinct from internal/config's TOML-facing ListenerConfig.
type ListenerConfig struct {
	Mode            ListenerMode
	TLSConfig       *tls.Config
	AllowSTARTTLS   bool
	RequireSTARTTLS bool
	AllowAUTH       bool
	RequireAUTH     bool
	Hostname        string
	Banner          string
	Limits          Limits
}
