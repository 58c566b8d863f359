package bridge

import (
	"github.com/ChainSafe/log15"
)

// State of one transfer attempt. The forward path runs
// Idle → Initiated → SourceVerified → Locked → DestVerified → Minted, with the
// failure branch Locked/DestVerified → MintFailed → Unlocking → Unlocked.
// The return path runs Idle → BurnInitiated → Burned → UnlockInitiated → Unlocked.
type State uint8

const (
	Idle State = iota
	Initiated
	SourceVerified
	Locked
	DestVerified
	Minted
	MintFailed
	Unlocking
	Unlocked
	BurnInitiated
	Burned
	UnlockInitiated
)

var stateNames = map[State]string{
	Idle:            "Idle",
	Initiated:       "Initiated",
	SourceVerified:  "SourceVerified",
	Locked:          "Locked",
	DestVerified:    "DestVerified",
	Minted:          "Minted",
	MintFailed:      "MintFailed",
	Unlocking:       "Unlocking",
	Unlocked:        "Unlocked",
	BurnInitiated:   "BurnInitiated",
	Burned:          "Burned",
	UnlockInitiated: "UnlockInitiated",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "Unknown"
}

// transitions is the closed edge set. One designated compensating transition
// per irreversible step, nothing ad hoc.
var transitions = map[State][]State{
	Idle:            {Initiated, BurnInitiated},
	Initiated:       {SourceVerified},
	SourceVerified:  {Locked},
	Locked:          {DestVerified, MintFailed},
	DestVerified:    {Minted, MintFailed},
	MintFailed:      {Unlocking},
	Unlocking:       {Unlocked},
	BurnInitiated:   {Burned},
	Burned:          {UnlockInitiated},
	UnlockInitiated: {Unlocked},
}

// CanAdvance reports whether next is a legal successor of s.
func (s State) CanAdvance(next State) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the attempt is finished in s.
func (s State) Terminal() bool {
	return s == Minted || s == Unlocked
}

// machine tracks the attempt through the transition table. The orchestrator
// is its only driver; an illegal move is a bug and is logged, never applied.
type machine struct {
	state State
	log   log15.Logger
}

func newMachine(log log15.Logger) *machine {
	return &machine{state: Idle, log: log}
}

func (m *machine) to(next State) {
	if !m.state.CanAdvance(next) {
		m.log.Error("Illegal state transition", "from", m.state, "to", next)
		return
	}
	m.log.Debug("Transfer state", "from", m.state, "to", next)
	m.state = next
}

func (m *machine) current() State { return m.state }
