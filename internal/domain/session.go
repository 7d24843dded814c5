package domain

import "time"

// WalletSession is the explicit signing context passed into every component
// that signs or queries balances. There is deliberately no package-level
// session singleton; a component that needs the active account takes one of
// these as an argument.
type WalletSession struct {
	Address string // checksummed hex address of the active account
	ChainID int64
}

// SessionEventKind enumerates wallet session changes.
type SessionEventKind string

const (
	SessionStarted        SessionEventKind = "session_started"
	SessionAccountChanged SessionEventKind = "account_changed"
	SessionChainChanged   SessionEventKind = "chain_changed"
)

// SessionEvent is broadcast on the signal bus whenever the signing context
// changes. Consumers re-validate affordability and signer identity on receipt
// instead of trusting previously cached state.
type SessionEvent struct {
	Kind    SessionEventKind `json:"kind"`
	Session WalletSession    `json:"session"`
	At      time.Time        `json:"at"`
}
