package core

// SessionID identifies one live connection. A participant token may have
// several connections over time (reloads, reconnects), each with its own SessionID.
type SessionID string
