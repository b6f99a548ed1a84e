package app

// BackpressureAction tells the Channel what to do with a subscriber whose
// event buffer is full.
type BackpressureAction int

const (
	// DropEvent skips the event; the subscriber stays connected with a gap.
	DropEvent BackpressureAction = iota
	// CloseSubscription ends the stream; the client reconnects and resyncs
	// from history.
	CloseSubscription
)

type Policy interface {
	OnBackPressure(sub *Subscription) BackpressureAction
}

type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(*Subscription) BackpressureAction {
	return CloseSubscription
}
