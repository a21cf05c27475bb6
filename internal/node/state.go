package node

// State is the node supervisor's lifecycle state:
//
//	starting --register--> active --shutdown signal--> draining --last worker exits--> gone
//	    |                   | ^                             |
//	    +---heartbeat miss--+ |                             +---force timeout--> gone
//	                        reconcile loop
type State string

const (
	StateStarting State = "starting"
	StateActive   State = "active"
	StateDraining State = "draining"
	StateGone     State = "gone"
)
