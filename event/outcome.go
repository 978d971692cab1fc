package event

// Kind discriminates an Outcome.
type Kind int

const (
	KindForward Kind = iota
	KindDrop
	KindRejectForCount
)

func (k Kind) String() string {
	switch k {
	case KindForward:
		return "forward"
	case KindDrop:
		return "drop"
	case KindRejectForCount:
		return "reject"
	default:
		return "unknown"
	}
}

// Drop reasons.
const (
	ReasonUnknownSource   = "unknown source"
	ReasonSourceDisabled  = "source disabled"
	ReasonCategorizerDrop = "dropped by categorization rule"
)

// Outcome is the result of decoding one datagram. Exactly one of Log or User
// is set for KindForward, Rejected for KindRejectForCount, Reason for KindDrop.
type Outcome struct {
	Kind     Kind
	Log      LogEvent
	User     *UserEvent
	Rejected *RejectedEvent
	Source   Source
	Reason   string
}

func ForwardLog(ev LogEvent) Outcome {
	return Outcome{Kind: KindForward, Log: ev, Source: ev.Fields().Source}
}

func ForwardUser(ev *UserEvent) Outcome {
	return Outcome{Kind: KindForward, User: ev, Source: ev.MessageType}
}

func Drop(source Source, reason string) Outcome {
	return Outcome{Kind: KindDrop, Source: source, Reason: reason}
}

func Reject(ev *RejectedEvent) Outcome {
	return Outcome{Kind: KindRejectForCount, Rejected: ev, Source: ev.Source}
}
