package sanitize

// Default per-field limits, in runes.
const (
	LenSource    = 100
	LenTimestamp = 40
	LenLevel     = 20
	LenHost      = 100
	LenSubsystem = 200
	LenUser      = 100
	LenMessage   = 1000
	LenException = 1000
	LenCommand   = 200
	LenOrigin    = 200
	LenContext   = 500
	LenID        = 100
	LenName      = 300
	LenMethod    = 100
	LenObject    = 100
	LenVersion   = 50
)

// MaxLength is the largest configurable limit. No field can be longer than
// the datagram it came from.
const MaxLength = 65507

// Lengths maps field names to their maximum length. Unknown fields fall back
// to Fallback.
type Lengths struct {
	byField  map[string]int
	Fallback int
}

// DefaultLengths returns the built-in limits.
func DefaultLengths() Lengths {
	return Lengths{
		Fallback: 500,
		byField: map[string]int{
			"source":          LenSource,
			"ts_iso":          LenTimestamp,
			"ts_local":        LenTimestamp,
			"level":           LenLevel,
			"host":            LenHost,
			"subsystem":       LenSubsystem,
			"windows_user":    LenUser,
			"message":         LenMessage,
			"exception":       LenException,
			"user_directory":  LenUser,
			"user_id":         LenUser,
			"user_full":       2*LenUser + 1,
			"command":         LenCommand,
			"origin":          LenOrigin,
			"context":         LenContext,
			"result_code":     LenID,
			"app_id":          LenID,
			"app_name":        LenName,
			"task_id":         LenID,
			"task_name":       LenName,
			"execution_id":    LenID,
			"session_id":      LenID,
			"request_id":      LenID,
			"method":          LenMethod,
			"object_id":       LenObject,
			"object_type":     LenObject,
			"entry_type":      LenObject,
			"engine_version":  LenVersion,
			"message_type":    LenSource,
			"user_agent_text": LenMessage,
		},
	}
}

// WithOverrides returns a copy with the given limits replaced. Non-positive
// values are ignored and values above MaxLength are clamped.
func (l Lengths) WithOverrides(overrides map[string]int) Lengths {
	out := Lengths{Fallback: l.Fallback, byField: make(map[string]int, len(l.byField)+len(overrides))}
	for k, v := range l.byField {
		out.byField[k] = v
	}
	for k, v := range overrides {
		if v > 0 {
			out.byField[k] = min(v, MaxLength)
		}
	}
	return out
}

// Max returns the limit for field.
func (l Lengths) Max(field string) int {
	if n, ok := l.byField[field]; ok {
		return n
	}
	if l.Fallback > 0 {
		return l.Fallback
	}
	return 500
}
