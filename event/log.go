package event

// LogEvent is implemented only by the variants in this package.
type LogEvent interface {
	Fields() *LogFields
	logEvent()
}

// LogFields are shared by every log source.
type LogFields struct {
	Source        Source     `json:"source"`
	LogRow        int64      `json:"log_row"`
	TSISO         string     `json:"ts_iso"`
	TSLocal       string     `json:"ts_local"`
	Level         string     `json:"level"`
	Host          string     `json:"host"`
	Subsystem     string     `json:"subsystem"`
	WindowsUser   string     `json:"windows_user"`
	Message       string     `json:"message"`
	UserDirectory string     `json:"user_directory"`
	UserID        string     `json:"user_id"`
	UserFull      string     `json:"user_full"`
	Category      []Category `json:"category"`
}

// Fields returns the common part of the event.
func (f *LogFields) Fields() *LogFields { return f }

type EngineEvent struct {
	LogFields
	ProxySessionID   string `json:"proxy_session_id"`
	EngineTS         string `json:"engine_ts"`
	ProcessID        int64  `json:"process_id"`
	EngineExeVersion string `json:"engine_exe_version"`
	ServerStarted    string `json:"server_started"`
	EntryType        string `json:"entry_type"`
	SessionID        string `json:"session_id"`
	AppID            string `json:"app_id"`
	AppName          string `json:"app_name,omitempty"`
}

type ProxyEvent struct {
	LogFields
	ExceptionMessage string `json:"exception_message"`
	Command          string `json:"command"`
	ResultCode       string `json:"result_code"`
	Origin           string `json:"origin"`
	Context          string `json:"context"`
}

type RepositoryEvent struct {
	LogFields
	ExceptionMessage string `json:"exception_message"`
	Command          string `json:"command"`
	ResultCode       string `json:"result_code"`
	Origin           string `json:"origin"`
	Context          string `json:"context"`
}

type SchedulerEvent struct {
	LogFields
	ExceptionMessage string `json:"exception_message"`
	AppName          string `json:"app_name"`
	AppID            string `json:"app_id"`
	ExecutionID      string `json:"execution_id"`
	TaskID           string `json:"task_id"`
	TaskName         string `json:"task_name"`
}

// QixPerfEvent is one engine API call measurement. Times are milliseconds,
// RAM values bytes; -1 marks an unparseable value.
type QixPerfEvent struct {
	LogFields
	ProxySessionID string  `json:"proxy_session_id"`
	SessionID      string  `json:"session_id"`
	AppID          string  `json:"app_id"`
	AppName        string  `json:"app_name"`
	RequestID      string  `json:"request_id"`
	Method         string  `json:"method"`
	ProcessTime    float64 `json:"process_time"`
	WorkTime       float64 `json:"work_time"`
	LockTime       float64 `json:"lock_time"`
	ValidateTime   float64 `json:"validate_time"`
	TraverseTime   float64 `json:"traverse_time"`
	Handle         int64   `json:"handle"`
	ObjectID       string  `json:"object_id"`
	NetRAM         int64   `json:"net_ram"`
	PeakRAM        int64   `json:"peak_ram"`
	ObjectType     string  `json:"object_type"`
}

func (*EngineEvent) logEvent()     {}
func (*ProxyEvent) logEvent()      {}
func (*RepositoryEvent) logEvent() {}
func (*SchedulerEvent) logEvent()  {}
func (*QixPerfEvent) logEvent()    {}

// RejectedEvent is what remains of a qix-perf event that failed the filter.
type RejectedEvent struct {
	Source      Source  `json:"source"`
	AppID       string  `json:"app_id"`
	AppName     string  `json:"app_name"`
	Method      string  `json:"method"`
	ObjectType  string  `json:"object_type"`
	ProcessTime float64 `json:"process_time"`
}
