// Package decode turns raw datagrams into typed events.
package decode

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/c360/sensewatch/appname"
	"github.com/c360/sensewatch/errors"
	"github.com/c360/sensewatch/event"
	"github.com/c360/sensewatch/pkg/sanitize"
	"github.com/c360/sensewatch/processor/counter"
	"github.com/c360/sensewatch/processor/qixperf"
)

// Log datagram layout. Fields 0-11 are shared by every source.
const (
	fSource = iota
	fLogRow
	fTSISO
	fTSLocal
	fLevel
	fHost
	fSubsystem
	fWindowsUser
	fMessage
	fUserDirectory
	fUserID
	fUserFull
	commonFieldCount
)

// Source specific fields start at commonFieldCount.
const (
	engProxySessionID = commonFieldCount + iota
	engTS
	engProcessID
	engExeVersion
	engServerStarted
	engEntryType
	engSessionID
	engAppID
)

const (
	svcException = commonFieldCount + iota
	svcCommand
	svcResultCode
	svcOrigin
	svcContext
)

const (
	schException = commonFieldCount + iota
	schAppName
	schAppID
	schExecutionID
	schTaskID
	schTaskName
)

const (
	qixProxySessionID = commonFieldCount + iota
	qixSessionID
	qixAppID
	qixRequestID
	qixMethod
	qixProcessTime
	qixWorkTime
	qixLockTime
	qixValidateTime
	qixTraverseTime
	qixHandle
	qixObjectID
	qixNetRAM
	qixPeakRAM
	qixObjectType
)

// LogConfig is the decoder's slice of configuration.
type LogConfig struct {
	Sources             map[event.Source]bool
	QixPerf             qixperf.RuleSet
	TrackRejectedEvents bool
	Lengths             sanitize.Lengths
}

// Deps are the decoder's collaborators. Any of them may be nil.
type Deps struct {
	AppNames appname.Lookup
	Accepted *counter.Accepted
	Rejected *counter.Rejected
	Logger   *slog.Logger
}

// LogDecoder decodes tab-delimited log-stream datagrams.
type LogDecoder struct {
	cfg    LogConfig
	filter *qixperf.Filter
	deps   Deps
	logger *slog.Logger
}

// NewLogDecoder builds a decoder. QIX filter settings that have no effect
// are logged once.
func NewLogDecoder(cfg LogConfig, deps Deps) *LogDecoder {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "log-decoder")
	if cfg.Lengths.Fallback == 0 {
		cfg.Lengths = sanitize.DefaultLengths()
	}

	var filter *qixperf.Filter
	if cfg.Sources[event.SourceQixPerf] {
		filter = qixperf.NewFilter(cfg.QixPerf, logger)
	}

	return &LogDecoder{cfg: cfg, filter: filter, deps: deps, logger: logger}
}

// Decode never panics. Unknown and disabled sources yield a Drop outcome;
// a datagram with too few fields yields an error wrapping
// errors.ErrParsingFailed.
func (d *LogDecoder) Decode(payload []byte) (event.Outcome, error) {
	parts := strings.Split(strings.TrimRight(string(payload), "\r\n"), "\t")

	source, known := event.ParseSource(event.StreamLog, parts[0])
	if !known {
		d.unrecognized(parts[0])
		return event.Drop(source, event.ReasonUnknownSource), nil
	}
	if !d.cfg.Sources[source] {
		return event.Drop(source, event.ReasonSourceDisabled), nil
	}
	if len(parts) < commonFieldCount {
		return event.Outcome{}, errors.WrapInvalid(
			fmt.Errorf("%s: got %d fields, need %d: %w", source, len(parts), commonFieldCount, errors.ErrParsingFailed),
			"LogDecoder", "Decode", "split fields")
	}

	f := fields{parts: parts, lengths: d.cfg.Lengths}
	switch source {
	case event.SourceEngine:
		return event.ForwardLog(d.engine(f)), nil
	case event.SourceProxy:
		ev := &event.ProxyEvent{LogFields: d.common(source, f)}
		ev.ExceptionMessage, ev.Command, ev.ResultCode, ev.Origin, ev.Context = d.service(f)
		return event.ForwardLog(ev), nil
	case event.SourceRepository:
		ev := &event.RepositoryEvent{LogFields: d.common(source, f)}
		ev.ExceptionMessage, ev.Command, ev.ResultCode, ev.Origin, ev.Context = d.service(f)
		return event.ForwardLog(ev), nil
	case event.SourceScheduler:
		return event.ForwardLog(d.scheduler(f)), nil
	default:
		return d.qixPerf(f), nil
	}
}

func (d *LogDecoder) unrecognized(tag string) {
	if d.deps.Accepted != nil {
		d.deps.Accepted.AddUnrecognized(event.StreamLog)
	}
	d.logger.Warn("Unknown log event source", "source", sanitize.String(tag, sanitize.LenSource))
}

func (d *LogDecoder) common(source event.Source, f fields) event.LogFields {
	dir, id, full := event.NormalizeUser(
		f.text(fUserDirectory, "user_directory"),
		f.text(fUserID, "user_id"),
		f.text(fUserFull, "user_full"),
	)
	return event.LogFields{
		Source:        source,
		LogRow:        f.int(fLogRow),
		TSISO:         f.timestamp(fTSISO),
		TSLocal:       f.text(fTSLocal, "ts_local"),
		Level:         f.text(fLevel, "level"),
		Host:          f.text(fHost, "host"),
		Subsystem:     f.text(fSubsystem, "subsystem"),
		WindowsUser:   f.text(fWindowsUser, "windows_user"),
		Message:       f.text(fMessage, "message"),
		UserDirectory: dir,
		UserID:        id,
		UserFull:      full,
	}
}

func (d *LogDecoder) engine(f fields) *event.EngineEvent {
	ev := &event.EngineEvent{
		LogFields:        d.common(event.SourceEngine, f),
		ProxySessionID:   f.text(engProxySessionID, "session_id"),
		EngineTS:         f.timestamp(engTS),
		ProcessID:        f.int(engProcessID),
		EngineExeVersion: f.text(engExeVersion, "engine_version"),
		ServerStarted:    f.timestamp(engServerStarted),
		EntryType:        f.text(engEntryType, "entry_type"),
		SessionID:        f.text(engSessionID, "session_id"),
		AppID:            f.uuid(engAppID),
	}
	if ev.AppID != "" {
		ev.AppName = d.lookupAppName(ev.AppID)
	}
	return ev
}

func (d *LogDecoder) service(f fields) (exception, command, resultCode, origin, context string) {
	return f.text(svcException, "exception"),
		f.text(svcCommand, "command"),
		f.text(svcResultCode, "result_code"),
		f.text(svcOrigin, "origin"),
		f.text(svcContext, "context")
}

func (d *LogDecoder) scheduler(f fields) *event.SchedulerEvent {
	ev := &event.SchedulerEvent{
		LogFields:        d.common(event.SourceScheduler, f),
		ExceptionMessage: f.text(schException, "exception"),
		AppName:          f.text(schAppName, "app_name"),
		AppID:            f.uuid(schAppID),
		ExecutionID:      f.uuid(schExecutionID),
		TaskID:           f.uuid(schTaskID),
		TaskName:         f.text(schTaskName, "task_name"),
	}
	if ev.AppName == "" && ev.AppID != "" {
		ev.AppName = d.lookupAppName(ev.AppID)
	}
	return ev
}

// qixPerf runs the filter on the handful of fields it needs before the
// full event is built.
func (d *LogDecoder) qixPerf(f fields) event.Outcome {
	appID := f.uuid(qixAppID)
	data := qixperf.EventData{
		AppID:      appID,
		AppName:    d.lookupAppName(appID),
		ObjectType: f.text(qixObjectType, "object_type"),
		ObjectID:   f.text(qixObjectID, "object_id"),
		Method:     f.text(qixMethod, "method"),
	}

	if d.filter == nil || !d.filter.Accept(data) {
		rejected := &event.RejectedEvent{
			Source:      event.SourceQixPerf,
			AppID:       data.AppID,
			AppName:     data.AppName,
			Method:      data.Method,
			ObjectType:  data.ObjectType,
			ProcessTime: f.float(qixProcessTime),
		}
		if d.cfg.TrackRejectedEvents && d.deps.Rejected != nil {
			d.deps.Rejected.Add(rejected)
		}
		return event.Reject(rejected)
	}

	return event.ForwardLog(&event.QixPerfEvent{
		LogFields:      d.common(event.SourceQixPerf, f),
		ProxySessionID: f.text(qixProxySessionID, "session_id"),
		SessionID:      f.text(qixSessionID, "session_id"),
		AppID:          data.AppID,
		AppName:        data.AppName,
		RequestID:      f.text(qixRequestID, "request_id"),
		Method:         data.Method,
		ProcessTime:    f.float(qixProcessTime),
		WorkTime:       f.float(qixWorkTime),
		LockTime:       f.float(qixLockTime),
		ValidateTime:   f.float(qixValidateTime),
		TraverseTime:   f.float(qixTraverseTime),
		Handle:         f.int(qixHandle),
		ObjectID:       data.ObjectID,
		NetRAM:         f.int(qixNetRAM),
		PeakRAM:        f.int(qixPeakRAM),
		ObjectType:     data.ObjectType,
	})
}

func (d *LogDecoder) lookupAppName(appID string) string {
	if appID == "" || d.deps.AppNames == nil {
		return ""
	}
	name, _ := d.deps.AppNames.LookupAppName(appID)
	return name
}
