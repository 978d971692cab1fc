package decode

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/mssola/useragent"

	"github.com/c360/sensewatch/appname"
	"github.com/c360/sensewatch/errors"
	"github.com/c360/sensewatch/event"
	"github.com/c360/sensewatch/pkg/sanitize"
)

// User datagram layout. Everything from uMessage on is the message.
const (
	uMessageType = iota
	uHost
	uCommand
	uUserDirectory
	uUserID
	uOrigin
	uContext
	uMessage
)

var (
	appPath   = regexp.MustCompile(`^/app/([^/?#\s]+)`)
	uaMarkers = []string{"User-Agent:", "UserAgent:"}
)

// UserConfig is the user decoder's slice of configuration.
type UserConfig struct {
	Sources map[event.Source]bool
	Lengths sanitize.Lengths
}

// UserDecoder decodes semicolon-delimited user-stream datagrams.
type UserDecoder struct {
	cfg    UserConfig
	deps   Deps
	logger *slog.Logger
}

// NewUserDecoder builds a decoder.
func NewUserDecoder(cfg UserConfig, deps Deps) *UserDecoder {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Lengths.Fallback == 0 {
		cfg.Lengths = sanitize.DefaultLengths()
	}
	return &UserDecoder{cfg: cfg, deps: deps, logger: logger.With("component", "user-decoder")}
}

// Decode never panics. The message may itself contain semicolons; they are
// preserved.
func (d *UserDecoder) Decode(payload []byte) (event.Outcome, error) {
	parts := strings.Split(strings.TrimRight(string(payload), "\r\n"), ";")

	source, known := event.ParseSource(event.StreamUser, parts[uMessageType])
	if !known {
		if d.deps.Accepted != nil {
			d.deps.Accepted.AddUnrecognized(event.StreamUser)
		}
		d.logger.Warn("Unknown user event source", "source", sanitize.String(parts[uMessageType], sanitize.LenSource))
		return event.Drop(source, event.ReasonUnknownSource), nil
	}
	if !d.cfg.Sources[source] {
		return event.Drop(source, event.ReasonSourceDisabled), nil
	}
	if len(parts) < uMessage {
		return event.Outcome{}, errors.WrapInvalid(
			fmt.Errorf("%s: got %d fields, need %d: %w", source, len(parts), uMessage, errors.ErrParsingFailed),
			"UserDecoder", "Decode", "split fields")
	}

	message := ""
	if len(parts) > uMessage {
		message = strings.Join(parts[uMessage:], ";")
	}

	f := fields{parts: parts, lengths: d.cfg.Lengths}
	ev := &event.UserEvent{
		MessageType: source,
		Host:        f.text(uHost, "host"),
		Command:     f.text(uCommand, "command"),
		Origin:      f.text(uOrigin, "origin"),
		Context:     f.text(uContext, "context"),
		Message:     strings.TrimSpace(sanitize.String(message, d.cfg.Lengths.Max("message"))),
	}
	dir, id, full := f.text(uUserDirectory, "user_directory"), f.text(uUserID, "user_id"), ""
	if id == "" && strings.Contains(dir, `\`) {
		// Some proxies send DIR\user in the directory field.
		dir, full = "", dir
	}
	ev.UserDirectory, ev.UserID, ev.UserFull = event.NormalizeUser(dir, id, full)

	if id := appIDFromContext(ev.Context); id != "" {
		ev.AppID = id
		ev.AppName = appname.NameOrUnknown(d.deps.AppNames, id)
	}
	ev.UA = parseUserAgent(message, d.cfg.Lengths.Max("user_agent_text"))

	return event.ForwardUser(ev), nil
}

// appIDFromContext extracts the app id from a context that starts with
// "/app/e3e6ba23-...". The id must be a valid UUID.
func appIDFromContext(ctx string) string {
	m := appPath.FindStringSubmatch(ctx)
	if m == nil {
		return ""
	}
	return validUUID(m[1])
}

// parseUserAgent returns nil unless message carries a user agent marker.
func parseUserAgent(message string, maxLength int) *event.UserAgent {
	var text string
	for _, marker := range uaMarkers {
		if i := strings.Index(message, marker); i >= 0 {
			text = message[i+len(marker):]
			break
		}
	}
	if text == "" {
		return nil
	}
	text = strings.Trim(strings.TrimSpace(sanitize.String(text, maxLength)), `"'`)
	if text == "" {
		return nil
	}

	ua := useragent.New(text)
	browser, version := ua.Browser()
	return &event.UserAgent{
		Browser:        browser,
		BrowserVersion: version,
		OS:             ua.OS(),
		Platform:       ua.Platform(),
		Mobile:         ua.Mobile(),
		Bot:            ua.Bot(),
	}
}
