package event

import "strings"

// UserEvent is a proxy connection or session event.
type UserEvent struct {
	MessageType   Source     `json:"message_type"`
	Host          string     `json:"host"`
	Command       string     `json:"command"`
	UserDirectory string     `json:"user_directory"`
	UserID        string     `json:"user_id"`
	UserFull      string     `json:"user_full"`
	Origin        string     `json:"origin"`
	Context       string     `json:"context"`
	Message       string     `json:"message"`
	AppID         string     `json:"app_id,omitempty"`
	AppName       string     `json:"app_name,omitempty"`
	UA            *UserAgent `json:"ua,omitempty"`
}

// UserAgent is the parsed client user agent.
type UserAgent struct {
	Browser        string `json:"browser"`
	BrowserVersion string `json:"browser_version"`
	OS             string `json:"os"`
	Platform       string `json:"platform"`
	Mobile         bool   `json:"mobile"`
	Bot            bool   `json:"bot"`
}

// NormalizeUser fills in whichever identity form is missing. When both
// directory and id are set they win over full; otherwise full is split on
// its first backslash.
func NormalizeUser(directory, id, full string) (string, string, string) {
	if directory != "" && id != "" {
		return directory, id, directory + `\` + id
	}
	if full != "" {
		if i := strings.IndexByte(full, '\\'); i >= 0 {
			return full[:i], full[i+1:], full
		}
	}
	return directory, id, full
}
