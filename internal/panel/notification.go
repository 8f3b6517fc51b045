package panel

import "fmt"

// Level is the severity of a notification.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notification is the outcome of a panel command. When Dialog is set the
// page shows it in a blocking dialog; otherwise it is only status text.
type Notification struct {
	Level   Level  `json:"level"`
	Title   string `json:"title,omitempty"`
	Message string `json:"message"`
	Dialog  bool   `json:"dialog"`
}

func dialog(level Level, title, format string, args ...any) Notification {
	return Notification{Level: level, Title: title, Message: fmt.Sprintf(format, args...), Dialog: true}
}

func status(format string, args ...any) Notification {
	return Notification{Level: LevelInfo, Message: fmt.Sprintf(format, args...)}
}

// Event is pushed to every subscriber (browser tabs, via SSE).
type Event struct {
	Name string `json:"name"`
	Data any    `json:"data"`
}

// Event names.
const (
	EventRedraw = "redraw"
	EventNotify = "notify"
	EventState  = "state"
)

// RedrawData accompanies EventRedraw.
type RedrawData struct {
	Frame   int64 `json:"frame"`
	Samples int   `json:"samples"`
}
