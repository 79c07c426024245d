package internal

// LogLevel represents the severity level of a log message
type LogLevel int

const (
	Info LogLevel = iota
	Warning
	Error
	Debug
)

func (l LogLevel) String() string {
	switch l {
	case Info:
		return "INFO"
	case Warning:
		return "WARN"
	case Error:
		return "ERROR"
	case Debug:
		return "DEBUG"
	default:
		return "?"
	}
}

// severity orders levels for threshold filtering; the enum order itself
// stays as declared.
func (l LogLevel) severity() int {
	switch l {
	case Debug:
		return 0
	case Info:
		return 1
	case Warning:
		return 2
	case Error:
		return 3
	default:
		return 1
	}
}

// ParseLogLevel maps a config string to a minimum level. Unknown values
// fall back to Info.
func ParseLogLevel(s string) LogLevel {
	switch s {
	case "debug":
		return Debug
	case "warning", "warn":
		return Warning
	case "error":
		return Error
	default:
		return Info
	}
}

// LevelEnabled reports whether a message at level passes the configured
// minimum.
func LevelEnabled(min, level LogLevel) bool {
	return level.severity() >= min.severity()
}

// LogStruct represents a log entry with a level, a message and optional
// structured fields (alternating key, value).
type LogStruct struct {
	LogLevel LogLevel
	Message  string
	Fields   []interface{}
}

// LogHandlerFunc defines the function signature for log handlers
type LogHandlerFunc func(sender interface{}, log LogStruct)

// LogHandler is the global event handler for logs. The presentation layer
// decides how entries are rendered; core components never print directly.
var LogHandler LogHandlerFunc

func pushLog(sender interface{}, level LogLevel, message string, fields []interface{}) {
	if LogHandler != nil {
		LogHandler(sender, LogStruct{
			LogLevel: level,
			Message:  message,
			Fields:   fields,
		})
	}
}

// PushLogDebug sends a debug log message
func PushLogDebug(sender interface{}, message string, fields ...interface{}) {
	pushLog(sender, Debug, message, fields)
}

// PushLogInfo sends an info log message
func PushLogInfo(sender interface{}, message string, fields ...interface{}) {
	pushLog(sender, Info, message, fields)
}

// PushLogWarning sends a warning log message
func PushLogWarning(sender interface{}, message string, fields ...interface{}) {
	pushLog(sender, Warning, message, fields)
}

// PushLogError sends an error log message
func PushLogError(sender interface{}, message string, fields ...interface{}) {
	pushLog(sender, Error, message, fields)
}
