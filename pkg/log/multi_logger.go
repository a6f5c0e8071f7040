package log

// multiLogger fans events out to several loggers in order.
type multiLogger []Logger

func (m multiLogger) Log(event Event) {
	for _, l := range m {
		l.Log(event)
	}
}

// NewMultiLogger returns a Logger that forwards every event to each non-nil
// logger. It returns nil when none remain and the logger itself when only
// one does.
func NewMultiLogger(loggers ...Logger) Logger {
	var m multiLogger
	for _, l := range loggers {
		if l != nil {
			m = append(m, l)
		}
	}
	switch len(m) {
	case 0:
		return nil
	case 1:
		return m[0]
	}
	return m
}
