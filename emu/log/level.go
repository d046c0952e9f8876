package log

import "gopkg.in/Sirupsen/logrus.v0"

// Level mirrors logrus levels, lowest is most severe.
type Level uint32

const (
	PanicLevel Level = Level(logrus.PanicLevel)
	FatalLevel Level = Level(logrus.FatalLevel)
	ErrorLevel Level = Level(logrus.ErrorLevel)
	WarnLevel  Level = Level(logrus.WarnLevel)
	InfoLevel  Level = Level(logrus.InfoLevel)
	DebugLevel Level = Level(logrus.DebugLevel)
)

func (lvl Level) String() string {
	return logrus.Level(lvl).String()
}

func init() {
	// Module filtering is done by this package, so let everything through
	// logrus once a module is enabled.
	logrus.SetLevel(logrus.DebugLevel)
}
