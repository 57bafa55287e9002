package deflate

import (
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	discardOnce sync.Once
	discard     *logrus.Logger
)

// DiscardLogger returns a logger that drops everything. The engines use it
// when no logger is configured.
func DiscardLogger() logrus.FieldLogger {
	discardOnce.Do(func() {
		discard = logrus.New()
		discard.Out = io.Discard
		discard.Level = logrus.PanicLevel
	})
	return discard
}
