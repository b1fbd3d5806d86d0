package logrus

import (
	"github.com/sirupsen/logrus"
	"github.com/unkn0wn-root/assetcache"
)

var _ assetcache.Logger = LogrusLogger{}

type LogrusLogger struct{ E *logrus.Entry }

func (l LogrusLogger) Debug(msg string, f assetcache.Fields) { l.entry(f).Debug(msg) }
func (l LogrusLogger) Info(msg string, f assetcache.Fields)  { l.entry(f).Info(msg) }
func (l LogrusLogger) Warn(msg string, f assetcache.Fields)  { l.entry(f).Warn(msg) }
func (l LogrusLogger) Error(msg string, f assetcache.Fields) { l.entry(f).Error(msg) }

// entry moves an "err" error field to logrus.ErrorKey so formatters and hooks see it.
func (l LogrusLogger) entry(f assetcache.Fields) *logrus.Entry {
	if len(f) == 0 {
		return l.E
	}
	lf := make(logrus.Fields, len(f))
	for k, v := range f {
		if err, ok := v.(error); ok && k == "err" {
			lf[logrus.ErrorKey] = err
			continue
		}
		lf[k] = v
	}
	return l.E.WithFields(lf)
}
