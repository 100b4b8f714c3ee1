// Package log provides subsystem-tagged logging for the core, wrapping glog.
package log

import (
	"flag"
	"fmt"

	"github.com/golang/glog"
)

// Subsystem identifies which part of the core emitted a log line.
type Subsystem uint8

const (
	SubsystemAgent Subsystem = iota
	SubsystemMemdx
	SubsystemKVPool
	SubsystemRouter
	SubsystemHTTP
	SubsystemRowStream
	SubsystemConfig
	SubsystemRetry
	SubsystemEnsure
)

var names = map[Subsystem]string{
	SubsystemAgent:     "agent",
	SubsystemMemdx:     "memdx",
	SubsystemKVPool:    "kvpool",
	SubsystemRouter:    "router",
	SubsystemHTTP:      "http",
	SubsystemRowStream: "rowstream",
	SubsystemConfig:    "config",
	SubsystemRetry:     "retry",
	SubsystemEnsure:    "ensure",
}

func (s Subsystem) String() string {
	if n, ok := names[s]; ok {
		return n
	}
	return "unknown"
}

// Logger is a thin subsystem-tagged wrapper over glog. Zero value is usable.
type Logger struct {
	sub Subsystem
}

func New(sub Subsystem) Logger { return Logger{sub: sub} }

func (l Logger) Infof(format string, args ...interface{}) {
	glog.InfoDepth(1, l.prefix(format, args...))
}

func (l Logger) Warnf(format string, args ...interface{}) {
	glog.WarningDepth(1, l.prefix(format, args...))
}

func (l Logger) Errorf(format string, args ...interface{}) {
	glog.ErrorDepth(1, l.prefix(format, args...))
}

func (l Logger) prefix(format string, args ...interface{}) string {
	return fmt.Sprintf("[%s] ", l.sub) + fmt.Sprintf(format, args...)
}

// assertEnabled gates internal consistency checks: off by default, enabled
// by setting the gocbcorex.debug flag.
var assertEnabled = flag.Bool("gocbcorex.debug", false, "enable internal consistency assertions")

// Assert panics with msg if cond is false and assertions are enabled. Never
// silently continues past a broken invariant when debug checks are on.
func Assert(cond bool, msg string) {
	if *assertEnabled && !cond {
		panic("assertion failed: " + msg)
	}
}

func Assertf(cond bool, format string, args ...interface{}) {
	if *assertEnabled && !cond {
		panic("assertion failed: " + fmt.Sprintf(format, args...))
	}
}
