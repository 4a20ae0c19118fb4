// Copyright 2026 The nyx Authors. All rights reserved.
// Use of this source code is governed by an Apache v2 license
// that can be found in the LICENSE file.

package nyx

import (
	"os"

	"github.com/go-kratos/kratos/v2/log"
)

// newDefaultHelper builds the logger used when an Options value leaves
// Logger nil: a filtered stdout logger at Info level, matching the
// construction teacher's file.go uses when no logger is supplied.
func newDefaultHelper() *log.Helper {
	base := log.NewStdLogger(os.Stdout)
	return log.NewHelper(log.NewFilter(base, log.FilterLevel(log.LevelInfo)))
}

// loggerFor wraps h in a log.Helper if non-nil, otherwise returns the
// default helper. Every
// GlobalState carries exactly one of these, shared by every thread that
// belongs to it (spec §5 "shared: ... logger").
func loggerFor(h log.Logger) *log.Helper {
	if h == nil {
		return newDefaultHelper()
	}
	return log.NewHelper(h)
}
