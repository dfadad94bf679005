// Copyright 2025 The qwindex Authors
// This file is part of qwindex.
//
// qwindex is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// qwindex is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with qwindex. If not, see <http://www.gnu.org/licenses/>.

// Package testlog provides a log handler for unit tests.
package testlog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/log"
)

// Logger returns a logger which routes records at or above level to the
// unit test log of t.
func Logger(t *testing.T, level slog.Level) log.Logger {
	return log.NewLogger(&handler{t: t, level: level, mu: new(sync.Mutex)})
}

type handler struct {
	t     *testing.T
	level slog.Level
	attrs []slog.Attr
	mu    *sync.Mutex
}

func (h *handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *handler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var line strings.Builder
	fmt.Fprintf(&line, "%-5s %s", levelString(r.Level), r.Message)
	for _, attr := range h.attrs {
		fmt.Fprintf(&line, " %s=%v", attr.Key, attr.Value)
	}
	r.Attrs(func(attr slog.Attr) bool {
		fmt.Fprintf(&line, " %s=%v", attr.Key, attr.Value)
		return true
	})
	h.t.Log(line.String())
	return nil
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &handler{t: h.t, level: h.level, attrs: merged, mu: h.mu}
}

func (h *handler) WithGroup(string) slog.Handler {
	return h
}

func levelString(level slog.Level) string {
	switch level {
	case log.LevelTrace:
		return "TRACE"
	case log.LevelCrit:
		return "CRIT"
	default:
		return strings.ToUpper(level.String())
	}
}
