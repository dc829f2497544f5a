// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package elapsedtimer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "00:00"},
		{-time.Second, "00:00"},
		{1400 * time.Millisecond, "00:01"},
		{2*time.Minute + 34*time.Second, "02:34"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1:02:03"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Format(tt.in), tt.in.String())
	}
}

func TestTimer_StartStop(t *testing.T) {
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := New()
	m.now = func() time.Time { return clock }

	assert.Nil(t, m.Init(), "stopped timer does not tick")

	m = m.Start()
	assert.True(t, m.Running())
	assert.NotNil(t, m.Init())

	clock = clock.Add(75 * time.Second)
	m, cmd := m.Update(TickMsg(clock))
	assert.NotNil(t, cmd)
	assert.Equal(t, 75*time.Second, m.Elapsed())
	assert.Contains(t, m.View(), "01:15")

	m = m.Stop()
	clock = clock.Add(time.Hour)
	assert.Equal(t, 75*time.Second, m.Elapsed())

	_, cmd = m.Update(TickMsg(clock))
	assert.Nil(t, cmd, "stopped timer stops ticking")
}
