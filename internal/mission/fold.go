// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package mission

import (
	"iter"

	"github.com/noldarim/mindlaunch/internal/protocol"
)

// Fold applies every event of seq to m in order and returns the final
// snapshot. It stops pulling as soon as the state turns terminal. A
// sequence error is returned as is, with the state reached so far; turning
// it into a failure is up to the caller.
func Fold(seq iter.Seq2[protocol.Event, error], m *Machine) (State, error) {
	for ev, err := range seq {
		if err != nil {
			return m.State(), err
		}
		if st := m.Apply(ev); st.Terminal {
			return st, nil
		}
	}
	return m.State(), nil
}
