/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package orchestrator

// Flush waits until all operations queued before the call have run.
func (o *Orchestrator) Flush() {
	done := make(chan struct{})
	if !o.exec.Execute(func() { close(done) }) {
		<-o.exec.Done()
		return
	}
	<-done
}
