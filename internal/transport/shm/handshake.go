/*
 *
 * Copyright 2025 nxtvepg authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

package shm

import (
	"context"
	"time"
)

// WaitPeer waits for the other participant to mark itself alive.
// The client calls this when it opened a structure whose server has not
// finished writing its identity yet.
func (r *Region) WaitPeer(ctx context.Context) error {
	if r == nil || r.closed.Load() {
		return ErrRegionClosed
	}
	peer := r.side.Peer()

	ticker := time.NewTicker(1 * time.Millisecond)
	defer ticker.Stop()

	for {
		if r.shared.Alive(peer) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
