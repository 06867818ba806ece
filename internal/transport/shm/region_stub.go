//go:build !linux

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

// CreateRegion is not supported on this platform
func CreateRegion(base string, opts *Options) (*Region, error) {
	return nil, ErrUnsupported
}

// OpenRegion is not supported on this platform
func OpenRegion(base string, opts *Options) (*Region, error) {
	return nil, ErrUnsupported
}

func (r *Region) release() error {
	return nil
}
