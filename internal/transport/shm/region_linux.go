//go:build linux

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
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// CreateRegion creates the shared structure as server. It takes the
// creation lock, replaces a mapping left behind by a crashed server, sizes
// and maps the new one and writes the protocol metadata. Liveness is left
// false; the caller sets it once its identity is written.
//
// On error nothing is left behind except the (empty) lock file, which a
// retry reuses.
func CreateRegion(base string, opts *Options) (*Region, error) {
	names := NamesFor(base)

	lock, err := os.OpenFile(names.Lock, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, resourceErr("open creation lock", err)
	}
	if err := unix.Flock(int(lock.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		lock.Close()
		if err == unix.EWOULDBLOCK {
			return nil, ErrAlreadyRunning
		}
		return nil, resourceErr("acquire creation lock", err)
	}

	// Undo steps run in reverse order on failure.
	var undo []func()
	rollback := func() {
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
	}
	undo = append(undo, func() {
		unix.Flock(int(lock.Fd()), unix.LOCK_UN)
		lock.Close()
	})

	if err := os.Remove(names.Mapping); err != nil && !os.IsNotExist(err) {
		rollback()
		return nil, resourceErr("remove stale mapping", err)
	}

	file, err := os.OpenFile(names.Mapping, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
	if err != nil {
		rollback()
		return nil, resourceErr("create mapping", err)
	}
	undo = append(undo, func() {
		file.Close()
		os.Remove(names.Mapping)
	})

	// Truncate zero-fills, which also initializes the mutex and both events.
	if err := file.Truncate(int64(StructSize)); err != nil {
		rollback()
		return nil, resourceErr("resize mapping", err)
	}

	mem, err := mmapFile(file, int(StructSize))
	if err != nil {
		rollback()
		return nil, resourceErr("map shared structure", err)
	}
	undo = append(undo, func() { munmapImpl(mem) })

	session, err := uuid.NewRandom()
	if err != nil {
		rollback()
		return nil, resourceErr("generate session id", err)
	}

	r := newRegion(names, SideServer, file, lock, mem)
	r.shared.vbi.hdr.init(VbiRingCapacity)
	r.shared.SetPID(SideServer, uint32(os.Getpid()))
	r.shared.initHeader(StructSize, opts.version(), session)
	return r, nil
}

// OpenRegion opens the structure created by a running server. It returns
// ErrNoServer when no server holds the creation lock. struct_size and
// protocol_version are checked through a mapping of the first page only,
// so a structure of different size is never accessed beyond its header.
func OpenRegion(base string, opts *Options) (*Region, error) {
	names := NamesFor(base)

	lock, err := os.OpenFile(names.Lock, os.O_RDONLY, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoServer
		}
		return nil, resourceErr("open creation lock", err)
	}
	defer lock.Close()

	// Getting a shared lock means nobody holds it exclusively.
	switch err := unix.Flock(int(lock.Fd()), unix.LOCK_SH|unix.LOCK_NB); err {
	case nil:
		unix.Flock(int(lock.Fd()), unix.LOCK_UN)
		return nil, ErrNoServer
	case unix.EWOULDBLOCK:
	default:
		return nil, resourceErr("probe creation lock", err)
	}

	file, err := os.OpenFile(names.Mapping, os.O_RDWR, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoServer
		}
		return nil, resourceErr("open mapping", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, resourceErr("stat mapping", err)
	}
	// A server between creating the file and writing the header is not
	// ready yet rather than incompatible.
	if info.Size() < headerSize {
		file.Close()
		return nil, ErrNoServer
	}

	if err := checkHeader(file, info.Size(), opts.version()); err != nil {
		file.Close()
		return nil, err
	}
	if info.Size() < int64(StructSize) {
		file.Close()
		return nil, &SizeMismatchError{Expected: info.Size(), Found: int64(StructSize)}
	}

	mem, err := mmapFile(file, int(StructSize))
	if err != nil {
		file.Close()
		return nil, resourceErr("map shared structure", err)
	}
	return newRegion(names, SideClient, file, nil, mem), nil
}

// checkHeader maps the metadata prefix alone and validates it.
func checkHeader(file *os.File, fileSize int64, want Version) error {
	n := int64(os.Getpagesize())
	if fileSize < n {
		n = fileSize
	}
	prefix, err := mmapFile(file, int(n))
	if err != nil {
		return resourceErr("map structure header", err)
	}
	defer munmapImpl(prefix)

	hdr := (*[2]uint32)(unsafe.Pointer(&prefix[0]))
	size := atomic.LoadUint32(&hdr[0])
	version := Version(atomic.LoadUint32(&hdr[1]))
	// struct_size is written last, so zero means the header is not yet
	// initialized.
	if size == 0 {
		return ErrNoServer
	}
	if size != StructSize {
		return &SizeMismatchError{Expected: int64(size), Found: int64(StructSize)}
	}
	if version != want {
		return &VersionMismatchError{Expected: version, Found: want}
	}
	return nil
}

// release unmaps the structure and closes the handles. The server removes
// the mapping before releasing the creation lock, so a client never opens
// a mapping whose server has gone.
func (r *Region) release() error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if r.side == SideServer {
		if err := os.Remove(r.names.Mapping); err != nil && !os.IsNotExist(err) {
			keep(resourceErr("remove mapping", err))
		}
	}
	if r.mem != nil && !r.leak.Load() {
		keep(munmapImpl(r.mem))
	}
	r.mem = nil
	if r.file != nil {
		keep(r.file.Close())
		r.file = nil
	}
	if r.lock != nil {
		unix.Flock(int(r.lock.Fd()), unix.LOCK_UN)
		keep(r.lock.Close())
		r.lock = nil
	}
	return firstErr
}

// mmapFile memory maps a file
func mmapFile(file *os.File, size int) ([]byte, error) {
	data, err := unix.Mmap(int(file.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap failed: %w", err)
	}
	return data, nil
}

// munmapImpl unmaps a memory-mapped region
func munmapImpl(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if err := unix.Munmap(data); err != nil {
		return fmt.Errorf("munmap failed: %w", err)
	}
	return nil
}
