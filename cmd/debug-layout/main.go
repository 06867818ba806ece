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

// Command debug-layout prints the shared structure layout and exercises
// the embedded VBI ring of a scratch region.
package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"runtime"

	"github.com/tomzox/nxtvepg-sub005/internal/transport/shm"
)

func main() {
	fmt.Printf("=== Shared Structure Layout ===\n")
	fmt.Printf("Protocol version: %s (0x%06X)\n", shm.ProtocolVersion, uint32(shm.ProtocolVersion))
	fmt.Printf("Structure size: %d bytes (0x%X)\n", shm.StructSize, shm.StructSize)
	for _, f := range shm.Layout() {
		fmt.Printf("  0x%04X  %-18s %6d bytes\n", f.Offset, f.Name, f.Size)
	}

	names := shm.NamesFor("<base>")
	fmt.Printf("\n=== Named Objects ===\n")
	fmt.Printf("Mapping: %s\n", names.Mapping)
	fmt.Printf("Creation lock: %s\n", names.Lock)

	if runtime.GOOS != "linux" {
		fmt.Println("\nSkipping ring tests on non-Linux platform")
		return
	}

	base := fmt.Sprintf("debug-layout-%d", os.Getpid())
	region, err := shm.CreateRegion(base, nil)
	if err != nil {
		log.Fatalf("Failed to create region: %v", err)
	}
	defer os.Remove(shm.NamesFor(base).Lock)
	defer region.Close()

	ring := region.Vbi()
	fmt.Printf("\n=== VBI Ring ===\n")
	fmt.Printf("Capacity: %d bytes\n", ring.Capacity())

	fmt.Printf("\n=== Single Write Tests ===\n")
	testSizes := []int{10, 42, 100, 1000, 5000, 10000, 32768, 32769}
	for _, size := range testSizes {
		data := make([]byte, size)
		for i := range data {
			data[i] = byte(i % 256)
		}

		if err := ring.Write(data); err != nil {
			fmt.Printf("Size %d bytes: FAIL (%v)\n", size, err)
			continue
		}
		fmt.Printf("Size %d bytes: OK\n", size)
		readData := make([]byte, size)
		if n, err := ring.Read(readData); err != nil || n != size {
			fmt.Printf("  read back %d bytes: %v\n", n, err)
		}
	}

	// Fill without reading; the producer gets ErrVbiFull instead of blocking.
	fmt.Printf("\n=== Overflow Test ===\n")
	chunkSize := 1000
	totalWritten := 0
	for i := 0; i < 100; i++ {
		data := make([]byte, chunkSize)
		for j := range data {
			data[j] = byte((i + j) % 256)
		}

		err := ring.Write(data)
		if errors.Is(err, shm.ErrVbiFull) {
			fmt.Printf("Full after %d bytes written (%d chunks)\n", totalWritten, i)
			break
		}
		if err != nil {
			log.Fatalf("Write failed: %v", err)
		}
		totalWritten += chunkSize
	}
	fmt.Printf("Ring state: %+v\n", ring.DebugState())
}
