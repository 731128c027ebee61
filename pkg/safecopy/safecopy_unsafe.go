// Copyright 2018 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package safecopy

import (
	"errors"
	"sync/atomic"
	"unsafe"

	"gvisor.dev/faultguard/pkg/faultguard"
)

// bytesAt returns the n bytes at p as a slice.
func bytesAt(p unsafe.Pointer, n uintptr) []byte {
	return unsafe.Slice((*byte)(p), n)
}

// guarded runs f as a guarded call. A fault is returned as a SegvError; lo is
// reported when the platform gives no address.
func guarded(lo uintptr, f func()) error {
	err := faultguard.Try(f)
	if err == nil {
		return nil
	}
	var fe *faultguard.FaultError
	if !errors.As(err, &fe) {
		return err
	}
	if fe.HasAddr {
		return SegvError{fe.Addr}
	}
	return SegvError{lo}
}

// copyChunks copies n bytes from src to dst, one page-bounded chunk at a
// time. It returns the number of bytes copied by chunks that did not fault.
func copyChunks(dst, src unsafe.Pointer, n uintptr) (uintptr, error) {
	var done uintptr
	for done < n {
		d, s := unsafe.Add(dst, done), unsafe.Add(src, done)
		if d == nil || s == nil {
			return done, SegvError{0}
		}
		chunk := n - done
		if l := pageLeft(uintptr(s)); l < chunk {
			chunk = l
		}
		if l := pageLeft(uintptr(d)); l < chunk {
			chunk = l
		}
		lo := uintptr(s)
		if uintptr(d) < lo {
			lo = uintptr(d)
		}
		if err := guarded(lo, func() { copy(bytesAt(d, chunk), bytesAt(s, chunk)) }); err != nil {
			return done, err
		}
		done += chunk
	}
	return done, nil
}

// CopyIn copies len(dst) bytes from src to dst. It returns the number of bytes
// copied and an error if a fault occurs while reading from src.
func CopyIn(dst []byte, src unsafe.Pointer) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	n, err := copyChunks(unsafe.Pointer(&dst[0]), src, uintptr(len(dst)))
	return int(n), err
}

// CopyOut copies len(src) bytes from src to dst. It returns the number of
// bytes copied and an error if a fault occurs while writing to dst.
func CopyOut(dst unsafe.Pointer, src []byte) (int, error) {
	if len(src) == 0 {
		return 0, nil
	}
	n, err := copyChunks(dst, unsafe.Pointer(&src[0]), uintptr(len(src)))
	return int(n), err
}

// Copy copies toCopy bytes from src to dst. It returns the number of bytes
// copied and an error if a fault occurs while reading from src or writing to
// dst.
//
// If [src, src+toCopy) and [dst, dst+toCopy) overlap, the resulting contents
// of dst are unspecified.
func Copy(dst, src unsafe.Pointer, toCopy uintptr) (uintptr, error) {
	return copyChunks(dst, src, toCopy)
}

// ZeroOut writes toZero zero bytes to dst. It returns the number of bytes
// written and an error if a fault occurs while writing to dst.
func ZeroOut(dst unsafe.Pointer, toZero uintptr) (uintptr, error) {
	var done uintptr
	for done < toZero {
		d := unsafe.Add(dst, done)
		if d == nil {
			return done, SegvError{0}
		}
		chunk := toZero - done
		if l := pageLeft(uintptr(d)); l < chunk {
			chunk = l
		}
		if err := guarded(uintptr(d), func() { clear(bytesAt(d, chunk)) }); err != nil {
			return done, err
		}
		done += chunk
	}
	return done, nil
}

// SwapUint32 is equivalent to sync/atomic.SwapUint32, except that it returns
// an error if a fault occurs while accessing ptr, or if ptr is not aligned to
// a 4-byte boundary.
func SwapUint32(ptr unsafe.Pointer, new uint32) (uint32, error) {
	if addr := uintptr(ptr); addr&3 != 0 {
		return 0, AlignmentError{addr, 4}
	}
	var old uint32
	err := guarded(uintptr(ptr), func() { old = atomic.SwapUint32((*uint32)(ptr), new) })
	return old, err
}

// SwapUint64 is equivalent to sync/atomic.SwapUint64, except that it returns
// an error if a fault occurs while accessing ptr, or if ptr is not aligned to
// an 8-byte boundary.
func SwapUint64(ptr unsafe.Pointer, new uint64) (uint64, error) {
	if addr := uintptr(ptr); addr&7 != 0 {
		return 0, AlignmentError{addr, 8}
	}
	var old uint64
	err := guarded(uintptr(ptr), func() { old = atomic.SwapUint64((*uint64)(ptr), new) })
	return old, err
}

// CompareAndSwapUint32 is like sync/atomic.CompareAndSwapUint32, but returns
// the value previously stored at ptr. It returns an error if a fault occurs
// while accessing ptr, or if ptr is not aligned to a 4-byte boundary.
func CompareAndSwapUint32(ptr unsafe.Pointer, old, new uint32) (uint32, error) {
	if addr := uintptr(ptr); addr&3 != 0 {
		return 0, AlignmentError{addr, 4}
	}
	var prev uint32
	err := guarded(uintptr(ptr), func() {
		p := (*uint32)(ptr)
		for {
			prev = atomic.LoadUint32(p)
			if prev != old || atomic.CompareAndSwapUint32(p, old, new) {
				return
			}
		}
	})
	return prev, err
}

// pointerAt converts addr to a pointer. Addresses in the first page are
// reported as a fault at addr without being converted.
func pointerAt(addr uintptr) (unsafe.Pointer, error) {
	if addr < nilPageEnd {
		return nil, SegvError{addr}
	}
	return unsafe.Pointer(addr), nil
}

// CopyInAddr is like CopyIn, but reads from the raw address src.
func CopyInAddr(dst []byte, src uintptr) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	p, err := pointerAt(src)
	if err != nil {
		return 0, err
	}
	return CopyIn(dst, p)
}

// CopyOutAddr is like CopyOut, but writes to the raw address dst.
func CopyOutAddr(dst uintptr, src []byte) (int, error) {
	if len(src) == 0 {
		return 0, nil
	}
	p, err := pointerAt(dst)
	if err != nil {
		return 0, err
	}
	return CopyOut(p, src)
}

// ZeroOutAddr is like ZeroOut, but writes to the raw address dst.
func ZeroOutAddr(dst, toZero uintptr) (uintptr, error) {
	if toZero == 0 {
		return 0, nil
	}
	p, err := pointerAt(dst)
	if err != nil {
		return 0, err
	}
	return ZeroOut(p, toZero)
}

// LoadUint32Addr is like LoadUint32, but reads from the raw address addr.
func LoadUint32Addr(addr uintptr) (uint32, error) {
	if addr&3 != 0 {
		return 0, AlignmentError{addr, 4}
	}
	p, err := pointerAt(addr)
	if err != nil {
		return 0, err
	}
	return LoadUint32(p)
}

// LoadUint32 is like sync/atomic.LoadUint32, but returns an error if a fault
// occurs while reading from ptr.
//
// Preconditions: ptr must be aligned to a 4-byte boundary.
func LoadUint32(ptr unsafe.Pointer) (uint32, error) {
	if addr := uintptr(ptr); addr&3 != 0 {
		return 0, AlignmentError{addr, 4}
	}
	var val uint32
	err := guarded(uintptr(ptr), func() { val = atomic.LoadUint32((*uint32)(ptr)) })
	return val, err
}
