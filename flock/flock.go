// Package flock provides advisory file locking built on fcntl(F_SETLK),
// not the BSD flock() syscall — so ReadPid can recover the holder's pid
// via F_GETLK even when the lock itself is contended.
package flock

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// Open opens (creating if needed) the lock file at path without disturbing
// its contents. The returned file must be kept open for as long as the lock
// is held; closing it releases the lock.
//
// Some callers lock a disposable side-car file, but others (vmlock.AcquireVM)
// lock a VM Directory's content-bearing config.json directly — os.Create
// would truncate that document on every lock acquisition, so this never
// truncates.
func Open(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
}

// Lock attempts to acquire an exclusive lock on file without blocking. It
// returns an error wrapping unix.EAGAIN/unix.EACCES if another process
// already holds the lock.
func Lock(file *os.File) error {
	lock := unix.Flock_t{
		Type:   unix.F_WRLCK,
		Whence: int16(unix.SEEK_SET),
		Start:  0,
		Len:    0,
	}
	return unix.FcntlFlock(file.Fd(), unix.F_SETLK, &lock)
}

// WaitLock acquires an exclusive lock on file, blocking until it becomes
// available or the calling goroutine is interrupted by a signal.
func WaitLock(file *os.File) error {
	lock := unix.Flock_t{
		Type:   unix.F_WRLCK,
		Whence: int16(unix.SEEK_SET),
		Start:  0,
		Len:    0,
	}
	return unix.FcntlFlock(file.Fd(), unix.F_SETLKW, &lock)
}

// Unlock releases the lock held on file.
func Unlock(file *os.File) error {
	lock := unix.Flock_t{
		Type:   unix.F_UNLCK,
		Whence: int16(unix.SEEK_SET),
		Start:  0,
		Len:    0,
	}
	return unix.FcntlFlock(file.Fd(), unix.F_SETLK, &lock)
}

// ReadPid reports the pid currently holding an exclusive lock on the file at
// path, or 0 if the file doesn't exist or isn't locked.
func ReadPid(path string) (int, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer file.Close()

	lock := unix.Flock_t{
		Type:   unix.F_WRLCK,
		Whence: int16(unix.SEEK_SET),
		Start:  0,
		Len:    0,
	}
	if err := unix.FcntlFlock(file.Fd(), unix.F_GETLK, &lock); err != nil {
		return 0, err
	}
	if lock.Type == unix.F_UNLCK {
		return 0, nil
	}
	return int(lock.Pid), nil
}
