package session

import "golang.org/x/sys/unix"

func setNoFile(value uint64) error {
	rLimit := unix.Rlimit{
		Cur: int64(value),
		Max: int64(value),
	}
	return unix.Setrlimit(unix.RLIMIT_NOFILE, &rLimit)
}
