//go:build !darwin && !freebsd && !netbsd && !openbsd && !linux && !windows

package logger

func isTerminal(uintptr) bool { return false }
