//go:build darwin || freebsd

package main

import "syscall"

// redirectStdin makes fd the process standard input.
func redirectStdin(fd int) error {
	return syscall.Dup2(fd, 0)
}
