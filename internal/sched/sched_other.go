//go:build !linux

package sched

func LockMemory() error { return ErrUnsupported }

func Pin(int) error { return ErrUnsupported }

func SetScheduler(Policy, int) error { return ErrUnsupported }

func SetNice(int) error { return ErrUnsupported }

func Current() (Priority, error) { return Priority{}, ErrUnsupported }
