package db

import (
	"time"

	"github.com/pkg/errors"
	"heapdb/buffer"
	"heapdb/concurrency"
	"heapdb/disk"
)

type Options struct {
	// Dir keeps one file per table
	Dir string

	// heap storage
	PageSize int

	// buffer pool
	BufferPages int

	// lock manager
	LockTimeout time.Duration

	// transaction manager
	MaxTxnRetries int

	// LogLevel is one of debug, info, warn, error. LogFile is appended to; logs go to stderr if it is empty.
	LogLevel string
	LogFile  string
}

func DefaultOptions(dir string) Options {
	return Options{
		Dir: dir,

		PageSize: disk.DefaultPageSize,

		BufferPages: buffer.DefaultCapacity,

		LockTimeout: buffer.DefaultLockTimeout,

		MaxTxnRetries: concurrency.DefaultMaxRetries,

		LogLevel: "info",
	}
}

var (
	ErrEmptyDir           = errors.New("db: data directory must be set")
	ErrZeroBufferCapacity = errors.New("db: buffer pool capacity cannot be zero")
	ErrInvalidPageSize    = errors.New("db: page size must be positive")
	ErrNonPositiveTimeout = errors.New("db: lock timeout must be positive")
	ErrNegativeTxnRetries = errors.New("db: transaction retries cannot be negative")
)

func (opt *Options) Check() error {
	if opt.Dir == "" {
		return ErrEmptyDir
	}

	if opt.BufferPages <= 0 {
		return ErrZeroBufferCapacity
	}

	if opt.PageSize <= 0 {
		return ErrInvalidPageSize
	}

	if opt.LockTimeout <= 0 {
		return ErrNonPositiveTimeout
	}

	if opt.MaxTxnRetries < 0 {
		return ErrNegativeTxnRetries
	}

	return nil
}
