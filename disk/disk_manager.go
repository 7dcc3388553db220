package disk

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"
)

const DefaultPageSize int = 4096

// FlushInstantly should normally be set to true. If it is false then data might be lost even after a successful write
// operation when power loss occurs before os flushes its io buffers. When it is false tests run faster, and since
// crash recovery is not provided anyway it is false by default.
const FlushInstantly bool = false

var ErrPartialPage = errors.New("file contains a partial page")

// IDiskManager reads and writes fixed size pages of one flat file. Page n lives at byte offset n*PageSize and the
// file has no header.
type IDiskManager interface {
	ReadPage(pageNo int, dest []byte) error
	WritePage(data []byte, pageNo int) error

	// AppendPage extends the file with one zero filled page and returns its page number.
	AppendPage() (int, error)
	NumPages() (int, error)
	PageSize() int
	Path() string
	Close() error
}

var _ IDiskManager = &Manager{}

type Manager struct {
	file     *os.File
	filename string
	pageSize int

	// mu serializes appends. Reads and writes use positional io and do not need it.
	mu sync.Mutex
}

// NewDiskManager opens or creates file. The returned bool is true if the file is created by this call.
func NewDiskManager(file string, pageSize int) (*Manager, bool, error) {
	if pageSize <= 0 {
		return nil, false, errors.Errorf("invalid page size %d", pageSize)
	}

	f, err := os.OpenFile(file, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, false, errors.Wrapf(err, "open %s", file)
	}

	stats, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, false, errors.Wrapf(err, "stat %s", file)
	}

	if stats.Size()%int64(pageSize) != 0 {
		_ = f.Close()
		return nil, false, errors.Wrapf(ErrPartialPage, "%s has size %d with page size %d", file, stats.Size(), pageSize)
	}

	return &Manager{file: f, filename: file, pageSize: pageSize}, stats.Size() == 0, nil
}

func (d *Manager) ReadPage(pageNo int, dest []byte) error {
	if len(dest) != d.pageSize {
		return errors.Errorf("destination has %d bytes, page size is %d", len(dest), d.pageSize)
	}

	n, err := d.file.ReadAt(dest, int64(d.pageSize)*int64(pageNo))
	if err == io.EOF && n == 0 {
		return errors.Wrapf(io.EOF, "page %d is beyond the end of %s", pageNo, d.filename)
	}
	if err != nil && err != io.EOF {
		return errors.Wrapf(err, "read page %d", pageNo)
	}
	if n != d.pageSize {
		return errors.Wrapf(ErrPartialPage, "page %d: read %d bytes", pageNo, n)
	}

	return nil
}

func (d *Manager) WritePage(data []byte, pageNo int) error {
	if len(data) != d.pageSize {
		panic(fmt.Sprintf("written bytes are not equal to page size: %d != %d", len(data), d.pageSize))
	}

	if _, err := d.file.WriteAt(data, int64(d.pageSize)*int64(pageNo)); err != nil {
		return errors.Wrapf(err, "write page %d", pageNo)
	}

	if FlushInstantly {
		if err := d.file.Sync(); err != nil {
			return errors.Wrap(err, "sync")
		}
	}

	return nil
}

func (d *Manager) AppendPage() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	n, err := d.NumPages()
	if err != nil {
		return 0, err
	}

	if err := d.WritePage(make([]byte, d.pageSize), n); err != nil {
		return 0, err
	}

	return n, nil
}

func (d *Manager) NumPages() (int, error) {
	stats, err := d.file.Stat()
	if err != nil {
		return 0, errors.Wrap(err, "stat")
	}

	return int(stats.Size() / int64(d.pageSize)), nil
}

func (d *Manager) PageSize() int {
	return d.pageSize
}

func (d *Manager) Path() string {
	return d.filename
}

func (d *Manager) Close() error {
	return d.file.Close()
}
