// Package diskio implements a sector-addressable block device backed
// by a real file on the host filesystem, reading and writing sectors
// with golang.org/x/sys/unix.Pread/Pwrite for precise offset-based I/O.
package diskio

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// SectorSize is the fixed block size of every disk this package opens.
const SectorSize = 512

// Disk is a sector-addressable block device.
type Disk struct {
	f       *os.File
	sectors int
}

// Open opens (creating if necessary) a file of exactly nsectors sectors
// to back a Disk. This plays the role of disk_get(ch, dev) for a
// teaching kernel whose only block device is its swap disk (mmap'd
// files go through internal/vfile), rather than a PCI/AHCI
// channel+device pair.
func Open(path string, nsectors int) (*Disk, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("diskio: open %s: %w", path, err)
	}
	size := int64(nsectors) * SectorSize
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, fmt.Errorf("diskio: truncate %s: %w", path, err)
	}
	return &Disk{f: f, sectors: nsectors}, nil
}

// Size returns the disk's capacity in sectors (disk_size).
func (d *Disk) Size() int { return d.sectors }

// ReadSector reads exactly SectorSize bytes from sector sec into buf
// (disk_read). buf must be at least SectorSize bytes.
func (d *Disk) ReadSector(sec int, buf []byte) error {
	if sec < 0 || sec >= d.sectors {
		return fmt.Errorf("diskio: sector %d out of range (0..%d)", sec, d.sectors)
	}
	n, err := unix.Pread(int(d.f.Fd()), buf[:SectorSize], int64(sec)*SectorSize)
	if err != nil {
		return fmt.Errorf("diskio: pread sector %d: %w", sec, err)
	}
	if n != SectorSize {
		return fmt.Errorf("diskio: short read at sector %d: got %d bytes", sec, n)
	}
	return nil
}

// WriteSector writes exactly SectorSize bytes from buf to sector sec
// (disk_write).
func (d *Disk) WriteSector(sec int, buf []byte) error {
	if sec < 0 || sec >= d.sectors {
		return fmt.Errorf("diskio: sector %d out of range (0..%d)", sec, d.sectors)
	}
	n, err := unix.Pwrite(int(d.f.Fd()), buf[:SectorSize], int64(sec)*SectorSize)
	if err != nil {
		return fmt.Errorf("diskio: pwrite sector %d: %w", sec, err)
	}
	if n != SectorSize {
		return fmt.Errorf("diskio: short write at sector %d: wrote %d bytes", sec, n)
	}
	return nil
}

// Close releases the backing file.
func (d *Disk) Close() error { return d.f.Close() }
