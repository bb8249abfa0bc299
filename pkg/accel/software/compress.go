package software

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"

	"github.com/marmos91/dittoaccel/pkg/accel"
)

// boundedWriter writes into a fixed buffer and fails once it is full.
type boundedWriter struct {
	buf []byte
	n   int
}

func (w *boundedWriter) Write(p []byte) (int, error) {
	n := copy(w.buf[w.n:], p)
	w.n += n
	if n < len(p) {
		return n, ErrOutputOverflow
	}
	return n, nil
}

// compress deflates op.Src into op.Dst. The flate writer is reused across
// tasks on the same channel.
func (c *ioChannel) compress(op *accel.CompressOp) error {
	out := &boundedWriter{buf: op.Dst}
	if c.zw == nil {
		zw, err := flate.NewWriter(out, c.m.level)
		if err != nil {
			return fmt.Errorf("%w: %v", accel.ErrInvalidArgument, err)
		}
		c.zw = zw
	} else {
		c.zw.Reset(out)
	}

	for _, b := range op.Src {
		if _, err := c.zw.Write(b); err != nil {
			return err
		}
	}
	if err := c.zw.Close(); err != nil {
		return err
	}
	*op.OutputSize = uint32(out.n)
	return nil
}

func decompress(op *accel.DecompressOp) error {
	readers := make([]io.Reader, len(op.Src))
	for i, b := range op.Src {
		readers[i] = bytes.NewReader(b)
	}
	zr := flate.NewReader(io.MultiReader(readers...))
	defer zr.Close()

	var total int
	eof := false
	for _, d := range op.Dst {
		n, err := readFull(zr, d)
		total += n
		if err == io.EOF {
			eof = true
			break
		}
		if err != nil {
			return fmt.Errorf("%w: %v", accel.ErrInvalidArgument, err)
		}
	}

	if !eof {
		var probe [1]byte
		n, err := zr.Read(probe[:])
		if n > 0 {
			return ErrOutputOverflow
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: %v", accel.ErrInvalidArgument, err)
		}
	}

	if op.OutputSize != nil {
		*op.OutputSize = uint32(total)
	}
	return nil
}

// readFull is io.ReadFull without the translation of a short read into
// io.ErrUnexpectedEOF, which flate uses for truncated streams.
func readFull(r io.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
