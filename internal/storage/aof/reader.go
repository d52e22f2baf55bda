package aof

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/yndnr/memkv/pkg/resp"
)

// ErrCorrupted reports a record that is neither complete nor a torn tail.
var ErrCorrupted = errors.New("aof: corrupted log")

// ReplayResult describes one replay pass.
type ReplayResult struct {
	// Start is the offset replay began at.
	Start int64
	// End is the offset just past the last complete record.
	End int64
	// Size is the file size at open.
	Size int64
	// Records is the number of records handed to the callback.
	Records int
	// Torn is set when the file ends in an incomplete record.
	Torn bool
	// Rewound is set when the requested offset lay past the end of the
	// file and replay restarted from 0.
	Rewound bool
}

// countingReader counts bytes pulled from the file.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// Replay reads records from path starting at byte offset from and calls
// fn for each one. A missing file is an empty log.
//
// Replay stops without error at a torn final record (Torn is set, End
// marks where it starts). A malformed record followed by more data yields
// ErrCorrupted; End still marks the last good record.
func Replay(path string, from int64, fn func(name string, args []string) error) (ReplayResult, error) {
	res := ReplayResult{Start: from, End: from}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		res.Start, res.End = 0, 0
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("aof: open: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return res, fmt.Errorf("aof: stat: %w", err)
	}
	res.Size = stat.Size()

	if from < 0 || from > res.Size {
		res.Rewound = from > res.Size
		from = 0
		res.Start, res.End = 0, 0
	}
	if _, err := f.Seek(from, io.SeekStart); err != nil {
		return res, fmt.Errorf("aof: seek: %w", err)
	}

	cr := &countingReader{r: f}
	br := bufio.NewReaderSize(cr, 64*1024)
	consumed := func() int64 {
		return from + cr.n - int64(br.Buffered())
	}

	for {
		frame, err := resp.ReadFrame(br)
		switch {
		case errors.Is(err, io.EOF):
			return res, nil
		case errors.Is(err, io.ErrUnexpectedEOF):
			res.Torn = true
			return res, nil
		case err != nil:
			return res, fmt.Errorf("%w at offset %d: %v", ErrCorrupted, res.End, err)
		}

		if len(frame) > 0 {
			args := make([]string, len(frame)-1)
			for i, a := range frame[1:] {
				args[i] = string(a)
			}
			if err := fn(string(frame[0]), args); err != nil {
				return res, err
			}
			res.Records++
		}
		res.End = consumed()
	}
}

// Truncate cuts the log at size, dropping a torn tail.
func Truncate(path string, size int64) error {
	if err := os.Truncate(path, size); err != nil {
		return fmt.Errorf("aof: truncate: %w", err)
	}
	return nil
}
