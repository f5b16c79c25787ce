package cotahist

import (
	"bufio"
	"context"
	"errors"
	"io"

	"github.com/rotisserie/eris"
)

const readerBufSize = 1 << 20

// Stats counts line dispositions for one file.
type Stats struct {
	Lines     int
	Records   int
	Sentinels int
	Malformed int
	Unknown   int
}

// Each streams r line by line through ParseLine and calls fn for every
// accepted record. It stops at EOF, on the first fn error, or when ctx is
// cancelled.
func Each(ctx context.Context, r io.Reader, idx Index, fn func(Record) error) (Stats, error) {
	var st Stats
	br := bufio.NewReaderSize(r, readerBufSize)

	for {
		line, err := br.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			// Oversized line: drop the rest of it.
			st.Lines++
			st.Malformed++
			for errors.Is(err, bufio.ErrBufferFull) {
				_, err = br.ReadSlice('\n')
			}
			if err != nil && !errors.Is(err, io.EOF) {
				return st, eris.Wrap(err, "cotahist: read")
			}
			if errors.Is(err, io.EOF) {
				return st, nil
			}
			continue
		}

		if len(line) > 0 {
			st.Lines++
			if st.Lines&0xfff == 0 {
				if cerr := ctx.Err(); cerr != nil {
					return st, eris.Wrap(cerr, "cotahist: cancelled")
				}
			}

			rec, why := ParseLine(line, idx)
			switch why {
			case Accepted:
				st.Records++
				if ferr := fn(rec); ferr != nil {
					return st, ferr
				}
			case Sentinel:
				st.Sentinels++
			case UnknownSymbol:
				st.Unknown++
			default:
				if len(TrimEOL(line)) > 0 {
					st.Malformed++
				}
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				return st, nil
			}
			return st, eris.Wrap(err, "cotahist: read")
		}
	}
}
