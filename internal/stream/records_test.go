package stream

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitterHoldsPartialRecords(t *testing.T) {
	t.Parallel()

	input := "data: a\n\n: ping\n\ndata: b\n\ndata: tail"
	for split := 0; split <= len(input); split++ {
		var (
			s   Splitter
			got []string
		)
		collect := func(record []byte) { got = append(got, string(record)) }
		s.Split([]byte(input[:split]), collect)
		s.Split([]byte(input[split:]), collect)
		require.Equal(t, []string{"data: a", ": ping", "data: b"}, got, "split at %d", split)
		require.Equal(t, "data: tail", string(s.Pending()))
	}
}

func TestParseFields(t *testing.T) {
	t.Parallel()

	f := ParseFields([]byte(": comment\nid: 42\r\nevent:job.done\ndata:  padded \ndata: second\nretry: 10"))
	require.Equal(t, "42", f.ID)
	require.Equal(t, "job.done", f.Event)
	require.Equal(t, " padded \nsecond", string(f.Data))

	require.Nil(t, ParseFields([]byte(": ping")).Data)
}

func TestRecordsDropsTailAndStopsEarly(t *testing.T) {
	t.Parallel()

	var got []string
	for record, err := range Records(context.Background(), strings.NewReader("data: 1\n\ndata: 2\n\ndata: 3")) {
		require.NoError(t, err)
		got = append(got, string(record))
	}
	require.Equal(t, []string{"data: 1", "data: 2"}, got)

	for record := range Records(context.Background(), strings.NewReader("data: 1\n\ndata: 2\n\n")) {
		require.Equal(t, "data: 1", string(record))
		break
	}
}

func TestRecordsSurfacesTransportFailureOnce(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection reset")
	var (
		records []string
		errs    []error
	)
	for record, err := range Records(context.Background(), &flakyReader{data: []byte("data: 1\n\ndata: 2"), err: boom}) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		records = append(records, string(record))
	}
	require.Equal(t, []string{"data: 1"}, records)
	require.Len(t, errs, 1)
	require.ErrorIs(t, errs[0], boom)
}
