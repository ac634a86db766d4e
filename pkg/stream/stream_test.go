package stream

import (
	"bytes"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncoder_WireFormat(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf, false)

	require.NoError(t, enc.Encode(Content("Hello")))
	require.NoError(t, enc.Encode(Metadata("Tax Compliance Discussion")))
	require.NoError(t, enc.Encode(Done()))

	want := "data: {\"content\":\"Hello\"}\n\n" +
		"data: {\"suggestedTitle\":\"Tax Compliance Discussion\"}\n\n" +
		"data: [DONE]\n\n"
	assert.Equal(t, want, buf.String())
}

func TestEncoder_WithIDsAndFlush(t *testing.T) {
	rec := httptest.NewRecorder()
	enc := NewEncoder(rec, true)

	ev := Content(" world")
	ev.Seq = 7
	require.NoError(t, enc.Encode(ev))
	require.NoError(t, enc.KeepAlive())

	assert.True(t, rec.Flushed)
	assert.Equal(t, "id: 7\ndata: {\"content\":\" world\"}\n\n: ping\n\n", rec.Body.String())
	assert.Equal(t, int64(7), enc.LastSent())
}

func TestEncoder_RejectsInvalidEvents(t *testing.T) {
	enc := NewEncoder(io.Discard, false)

	assert.ErrorIs(t, enc.Encode(Content("")), ErrInvalidEvent)
	assert.ErrorIs(t, enc.Encode(Metadata("Re: invoices")), ErrInvalidTitle)
	assert.ErrorIs(t, enc.Encode(Failure("", "boom")), ErrInvalidEvent)
}

func TestDecoder_RoundTripPreservesOrderAndSeq(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf, true)

	fragments := []string{"Für", " tax", " season:", " 🎉", " \"quoted\""}
	seq := int64(0)
	for _, f := range fragments {
		seq++
		ev := Content(f)
		ev.Seq = seq
		require.NoError(t, enc.Encode(ev))
	}
	require.NoError(t, enc.KeepAlive())
	fail := Failure(CodeGenerationFailed, "upstream closed")
	fail.Seq = seq + 1
	require.NoError(t, enc.Encode(fail))

	dec := NewDecoder(&buf)
	var got strings.Builder
	for i := range fragments {
		ev, err := dec.Decode()
		require.NoError(t, err)
		assert.Equal(t, TypeContent, ev.Type)
		assert.Equal(t, int64(i+1), ev.Seq)
		got.WriteString(ev.Content)
	}
	assert.Equal(t, strings.Join(fragments, ""), got.String())

	ev, err := dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, TypeError, ev.Type)
	assert.Equal(t, CodeGenerationFailed, ev.Code)
	assert.Equal(t, "upstream closed", ev.Message)
	assert.True(t, ev.Terminal())
	assert.Equal(t, seq+1, dec.LastID())

	_, err = dec.Decode()
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecoder_DoneMarkerIsExactString(t *testing.T) {
	dec := NewDecoder(strings.NewReader("data: [DONE]\n\n"))
	ev, err := dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, TypeDone, ev.Type)

	dec = NewDecoder(strings.NewReader("data: [DONE] \n\n"))
	_, err = dec.Decode()
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestDecoder_TruncatedEvent(t *testing.T) {
	dec := NewDecoder(strings.NewReader("data: {\"content\":\"partial\"}\n"))
	_, err := dec.Decode()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestParseData_RejectsAmbiguousPayloads(t *testing.T) {
	cases := []string{
		`{"content":"a","suggestedTitle":"b"}`,
		`{"other":"x"}`,
		`not json`,
		`{"suggestedTitle":"Invoice: overdue"}`,
		`{"content":""}`,
	}
	for _, c := range cases {
		_, err := ParseData(c)
		assert.Error(t, err, c)
	}
}

func TestValidateTitle(t *testing.T) {
	assert.NoError(t, ValidateTitle("Expense Tracking Discussion"))
	assert.NoError(t, ValidateTitle(strings.Repeat("é", MaxTitleLength)))
	assert.ErrorIs(t, ValidateTitle(strings.Repeat("a", MaxTitleLength+1)), ErrInvalidTitle)
	assert.ErrorIs(t, ValidateTitle("  "), ErrInvalidTitle)
	assert.ErrorIs(t, ValidateTitle("it's"), ErrInvalidTitle)
}
