package stream

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// maxLineSize limita o tamanho de uma linha SSE aceita pelo Decoder
const maxLineSize = 1 << 20

// Decoder lê eventos SSE produzidos por um Encoder
type Decoder struct {
	r      *bufio.Reader
	lastID int64
}

// NewDecoder cria um Decoder sobre r
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReaderSize(r, 4096)}
}

// Decode lê o próximo evento. Retorna io.EOF quando o stream termina
// sem um evento parcial pendente e io.ErrUnexpectedEOF quando a conexão
// é encerrada no meio de um evento.
func (d *Decoder) Decode() (Event, error) {
	var (
		data    []string
		idField string
		hasID   bool
		started bool
	)

	for {
		line, err := d.readLine()
		if err != nil {
			if err == io.EOF && started {
				return Event{}, io.ErrUnexpectedEOF
			}
			return Event{}, err
		}

		if line == "" {
			if !started {
				continue
			}
			break
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value := splitField(line)
		switch field {
		case "data":
			started = true
			data = append(data, value)
		case "id":
			started = true
			idField = value
			hasID = true
		default:
			// campos desconhecidos (event, retry) são ignorados
			started = true
		}
	}

	if len(data) == 0 {
		return Event{}, fmt.Errorf("%w: evento sem linha data", ErrInvalidPayload)
	}

	ev, err := ParseData(strings.Join(data, "\n"))
	if err != nil {
		return Event{}, err
	}

	if hasID {
		seq, err := strconv.ParseInt(strings.TrimSpace(idField), 10, 64)
		if err != nil || seq <= 0 {
			return Event{}, fmt.Errorf("%w: id %q", ErrInvalidPayload, idField)
		}
		ev.Seq = seq
		d.lastID = seq
	}

	return ev, nil
}

// LastID retorna o último id recebido, ou zero
func (d *Decoder) LastID() int64 {
	return d.lastID
}

func (d *Decoder) readLine() (string, error) {
	var buf bytes.Buffer
	for {
		chunk, isPrefix, err := d.r.ReadLine()
		if err != nil {
			return "", err
		}
		buf.Write(chunk)
		if buf.Len() > maxLineSize {
			return "", fmt.Errorf("%w: linha excede %d bytes", ErrInvalidPayload, maxLineSize)
		}
		if !isPrefix {
			return buf.String(), nil
		}
	}
}

func splitField(line string) (string, string) {
	i := strings.IndexByte(line, ':')
	if i < 0 {
		return line, ""
	}
	value := line[i+1:]
	value = strings.TrimPrefix(value, " ")
	return line[:i], value
}

// ParseData interpreta o conteúdo de uma linha "data:"
func ParseData(data string) (Event, error) {
	if data == DoneMarker {
		return Done(), nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(data), &fields); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	var ev Event
	switch {
	case has(fields, "content"):
		if len(fields) != 1 {
			return Event{}, fmt.Errorf("%w: campos extras em content-delta", ErrInvalidPayload)
		}
		ev.Type = TypeContent
		if err := json.Unmarshal(fields["content"], &ev.Content); err != nil {
			return Event{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
	case has(fields, "suggestedTitle"):
		if len(fields) != 1 {
			return Event{}, fmt.Errorf("%w: campos extras em metadata", ErrInvalidPayload)
		}
		ev.Type = TypeMetadata
		if err := json.Unmarshal(fields["suggestedTitle"], &ev.Title); err != nil {
			return Event{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
	case has(fields, "error"):
		ev.Type = TypeError
		if err := json.Unmarshal(fields["error"], &ev.Code); err != nil {
			return Event{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		if raw, ok := fields["message"]; ok {
			if err := json.Unmarshal(raw, &ev.Message); err != nil {
				return Event{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
			}
		}
	default:
		return Event{}, fmt.Errorf("%w: tipo de evento desconhecido", ErrInvalidPayload)
	}

	if err := ev.Validate(); err != nil {
		return Event{}, err
	}
	return ev, nil
}

func has(fields map[string]json.RawMessage, key string) bool {
	_, ok := fields[key]
	return ok
}
