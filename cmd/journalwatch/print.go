package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"

	"github.com/fatih/color"

	"github.com/jpalmerr/journalwatch"
)

var codeColors = []*color.Color{
	color.New(color.FgCyan),
	color.New(color.FgGreen),
	color.New(color.FgYellow),
	color.New(color.FgMagenta),
	color.New(color.FgBlue),
	color.New(color.FgRed),
}

// printer writes one line per event: id, colorized code, compact payload.
type printer struct {
	out  io.Writer
	json bool
}

func (p printer) print(ev journalwatch.Event) error {
	if p.json {
		_, err := fmt.Fprintf(p.out, "%s\n", compact(ev.Payload))
		return err
	}

	code := ev.Code
	if code == "" {
		code = "-"
	}
	_, err := fmt.Fprintf(p.out, "%s %s %s\n", ev.ID, colorFor(code).Sprint(code), compact(ev.Payload))
	return err
}

// colorFor picks a stable color per event code.
func colorFor(code string) *color.Color {
	h := fnv.New32a()
	_, _ = h.Write([]byte(code))
	return codeColors[h.Sum32()%uint32(len(codeColors))]
}

func compact(raw json.RawMessage) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	return buf.Bytes()
}
