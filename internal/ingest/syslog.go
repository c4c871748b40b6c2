package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/schoolguard/device-guardian/internal/events"
	"github.com/schoolguard/device-guardian/internal/syslog"
)

// SyslogResult summarises one syslog batch.
type SyslogResult struct {
	Received int     `json:"received"`
	Parsed   int     `json:"parsed"`
	Skipped  int     `json:"skipped"`
	EventIDs []int64 `json:"event_ids"`
	Alerts   int     `json:"alerts"`
}

type syslogJSON struct {
	Message  *string  `json:"message"`
	Messages []string `json:"messages"`
}

// SyslogLines extracts log lines from a request body: a JSON object with
// "message" or "messages", a JSON array of strings, or raw text with one line
// per entry.
func SyslogLines(body []byte) ([]string, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrInputMalformed)
	}
	switch trimmed[0] {
	case '{':
	case '[':
		// Raw lines may start with a bracketed timestamp; those stay text.
		var messages []string
		if err := json.Unmarshal(trimmed, &messages); err != nil {
			return syslog.Lines(string(trimmed)), nil
		}
		lines := []string{}
		for _, m := range messages {
			lines = append(lines, syslog.Lines(m)...)
		}
		return lines, nil
	default:
		return syslog.Lines(string(trimmed)), nil
	}

	var payload syslogJSON
	if err := json.Unmarshal(trimmed, &payload); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %v", ErrInputMalformed, err)
	}
	var lines []string
	if payload.Message != nil {
		lines = append(lines, syslog.Lines(*payload.Message)...)
	}
	for _, m := range payload.Messages {
		lines = append(lines, syslog.Lines(m)...)
	}
	if payload.Message == nil && payload.Messages == nil {
		return nil, fmt.Errorf("%w: expected \"message\" or \"messages\"", ErrInputMalformed)
	}
	return lines, nil
}

// IngestSyslog authenticates and then processes every line. Lines the parser
// finds not relevant are counted as skipped. A storage failure stops the
// batch; lines before it stay committed.
func (p *Pipeline) IngestSyslog(ctx context.Context, schoolID int64, apiKey, source string, lines []string) (*SyslogResult, error) {
	if err := p.Authenticate(ctx, schoolID, apiKey); err != nil {
		return nil, err
	}
	source = strings.TrimSpace(source)

	res := &SyslogResult{Received: len(lines), EventIDs: []int64{}}
	for _, r := range syslog.ParseBatch(lines) {
		p.metrics.RecordEventReceived()
		if !r.Relevant {
			res.Skipped++
			p.metrics.RecordEventRejected()
			continue
		}

		ev := events.NormalizeSyslog(schoolID, source, r.Line, r.Fields, p.now())
		out, err := p.process(ctx, ev)
		if err != nil {
			return res, err
		}
		res.Parsed++
		res.EventIDs = append(res.EventIDs, out.Event.ID)
		res.Alerts += len(out.Alerts)
	}
	return res, nil
}
