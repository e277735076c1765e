package events

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"go.uber.org/zap"
)

// Loader reads JSON-lines event streams into per-entity histories.
type Loader struct {
	validator *Validator
	logger    *zap.Logger
}

// NewLoader creates a loader. A nil logger is replaced with a no-op.
func NewLoader(logger *zap.Logger) (*Loader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	v, err := NewValidator()
	if err != nil {
		return nil, err
	}
	return &Loader{validator: v, logger: logger}, nil
}

// LoadHistories reads one JSON event per line and groups them by entity.
// Malformed lines are skipped and counted, not fatal; a fully unreadable
// stream is an error.
func (l *Loader) LoadHistories(r io.Reader) ([]*History, error) {
	byEntity := make(map[string]*History)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var line, rejected int
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		if err := l.validator.ValidateRecord(raw); err != nil {
			rejected++
			l.logger.Warn("rejected event record",
				zap.Int("line", line),
				zap.Error(err))
			continue
		}
		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			rejected++
			l.logger.Warn("unparseable event record",
				zap.Int("line", line),
				zap.Error(err))
			continue
		}
		h, ok := byEntity[ev.EntityID]
		if !ok {
			h = &History{EntityID: ev.EntityID}
			byEntity[ev.EntityID] = h
		}
		h.Events = append(h.Events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read event stream: %w", err)
	}

	histories := make([]*History, 0, len(byEntity))
	for _, h := range byEntity {
		h.Sort()
		histories = append(histories, h)
	}
	sort.Slice(histories, func(i, j int) bool {
		return histories[i].EntityID < histories[j].EntityID
	})

	if rejected > 0 {
		l.logger.Info("event load complete with rejections",
			zap.Int("entities", len(histories)),
			zap.Int("rejected", rejected))
	}
	return histories, nil
}
