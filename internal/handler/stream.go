package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/supplier-orders/internal/model"
)

const streamKeepAlive = 25 * time.Second

// streamState хранит только последнее состояние раздела: медленный клиент пропускает
// промежуточные версии, но всегда получает актуальный список.
type streamState struct {
	mu         sync.Mutex
	entries    []model.OrderEntry
	hasEntries bool
	errs       int
	wake       chan struct{}
}

func newStreamState() *streamState {
	return &streamState{wake: make(chan struct{}, 1)}
}

func (s *streamState) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *streamState) onValue(entries []model.OrderEntry) {
	s.mu.Lock()
	s.entries = entries
	s.hasEntries = true
	s.mu.Unlock()
	s.signal()
}

func (s *streamState) onError(error) {
	s.mu.Lock()
	s.errs++
	s.mu.Unlock()
	s.signal()
}

func (s *streamState) take() (entries []model.OrderEntry, hasEntries bool, errs int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, hasEntries, errs = s.entries, s.hasEntries, s.errs
	s.entries, s.hasEntries, s.errs = nil, false, 0
	return entries, hasEntries, errs
}

func writeEvent(w http.ResponseWriter, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

// StreamWeek держит поток Server-Sent Events с заказами недели.
// Событие entries несёт полный список после каждого изменения, error сообщает о сбое соединения с хранилищем.
func (h *Handler) StreamWeek(w http.ResponseWriter, r *http.Request) {
	company, ok := companyFrom(w, r)
	if !ok {
		return
	}
	week, ok := weekParam(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	state := newStreamState()
	unsubscribe := h.service.SubscribeWeek(company, week, state.onValue, state.onError)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	h.logger.Debug("week stream opened", zap.String("company", company), zap.Stringer("week", week))
	defer h.logger.Debug("week stream closed", zap.String("company", company), zap.Stringer("week", week))

	keepAlive := time.NewTicker(streamKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case <-state.wake:
			entries, hasEntries, errs := state.take()
			if errs > 0 {
				if err := writeEvent(w, "error", map[string]string{"error": storageUnavailableMessage}); err != nil {
					return
				}
			}
			if hasEntries {
				if entries == nil {
					entries = []model.OrderEntry{}
				}
				if err := writeEvent(w, "entries", entries); err != nil {
					return
				}
			}
			flusher.Flush()
		}
	}
}
