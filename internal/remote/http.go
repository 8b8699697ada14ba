package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"habitsync/internal/model"
	"habitsync/pkg/circuitbreaker"
	"habitsync/pkg/metrics"
	"habitsync/pkg/trace"
)

// HTTPService talks to a remote habit document store over JSON/HTTP. Calls
// run behind a circuit breaker so a dead backend fails fast instead of
// stalling every mutation on its timeout.
type HTTPService struct {
	baseURL    string
	httpClient *http.Client
	cb         *circuitbreaker.CircuitBreaker
	logger     *zap.Logger
}

func NewHTTPService(baseURL string, logger *zap.Logger) *HTTPService {
	cbConfig := circuitbreaker.Config{
		FailureThreshold:    3,
		SuccessThreshold:    2,
		Timeout:             30 * time.Second,
		HalfOpenMaxRequests: 2,
	}

	return &HTTPService{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		cb:     circuitbreaker.NewCircuitBreaker(cbConfig),
		logger: logger,
	}
}

func (s *HTTPService) CreateHabit(ctx context.Context, data HabitInput) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	err := s.do(ctx, "createHabit", http.MethodPost, "/habits", data, &out)
	if err != nil {
		return "", err
	}
	return out.ID, nil
}

func (s *HTTPService) UpdateHabit(ctx context.Context, habitID string, data HabitInput) error {
	return s.do(ctx, "updateHabit", http.MethodPut, "/habits/"+habitID, data, nil)
}

func (s *HTTPService) ListHabitsWithEntries(ctx context.Context) ([]*model.Habit, error) {
	var out struct {
		Habits []*model.Habit `json:"habits"`
	}
	if err := s.do(ctx, "listHabitsWithEntries", http.MethodGet, "/habits", nil, &out); err != nil {
		return nil, err
	}
	return out.Habits, nil
}

func (s *HTTPService) GetEntries(ctx context.Context, habitID string) ([]model.Entry, error) {
	var out struct {
		Entries []model.Entry `json:"entries"`
	}
	if err := s.do(ctx, "getEntries", http.MethodGet, "/habits/"+habitID+"/entries", nil, &out); err != nil {
		return nil, err
	}
	return out.Entries, nil
}

func (s *HTTPService) UpdateEntry(ctx context.Context, habitID, entryID string, date time.Time, state model.EntryState) error {
	body := map[string]string{
		"date":  date.Format("2006-01-02"),
		"state": string(state),
	}
	return s.do(ctx, "updateEntry", http.MethodPut, "/habits/"+habitID+"/entries/"+entryID, body, nil)
}

func (s *HTTPService) DeleteHabit(ctx context.Context, habitID string) error {
	return s.do(ctx, "deleteHabit", http.MethodDelete, "/habits/"+habitID, nil, nil)
}

func (s *HTTPService) AddBadges(ctx context.Context, habitID string, newBadges []int) ([]int, error) {
	body := map[string][]int{"badges": newBadges}
	var out struct {
		Badges []int `json:"badges"`
	}
	if err := s.do(ctx, "addBadges", http.MethodPost, "/habits/"+habitID+"/badges", body, &out); err != nil {
		return nil, err
	}
	return out.Badges, nil
}

func (s *HTTPService) SendContactMessage(ctx context.Context, msg ContactMessage) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := s.do(ctx, "sendContactMessage", http.MethodPost, "/contact", msg, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// do runs one JSON request under the breaker, recording latency per
// operation and propagating the trace id header.
func (s *HTTPService) do(ctx context.Context, op, method, path string, body, out interface{}) error {
	return s.cb.Execute(func() error {
		start := time.Now()

		var reqBody *bytes.Reader
		if body != nil {
			b, err := json.Marshal(body)
			if err != nil {
				return err
			}
			reqBody = bytes.NewReader(b)
		} else {
			reqBody = bytes.NewReader(nil)
		}

		req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reqBody)
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		if traceID := trace.FromContext(ctx); traceID != "" {
			req.Header.Set(trace.HeaderName(), traceID)
		}

		resp, err := s.httpClient.Do(req)
		latency := time.Since(start)
		if err != nil {
			metrics.RecordRemoteCallLatency(op, "error", latency)
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			metrics.RecordRemoteCallLatency(op, "5xx", latency)
			return fmt.Errorf("remote service 5xx: %d", resp.StatusCode)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			metrics.RecordRemoteCallLatency(op, fmt.Sprintf("%d", resp.StatusCode), latency)
			return fmt.Errorf("remote service error: %d", resp.StatusCode)
		}

		metrics.RecordRemoteCallLatency(op, "success", latency)

		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			s.logger.Error("Failed to decode remote response",
				zap.String("path", path),
				zap.Error(err),
			)
			return err
		}
		return nil
	})
}
