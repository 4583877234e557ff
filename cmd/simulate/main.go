package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/api"
	"github.com/hackgods/clinic-scheduling/internal/logging"
)

// simulate races concurrent bookings for the same doctor and slot against a
// running api-server. Every round must end with exactly one winner.

type simConfig struct {
	baseURL  string
	tenantID string
	doctor   string
	workers  int
	rounds   int
	timeout  time.Duration
}

type client struct {
	http   *http.Client
	url    string
	tenant string
}

func (c *client) call(ctx context.Context, req api.SchedulingRequest) (api.Response, time.Duration, error) {
	req.TenantID = c.tenant
	body, err := json.Marshal(req)
	if err != nil {
		return api.Response{}, 0, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return api.Response{}, 0, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		return api.Response{}, latency, err
	}
	defer resp.Body.Close()

	var out api.Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return api.Response{}, latency, fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	return out, latency, nil
}

type tally struct {
	mu        sync.Mutex
	byCode    map[string]int
	latencies []time.Duration
	badRounds int
}

func (t *tally) record(code string, latency time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byCode[code]++
	t.latencies = append(t.latencies, latency)
}

func (t *tally) percentile(p float64) time.Duration {
	if len(t.latencies) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), t.latencies...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted[int(p*float64(len(sorted)-1))]
}

func main() {
	var cfg simConfig
	flag.StringVar(&cfg.baseURL, "url", "http://localhost:8080", "api-server base URL")
	flag.StringVar(&cfg.tenantID, "tenant", os.Getenv("SIM_TENANT_ID"), "clinic id to book against")
	flag.StringVar(&cfg.doctor, "doctor", "Dr. Simulação", "doctor name; created on first booking")
	flag.IntVar(&cfg.workers, "workers", 20, "concurrent bookings per slot")
	flag.IntVar(&cfg.rounds, "rounds", 10, "slots to race for")
	flag.DurationVar(&cfg.timeout, "timeout", 10*time.Second, "per request timeout")
	flag.Parse()

	logger := logging.New(os.Getenv("LOG_LEVEL"), "dev").With().Str("service", "simulate").Logger()
	if cfg.tenantID == "" {
		logger.Fatal().Msg("-tenant (or SIM_TENANT_ID) is required; run cmd/seed to create a clinic")
	}

	c := &client{
		http:   &http.Client{Timeout: cfg.timeout},
		url:    cfg.baseURL + "/v1/scheduling",
		tenant: cfg.tenantID,
	}
	ctx := context.Background()

	doctorID, err := ensureDoctor(ctx, c, cfg.doctor)
	if err != nil {
		logger.Fatal().Err(err).Msg("resolve doctor")
	}

	slots, err := freeSlots(ctx, c, doctorID, cfg.rounds)
	if err != nil {
		logger.Fatal().Err(err).Msg("load availability")
	}
	if len(slots) == 0 {
		logger.Fatal().Msg("doctor has no free slots in the search horizon")
	}

	t := &tally{byCode: map[string]int{}}
	started := time.Now()
	for _, slot := range slots {
		race(ctx, c, cfg, slot, t, logger)
	}

	report(logger, t, len(slots), time.Since(started))
	if t.badRounds > 0 {
		os.Exit(1)
	}
}

// ensureDoctor looks the doctor up by name. A missing doctor is created by
// booking a throwaway appointment that is cancelled right away.
func ensureDoctor(ctx context.Context, c *client, name string) (string, error) {
	resp, _, err := c.call(ctx, api.SchedulingRequest{
		Action:        api.ActionListDoctors,
		PatientSearch: &api.PatientSearchPayload{Search: name},
	})
	if err != nil {
		return "", err
	}
	if !resp.Success {
		return "", fmt.Errorf("%s: %s", resp.Code, resp.Error)
	}

	var doctors []api.DoctorResponse
	if err := remarshal(resp.Data, &doctors); err != nil {
		return "", err
	}
	for _, d := range doctors {
		if d.Name == name {
			return d.ID.String(), nil
		}
	}

	created, _, err := c.call(ctx, api.SchedulingRequest{
		Action:  api.ActionCreate,
		Patient: fakePatient(),
		Appointment: &api.AppointmentPayload{
			DoctorName:  name,
			Procedure:   "registration",
			ScheduledAt: time.Now().AddDate(0, 2, 0).Format("2006-01-02") + "T07:00",
		},
	})
	if err != nil {
		return "", err
	}
	if !created.Success {
		return "", fmt.Errorf("%s: %s", created.Code, created.Error)
	}

	var appt api.AppointmentResponse
	if err := remarshal(created.Data, &appt); err != nil {
		return "", err
	}
	if appt.DoctorID == nil {
		return "", fmt.Errorf("appointment %s has no doctor", appt.ID)
	}

	_, _, _ = c.call(ctx, api.SchedulingRequest{
		Action:      api.ActionCancel,
		Appointment: &api.AppointmentPayload{ID: appt.ID.String()},
	})
	return appt.DoctorID.String(), nil
}

func freeSlots(ctx context.Context, c *client, doctorID string, n int) ([]api.SlotResponse, error) {
	resp, _, err := c.call(ctx, api.SchedulingRequest{
		Action:  api.ActionAvailability,
		Filters: &api.FiltersPayload{DoctorID: doctorID, Limit: n},
	})
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("%s: %s", resp.Code, resp.Error)
	}

	var slots []api.SlotResponse
	if err := remarshal(resp.Data, &slots); err != nil {
		return nil, err
	}
	return slots, nil
}

func race(ctx context.Context, c *client, cfg simConfig, slot api.SlotResponse, t *tally, logger zerolog.Logger) {
	scheduledAt := slot.Date.Format(time.RFC3339)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	gate := make(chan struct{})

	for i := 0; i < cfg.workers; i++ {
		wg.Add(1)
		patient := fakePatient()
		go func() {
			defer wg.Done()
			<-gate

			resp, latency, err := c.call(ctx, api.SchedulingRequest{
				Action:  api.ActionCreate,
				Patient: patient,
				Appointment: &api.AppointmentPayload{
					DoctorName:  cfg.doctor,
					Procedure:   "consulta",
					ScheduledAt: scheduledAt,
				},
			})

			code := resp.Code
			switch {
			case err != nil:
				code = "transport_error"
			case resp.Success:
				code = "booked"
				mu.Lock()
				winners++
				mu.Unlock()
			}
			t.record(code, latency)
		}()
	}

	close(gate)
	wg.Wait()

	evt := logger.Info()
	if winners != 1 {
		t.mu.Lock()
		t.badRounds++
		t.mu.Unlock()
		evt = logger.Error()
	}
	evt.Str("slot", scheduledAt).Int("winners", winners).Int("contenders", cfg.workers).Msg("round finished")
}

func report(logger zerolog.Logger, t *tally, rounds int, took time.Duration) {
	evt := logger.Info().
		Int("rounds", rounds).
		Int("bad_rounds", t.badRounds).
		Dur("took", took).
		Dur("p50", t.percentile(0.50)).
		Dur("p95", t.percentile(0.95)).
		Dur("p99", t.percentile(0.99))
	for code, n := range t.byCode {
		evt = evt.Int(code, n)
	}
	evt.Msg("simulation complete")
}

func fakePatient() *api.PatientPayload {
	birth := gofakeit.DateRange(time.Now().AddDate(-90, 0, 0), time.Now().AddDate(-1, 0, 0))
	return &api.PatientPayload{
		Name:      gofakeit.Name(),
		Phone:     fmt.Sprintf("(%02d) 9%04d-%04d", gofakeit.Number(11, 99), gofakeit.Number(0, 9999), gofakeit.Number(0, 9999)),
		BirthDate: birth.Format("2006-01-02"),
	}
}

// remarshal converts the untyped envelope data into a typed DTO.
func remarshal(in any, out any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
