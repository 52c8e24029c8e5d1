package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medilink/session-booking/internal/db"
)

// Load generator for the booking API. Hammers session booking with concurrent
// patients to surface queue-position races, then mixes in payment completion
// and running-status reads.

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	PaymentRatio float64
	PostgresDSN  string
}

type DataPool struct {
	Sessions []uuid.UUID

	mu           sync.RWMutex
	appointments []string // appointment numbers created during the run
	phones       []string
}

func (dp *DataPool) AddAppointment(number, phone string) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, number)
	dp.phones = append(dp.phones, phone)
}

func (dp *DataPool) RandomAppointment() (string, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return "", false
	}
	return dp.appointments[rand.Intn(len(dp.appointments))], true
}

func (dp *DataPool) RandomPhone() (string, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.phones) == 0 {
		return "", false
	}
	return dp.phones[rand.Intn(len(dp.phones))], true
}

type OperationMetrics struct {
	Total    int64
	Success  int64
	Conflict int64
	Error    int64

	mu        sync.Mutex
	latencies []time.Duration
}

func (om *OperationMetrics) Record(latency time.Duration, status int) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case status >= 200 && status < 300:
		atomic.AddInt64(&om.Success, 1)
	case status == http.StatusConflict || status == http.StatusTooManyRequests:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.latencies = append(om.latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95, max time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.latencies) == 0 {
		return 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.latencies))
	copy(latencies, om.latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	p50 = latencies[len(latencies)*50/100]
	p95 = latencies[min(len(latencies)*95/100, len(latencies)-1)]
	max = latencies[len(latencies)-1]
	return avg, p50, p95, max
}

func main() {
	log.SetFlags(log.LstdFlags)
	cfg := loadSimConfig()

	log.Printf("simulate: url=%s duration=%s workers=%d", cfg.APIBaseURL, cfg.Duration, cfg.Workers)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	cancel()
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}

	dataPool, err := loadSessions(context.Background(), pool)
	pool.Close()
	if err != nil {
		log.Fatalf("load sessions: %v", err)
	}
	if len(dataPool.Sessions) == 0 {
		log.Fatal("no SCHEDULED sessions found, run cmd/seed first")
	}
	log.Printf("loaded %d bookable sessions", len(dataPool.Sessions))

	gofakeit.Seed(time.Now().UnixNano())

	bookOps := &OperationMetrics{}
	payOps := &OperationMetrics{}
	statusOps := &OperationMetrics{}

	client := &http.Client{Timeout: 10 * time.Second}
	deadline := time.Now().Add(cfg.Duration)

	var wg sync.WaitGroup
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(deadline) {
				roll := rand.Float64()
				switch {
				case roll < cfg.BookingRatio:
					doBooking(client, cfg.APIBaseURL, dataPool, bookOps)
				case roll < cfg.BookingRatio+cfg.PaymentRatio:
					doPayment(client, cfg.APIBaseURL, dataPool, payOps)
				default:
					doRunningStatus(client, cfg.APIBaseURL, dataPool, statusOps)
				}
			}
		}()
	}
	wg.Wait()

	report("bookings", bookOps)
	report("payments", payOps)
	report("running-status", statusOps)
}

func loadSimConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:   envOr("SIM_API_URL", "http://127.0.0.1:8080"),
		Duration:     durationOr("SIM_DURATION", 30*time.Second),
		Workers:      intOr("SIM_WORKERS", 32),
		BookingRatio: 0.6,
		PaymentRatio: 0.2,
		PostgresDSN:  os.Getenv("POSTGRES_DSN"),
	}
	if cfg.PostgresDSN == "" {
		log.Fatal("POSTGRES_DSN is required")
	}
	return cfg
}

func loadSessions(ctx context.Context, pool *pgxpool.Pool) (*DataPool, error) {
	rows, err := pool.Query(ctx, `
		SELECT id FROM sessions WHERE status = 'SCHEDULED' ORDER BY scheduled_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	dp := &DataPool{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		dp.Sessions = append(dp.Sessions, id)
	}
	return dp, rows.Err()
}

func doBooking(client *http.Client, baseURL string, dp *DataPool, om *OperationMetrics) {
	session := dp.Sessions[rand.Intn(len(dp.Sessions))]
	phone := "07" + gofakeit.DigitN(8)

	body, _ := json.Marshal(map[string]any{
		"session_id":     session.String(),
		"patient_name":   gofakeit.Name(),
		"patient_email":  gofakeit.Email(),
		"patient_phone":  phone,
		"patient_nic":    gofakeit.DigitN(9) + "V",
		"patient_age":    gofakeit.Number(18, 80),
		"patient_gender": []string{"male", "female"}[rand.Intn(2)],
	})

	start := time.Now()
	resp, err := client.Post(baseURL+"/bookings", "application/json", bytes.NewReader(body))
	if err != nil {
		om.Record(time.Since(start), 0)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusCreated {
		var created struct {
			AppointmentNumber string `json:"appointment_number"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&created); err == nil {
			dp.AddAppointment(created.AppointmentNumber, phone)
		}
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	om.Record(time.Since(start), resp.StatusCode)
}

func doPayment(client *http.Client, baseURL string, dp *DataPool, om *OperationMetrics) {
	number, ok := dp.RandomAppointment()
	if !ok {
		return
	}

	start := time.Now()
	resp, err := client.Post(baseURL+"/bookings/"+number+"/payment", "application/json", nil)
	if err != nil {
		om.Record(time.Since(start), 0)
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	om.Record(time.Since(start), resp.StatusCode)
}

func doRunningStatus(client *http.Client, baseURL string, dp *DataPool, om *OperationMetrics) {
	phone, ok := dp.RandomPhone()
	if !ok {
		return
	}

	start := time.Now()
	resp, err := client.Get(baseURL + "/running-status?phone=" + phone)
	if err != nil {
		om.Record(time.Since(start), 0)
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	om.Record(time.Since(start), resp.StatusCode)
}

func report(name string, om *OperationMetrics) {
	avg, p50, p95, max := om.Stats()
	fmt.Printf("%-15s total=%d success=%d conflict=%d error=%d avg=%s p50=%s p95=%s max=%s\n",
		name, om.Total, om.Success, om.Conflict, om.Error, avg, p50, p95, max)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intOr(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func durationOr(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
