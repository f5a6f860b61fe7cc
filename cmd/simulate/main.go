package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logging"
)

type SimConfig struct {
	APIBaseURL    string
	Email         string
	Password      string
	Duration      time.Duration
	Workers       int
	BookingRatio  float64
	UpdateRatio   float64
	ReadRatio     float64
	PatientLimit  int
	Contenders    int
	DaysAhead     int
	SessionLength int
	PostgresDSN   string
}

// booking is a patient together with a clinical record they own.
type booking struct {
	PatientID uuid.UUID
	RecordID  uuid.UUID
}

type DataPool struct {
	Bookings  []booking
	Employees []uuid.UUID
	mu        sync.RWMutex
	sessions  []uuid.UUID
	courses   []uuid.UUID
}

func (dp *DataPool) AddCourse(id uuid.UUID, sessions []uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.courses = append(dp.courses, id)
	dp.sessions = append(dp.sessions, sessions...)
}

func (dp *DataPool) randomFrom(rng *rand.Rand, ids []uuid.UUID) (uuid.UUID, bool) {
	if len(ids) == 0 {
		return uuid.Nil, false
	}
	return ids[rng.Intn(len(ids))], true
}

func (dp *DataPool) RandomCourse(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	return dp.randomFrom(rng, dp.courses)
}

func (dp *DataPool) RandomSession(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	return dp.randomFrom(rng, dp.sessions)
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[min2(len(latencies)*50/100, len(latencies)-1)]
	p95 = latencies[min2(len(latencies)*95/100, len(latencies)-1)]
	return avg, min, max, p50, p95
}

func min2(a, b int) int {
	if a < b {
		return a
	}
	return b
}

type Metrics struct {
	Contention     OperationMetrics
	Booking        OperationMetrics
	Update         OperationMetrics
	ReadByID       OperationMetrics
	ListByPatient  OperationMetrics
	ListByEmployee OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	token   string
	log     zerolog.Logger
	metrics Metrics
}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(baseCfg.Env, baseCfg.LogLevel)

	cfg := loadConfig(baseCfg)
	if err := validateConfig(cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	logger.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Int("contenders", cfg.Contenders).
		Float64("booking", cfg.BookingRatio).
		Float64("update", cfg.UpdateRatio).
		Float64("read", cfg.ReadRatio).
		Msg("simulator starting")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("load data pool")
	}
	logger.Info().Int("patients", len(dataPool.Bookings)).Int("employees", len(dataPool.Employees)).Msg("data loaded")

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    logger,
	}
	if err := sim.login(ctx); err != nil {
		logger.Fatal().Err(err).Msg("login")
	}

	sim.RunContention()
	sim.Run()
	sim.PrintReport()
}

func loadConfig(base config.Config) SimConfig {
	cfg := SimConfig{
		APIBaseURL:    getEnv("SIM_API_BASE_URL", "http://localhost:"+base.HTTPPort),
		Email:         getEnv("SIM_EMAIL", getEnv("SEED_ADMIN_EMAIL", "admin@clinic.local")),
		Password:      getEnv("SIM_PASSWORD", getEnv("SEED_ADMIN_PASSWORD", "admin123")),
		Duration:      getDuration("SIM_DURATION", 30*time.Second),
		Workers:       getInt("SIM_WORKERS", 10),
		BookingRatio:  getFloat("SIM_BOOKING_RATIO", 0.4),
		UpdateRatio:   getFloat("SIM_UPDATE_RATIO", 0.2),
		ReadRatio:     getFloat("SIM_READ_RATIO", 0.4),
		PatientLimit:  getInt("SIM_PATIENT_LIMIT", 2000),
		Contenders:    getInt("SIM_CONTENDERS", 20),
		DaysAhead:     getInt("SIM_DAYS_AHEAD", 30),
		SessionLength: getInt("SIM_SESSION_MINUTES", 60),
		PostgresDSN:   base.PostgresDSN,
	}

	// Normalize ratios
	total := cfg.BookingRatio + cfg.UpdateRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.UpdateRatio /= total
		cfg.ReadRatio /= total
	}
	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.DaysAhead <= 0 {
		return fmt.Errorf("SIM_DAYS_AHEAD must be > 0")
	}
	if cfg.SessionLength <= 0 || cfg.SessionLength%30 != 0 {
		return fmt.Errorf("SIM_SESSION_MINUTES must be a positive multiple of 30")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	rows, err := pool.Query(ctx, `
		SELECT DISTINCT ON (p.id) p.id, c.id
		FROM patients p
		JOIN clinical_records c ON c.patient_id = p.id
		ORDER BY p.id, c.created_at
		LIMIT $1
	`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	for rows.Next() {
		var b booking
		if err := rows.Scan(&b.PatientID, &b.RecordID); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Bookings = append(dataPool.Bookings, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = pool.Query(ctx, `SELECT id FROM employees`)
	if err != nil {
		return nil, fmt.Errorf("load employees: %w", err)
	}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Employees = append(dataPool.Employees, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(dataPool.Bookings) == 0 {
		return nil, fmt.Errorf("no patients with clinical records loaded")
	}
	if len(dataPool.Employees) == 0 {
		return nil, fmt.Errorf("no employees loaded")
	}
	return dataPool, nil
}

func (s *Simulator) login(ctx context.Context) error {
	body, _ := json.Marshal(map[string]string{"email": s.config.Email, "password": s.config.Password})
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+"/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("login returned %d", resp.StatusCode)
	}

	var tok struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return err
	}
	s.token = tok.Token
	return nil
}

func (s *Simulator) do(ctx context.Context, method, path string, payload any) (*http.Response, error) {
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)
	return s.client.Do(req)
}

// randomSlot picks a start on the 30 minute grid between 08:00 and 18:00
// UTC, one to DaysAhead days from now.
func (s *Simulator) randomSlot(rng *rand.Rand) time.Time {
	day := time.Now().UTC().Truncate(24*time.Hour).AddDate(0, 0, 1+rng.Intn(s.config.DaysAhead))
	return day.Add(8*time.Hour + time.Duration(rng.Intn(20))*30*time.Minute)
}

func (s *Simulator) courseRequest(rng *rand.Rand, employeeID uuid.UUID, start time.Time) map[string]any {
	b := s.pool.Bookings[rng.Intn(len(s.pool.Bookings))]
	total := 1 + rng.Intn(4)
	return map[string]any{
		"patientId":        b.PatientID,
		"employeeId":       employeeID,
		"clinicalRecordId": b.RecordID,
		"appointmentDate":  start.Format(time.RFC3339),
		"duration":         s.config.SessionLength,
		"totalSessions":    total,
		"daysOfWeek":       []int{int(start.Weekday()), int((start.Weekday() + 3) % 7)},
	}
}

// post books one course and records it in m. It reports the HTTP status.
func (s *Simulator) post(ctx context.Context, m *OperationMetrics, payload map[string]any) int {
	start := time.Now()
	resp, err := s.do(ctx, http.MethodPost, "/appointments", payload)
	latency := time.Since(start)
	if err != nil {
		m.Record(latency, false, false)
		return 0
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
		var created struct {
			AppointmentID uuid.UUID   `json:"appointmentId"`
			SessionIDs    []uuid.UUID `json:"sessionIds"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&created); err == nil {
			s.pool.AddCourse(created.AppointmentID, created.SessionIDs)
		}
		m.Record(latency, true, false)
	case http.StatusConflict:
		m.Record(latency, false, true)
	default:
		m.Record(latency, false, false)
	}
	return resp.StatusCode
}

// RunContention sends the same course for the same employee from many
// goroutines at once. Exactly one request may win.
func (s *Simulator) RunContention() {
	if s.config.Contenders <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	payload := s.courseRequest(rng, s.pool.Employees[rng.Intn(len(s.pool.Employees))], s.randomSlot(rng))

	var (
		wg    sync.WaitGroup
		ready = make(chan struct{})
	)
	for i := 0; i < s.config.Contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-ready
			s.post(ctx, &s.metrics.Contention, payload)
		}()
	}
	close(ready)
	wg.Wait()

	won := atomic.LoadInt64(&s.metrics.Contention.Success)
	ev := s.log.Info()
	if won > 1 {
		ev = s.log.Error()
	}
	ev.Int64("created", won).
		Int64("conflicts", atomic.LoadInt64(&s.metrics.Contention.Conflict)).
		Int64("errors", atomic.LoadInt64(&s.metrics.Contention.Error)).
		Msg("contention round complete")
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.log.Info().Dur("duration", s.config.Duration).Int("workers", s.config.Workers).Msg("starting simulation")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.log.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			if r < s.config.BookingRatio {
				s.doBooking(ctx, rng)
			} else if r < s.config.BookingRatio+s.config.UpdateRatio {
				s.doUpdate(ctx, rng)
			} else {
				switch rng.Intn(3) {
				case 0:
					s.doReadByID(ctx, rng)
				case 1:
					s.doListByPatient(ctx, rng)
				case 2:
					s.doListByEmployee(ctx, rng)
				}
			}
		}
	}
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	employeeID := s.pool.Employees[rng.Intn(len(s.pool.Employees))]
	s.post(ctx, &s.metrics.Booking, s.courseRequest(rng, employeeID, s.randomSlot(rng)))
}

// doUpdate either confirms a session or moves it to another slot.
func (s *Simulator) doUpdate(ctx context.Context, rng *rand.Rand) {
	sessionID, ok := s.pool.RandomSession(rng)
	if !ok {
		return
	}

	patch := map[string]any{"status": "CONFIRMADO"}
	if rng.Intn(2) == 0 {
		patch = map[string]any{"appointmentDate": s.randomSlot(rng).Format(time.RFC3339)}
	}

	start := time.Now()
	resp, err := s.do(ctx, http.MethodPatch, "/sessions/"+sessionID.String(), patch)
	latency := time.Since(start)

	success, conflict := false, false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
		conflict = resp.StatusCode == http.StatusConflict
	}
	s.metrics.Update.Record(latency, success, conflict)
}

func (s *Simulator) doGet(ctx context.Context, m *OperationMetrics, path string) {
	start := time.Now()
	resp, err := s.do(ctx, http.MethodGet, path, nil)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}
	m.Record(latency, success, false)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.RandomCourse(rng)
	if !ok {
		return
	}
	s.doGet(ctx, &s.metrics.ReadByID, "/appointments/"+id.String())
}

func (s *Simulator) doListByPatient(ctx context.Context, rng *rand.Rand) {
	b := s.pool.Bookings[rng.Intn(len(s.pool.Bookings))]
	s.doGet(ctx, &s.metrics.ListByPatient, "/appointments?patientId="+b.PatientID.String())
}

func (s *Simulator) doListByEmployee(ctx context.Context, rng *rand.Rand) {
	id := s.pool.Employees[rng.Intn(len(s.pool.Employees))]
	s.doGet(ctx, &s.metrics.ListByEmployee, "/appointments?filter=week&employeeId="+id.String())
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Contention (identical course)", &s.metrics.Contention)
	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Session update", &s.metrics.Update)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
	printOperationReport("List by patient", &s.metrics.ListByPatient)
	printOperationReport("List by employee", &s.metrics.ListByEmployee)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
