package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"gator-overflow/internal/api"

	"github.com/google/uuid"
)

type SimConfig struct {
	NumUsers          int
	NumTags           int
	SimulationTime    time.Duration
	QuestionFrequency float64 // questions per user per hour
	AnswerFrequency   float64 // answers per user per hour
	VoteFrequency     float64 // votes per user per hour
	SearchFrequency   float64 // tag searches per user per hour
	DisconnectRate    float64
	ReconnectRate     float64
	ZipfS             float64
	EngineURL         string
}

type SimulationStats struct {
	mu              sync.RWMutex
	StartTime       time.Time
	TotalRequests   int64
	SuccessRequests int64
	FailedRequests  int64
	AverageLatency  time.Duration
	ActiveUsers     int
	TotalQuestions  int
	TotalAnswers    int
	TotalVotes      int
	TotalSearches   int
}

// SimulatedUser is one registered account with its own session cookie.
type SimulatedUser struct {
	Nickname    string
	Password    string
	UserID      string
	IsConnected bool
	LastActive  time.Time
	client      *http.Client
}

// knownQuestion is a question the simulator has seen in a listing, with the
// answers it created there.
type knownQuestion struct {
	ID      string
	Answers []string
}

type EnhancedSimulator struct {
	config    SimConfig
	stats     *SimulationStats
	users     []*SimulatedUser
	tags      []string
	questions map[string]*knownQuestion
	mu        sync.RWMutex
}

func NewEnhancedSimulator(config SimConfig) *EnhancedSimulator {
	tags := make([]string, config.NumTags)
	for i := range tags {
		tags[i] = getRandomTopic() + fmt.Sprintf("-%d", i)
	}
	return &EnhancedSimulator{
		config:    config,
		tags:      tags,
		questions: make(map[string]*knownQuestion),
		stats: &SimulationStats{
			StartTime: time.Now(),
		},
	}
}

func (s *EnhancedSimulator) Run(ctx context.Context) error {
	log.Printf("Starting enhanced simulation...")

	if err := s.createInitialUsers(ctx); err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.SimulateActivities(ctx)
	}()

	// Simulate connection states
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.simulateConnectivity(ctx)
	}()

	// Collect metrics
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.collectMetrics(ctx)
	}()

	wg.Wait()
	return nil
}

func (s *EnhancedSimulator) createInitialUsers(ctx context.Context) error {
	log.Printf("Creating %d users...", s.config.NumUsers)

	const numWorkers = 5
	jobs := make(chan int)
	results := make(chan *SimulatedUser, s.config.NumUsers)

	// Shared rate limit: 5 registrations per second
	rateLimiter := time.NewTicker(200 * time.Millisecond)
	defer rateLimiter.Stop()

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for range jobs {
				select {
				case <-ctx.Done():
					return
				case <-rateLimiter.C:
				}

				user := newSimulatedUser()

				// Exponential backoff between retries
				var err error
				for retries := 0; retries < 3; retries++ {
					if err = s.registerUser(ctx, user); err == nil {
						results <- user
						break
					}
					backoff := time.Duration(math.Pow(2, float64(retries))) * time.Second
					log.Printf("Worker %d: Retry %d for user %s after %v delay", workerID, retries+1, user.Nickname, backoff)
					time.Sleep(backoff)
				}
				if err != nil {
					log.Printf("Worker %d: Giving up on user %s: %v", workerID, user.Nickname, err)
				}
			}
		}(i)
	}

	go func() {
		defer close(jobs)
		for i := 0; i < s.config.NumUsers; i++ {
			select {
			case <-ctx.Done():
				return
			case jobs <- i:
			}
		}
	}()

	wg.Wait()
	close(results)

	s.mu.Lock()
	for user := range results {
		s.users = append(s.users, user)
	}
	count := len(s.users)
	s.mu.Unlock()

	if count == 0 {
		return fmt.Errorf("no users could be registered")
	}
	log.Printf("Registered %d/%d users", count, s.config.NumUsers)
	return nil
}

func newSimulatedUser() *SimulatedUser {
	jar, _ := cookiejar.New(nil)
	return &SimulatedUser{
		Nickname:    "user_" + uuid.NewString()[:8],
		Password:    "testpass123",
		IsConnected: true,
		client: &http.Client{
			Jar:     jar,
			Timeout: 5 * time.Second,
			// Form posts answer with redirects we do not need to follow.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// registerUser creates the account over JSON. The session cookie lands in
// the user's jar.
func (s *EnhancedSimulator) registerUser(ctx context.Context, user *SimulatedUser) error {
	payload, err := json.Marshal(map[string]string{"nickname": user.Nickname, "password": user.Password})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.EngineURL+"/register", strings.NewReader(string(payload)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	body, err := s.do(user.client, req)
	if err != nil {
		return fmt.Errorf("failed to register user: %w", err)
	}

	var result api.LoginResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("failed to parse registration response: %w", err)
	}
	if !result.Success {
		return fmt.Errorf("registration refused: %s", result.Error)
	}
	user.UserID = result.UserID
	user.LastActive = time.Now()
	return nil
}

// postForm sends a form as user and returns the body.
func (s *EnhancedSimulator) postForm(ctx context.Context, user *SimulatedUser, endpoint string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.EngineURL+endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.do(user.client, req)
}

func (s *EnhancedSimulator) do(client *http.Client, req *http.Request) ([]byte, error) {
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		s.recordRequestMetrics(start, err)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err == nil && resp.StatusCode >= 400 {
		err = fmt.Errorf("request failed with status: %d", resp.StatusCode)
	}
	s.recordRequestMetrics(start, err)
	return body, err
}

func (s *EnhancedSimulator) recordRequestMetrics(start time.Time, err error) {
	s.stats.mu.Lock()
	defer s.stats.mu.Unlock()

	latency := time.Since(start)
	s.stats.TotalRequests++
	if err != nil {
		s.stats.FailedRequests++
	} else {
		s.stats.SuccessRequests++
	}

	totalLatency := s.stats.AverageLatency * time.Duration(s.stats.TotalRequests-1)
	s.stats.AverageLatency = (totalLatency + latency) / time.Duration(s.stats.TotalRequests)
}

func (s *EnhancedSimulator) simulateConnectivity(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			for _, user := range s.users {
				if user.IsConnected {
					if rand.Float64() < s.config.DisconnectRate {
						user.IsConnected = false
					}
				} else if rand.Float64() < s.config.ReconnectRate {
					user.IsConnected = true
					user.LastActive = time.Now()
				}
			}
			s.mu.Unlock()
		}
	}
}

// getZipfTag picks a tag so that a few tags get most of the traffic.
func (s *EnhancedSimulator) getZipfTag(rng *rand.Rand) string {
	if len(s.tags) == 1 {
		return s.tags[0]
	}
	zipf := rand.NewZipf(rng, s.config.ZipfS, 1, uint64(len(s.tags)-1))
	return s.tags[zipf.Uint64()]
}

func getRandomTopic() string {
	topics := []string{"go", "concurrency", "channels", "generics", "http", "sql", "testing", "modules"}
	return topics[rand.Intn(len(topics))]
}

func (s *EnhancedSimulator) collectMetrics(ctx context.Context) {
	log.Printf("Starting metrics collection...")
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			activeUsers := 0
			s.mu.RLock()
			for _, user := range s.users {
				if user.IsConnected {
					activeUsers++
				}
			}
			totalUsers := len(s.users)
			s.mu.RUnlock()

			s.stats.mu.Lock()
			s.stats.ActiveUsers = activeUsers
			elapsed := time.Since(s.stats.StartTime)
			requestRate := float64(s.stats.TotalRequests) / elapsed.Seconds()
			successRate := 0.0
			if s.stats.TotalRequests > 0 {
				successRate = float64(s.stats.SuccessRequests) / float64(s.stats.TotalRequests) * 100
			}

			log.Printf("\nSimulation Metrics (%.1f seconds elapsed):", elapsed.Seconds())
			log.Printf("- Request Rate: %.2f req/sec", requestRate)
			log.Printf("- Success Rate: %.1f%%", successRate)
			log.Printf("- Average Latency: %v", s.stats.AverageLatency)
			log.Printf("- Active Users: %d/%d", activeUsers, totalUsers)
			log.Printf("- Questions: %d, Answers: %d, Votes: %d, Searches: %d",
				s.stats.TotalQuestions, s.stats.TotalAnswers, s.stats.TotalVotes, s.stats.TotalSearches)
			log.Printf("- Failed Requests: %d", s.stats.FailedRequests)
			s.stats.mu.Unlock()
		}
	}
}

// SimulationMetrics holds the metrics of the simulation
type SimulationMetrics struct {
	TotalUsers        int
	ActiveUsers       int
	TotalQuestions    int
	TotalAnswers      int
	TotalVotes        int
	TotalSearches     int
	AverageLatency    time.Duration
	ErrorCount        int
	RequestsPerSecond float64
}

// GetMetrics returns the current simulation metrics
func (s *EnhancedSimulator) GetMetrics() SimulationMetrics {
	s.mu.RLock()
	totalUsers := len(s.users)
	s.mu.RUnlock()

	s.stats.mu.RLock()
	defer s.stats.mu.RUnlock()

	elapsed := time.Since(s.stats.StartTime)
	return SimulationMetrics{
		TotalUsers:        totalUsers,
		ActiveUsers:       s.stats.ActiveUsers,
		TotalQuestions:    s.stats.TotalQuestions,
		TotalAnswers:      s.stats.TotalAnswers,
		TotalVotes:        s.stats.TotalVotes,
		TotalSearches:     s.stats.TotalSearches,
		AverageLatency:    s.stats.AverageLatency,
		ErrorCount:        int(s.stats.FailedRequests),
		RequestsPerSecond: float64(s.stats.TotalRequests) / elapsed.Seconds(),
	}
}
