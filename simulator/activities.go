package simulator

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"net/url"
	"regexp"
	"sync"
	"time"
)

var (
	questionLink = regexp.MustCompile(`viewquestion\?id=([0-9]+\.[0-9]+)`)
	answerAnchor = regexp.MustCompile(`id="answer-([0-9]+\.[0-9]+)"`)
)

// activity is one kind of user action, performed by a connected user with
// probability frequency/3600 per second.
type activity struct {
	name      string
	frequency float64
	act       func(ctx context.Context, user *SimulatedUser, rng *rand.Rand) error
}

func (s *EnhancedSimulator) SimulateActivities(ctx context.Context) {
	log.Printf("Starting activities simulation...")

	activities := []activity{
		{name: "question", frequency: s.config.QuestionFrequency, act: s.askQuestion},
		{name: "answer", frequency: s.config.AnswerFrequency, act: s.answerQuestion},
		{name: "vote", frequency: s.config.VoteFrequency, act: s.castVote},
		{name: "search", frequency: s.config.SearchFrequency, act: s.searchTag},
	}

	var wg sync.WaitGroup
	for _, a := range activities {
		wg.Add(1)
		go func(a activity) {
			defer wg.Done()
			s.simulate(ctx, a)
		}(a)
	}
	wg.Wait()
}

// simulate feeds connected users to a small worker pool twice a second.
func (s *EnhancedSimulator) simulate(ctx context.Context, a activity) {
	const numWorkers = 5
	tickInterval := 500 * time.Millisecond
	chance := (a.frequency / 3600.0) * tickInterval.Seconds()

	jobs := make(chan *SimulatedUser, s.config.NumUsers)

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
			for user := range jobs {
				if rng.Float64() >= chance {
					continue
				}
				if err := a.act(ctx, user, rng); err != nil && ctx.Err() == nil {
					log.Printf("Worker %d: %s by %s failed: %v", workerID, a.name, user.Nickname, err)
				}
			}
		}(i)
	}

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return
		case <-ticker.C:
			s.mu.RLock()
			for _, user := range s.users {
				if user.IsConnected {
					select {
					case jobs <- user:
					default: // Don't block if channel is full
					}
				}
			}
			s.mu.RUnlock()
		}
	}
}

func (s *EnhancedSimulator) askQuestion(ctx context.Context, user *SimulatedUser, rng *rand.Rand) error {
	form := url.Values{
		"title":       {fmt.Sprintf("Question from %s at %s", user.Nickname, time.Now().Format(time.RFC3339Nano))},
		"description": {"Generated by the load simulator."},
	}
	for i := rng.Intn(3); i >= 0; i-- {
		form.Add("tags", s.getZipfTag(rng))
	}

	if _, err := s.postForm(ctx, user, "/createquestion", form); err != nil {
		return err
	}

	s.stats.mu.Lock()
	s.stats.TotalQuestions++
	s.stats.mu.Unlock()

	// The form redirects to the listing, so learn the new id by searching.
	return s.searchFor(ctx, user, form.Get("tags"))
}

func (s *EnhancedSimulator) searchTag(ctx context.Context, user *SimulatedUser, rng *rand.Rand) error {
	tag := ""
	if rng.Float64() < 0.8 {
		tag = s.getZipfTag(rng)
	}
	return s.searchFor(ctx, user, tag)
}

// searchFor runs a tag search and remembers every question it lists.
func (s *EnhancedSimulator) searchFor(ctx context.Context, user *SimulatedUser, tag string) error {
	body, err := s.postForm(ctx, user, "/search", url.Values{"tag": {tag}})
	if err != nil {
		return err
	}

	s.stats.mu.Lock()
	s.stats.TotalSearches++
	s.stats.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, match := range questionLink.FindAllStringSubmatch(string(body), -1) {
		if _, ok := s.questions[match[1]]; !ok {
			s.questions[match[1]] = &knownQuestion{ID: match[1]}
		}
	}
	return nil
}

// pickQuestion returns a random known question id and its known answers.
func (s *EnhancedSimulator) pickQuestion(rng *rand.Rand) (string, []string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.questions) == 0 {
		return "", nil, false
	}
	n := rng.Intn(len(s.questions))
	for id, q := range s.questions {
		if n == 0 {
			return id, append([]string(nil), q.Answers...), true
		}
		n--
	}
	return "", nil, false
}

func (s *EnhancedSimulator) answerQuestion(ctx context.Context, user *SimulatedUser, rng *rand.Rand) error {
	questionID, _, ok := s.pickQuestion(rng)
	if !ok {
		return nil
	}

	body, err := s.postForm(ctx, user, "/createanswer", url.Values{
		"qid":         {questionID},
		"title":       {"Answer from " + user.Nickname},
		"description": {fmt.Sprintf("Try this, posted at %s.", time.Now().Format(time.RFC3339))},
	})
	if err != nil {
		return err
	}

	s.stats.mu.Lock()
	s.stats.TotalAnswers++
	s.stats.mu.Unlock()

	if match := answerAnchor.FindStringSubmatch(string(body)); match != nil {
		s.mu.Lock()
		if q, ok := s.questions[questionID]; ok {
			q.Answers = append(q.Answers, match[1])
		}
		s.mu.Unlock()
	}
	return nil
}

func (s *EnhancedSimulator) castVote(ctx context.Context, user *SimulatedUser, rng *rand.Rand) error {
	questionID, answers, ok := s.pickQuestion(rng)
	if !ok {
		return nil
	}

	// Mostly positive, like real communities
	direction := "1"
	if rng.Float64() < 0.2 {
		direction = "-1"
	}

	var err error
	if len(answers) > 0 && rng.Float64() < 0.5 {
		_, err = s.postForm(ctx, user, "/answervote", url.Values{
			"qid":       {questionID},
			"id":        {answers[rng.Intn(len(answers))]},
			"direction": {direction},
		})
	} else {
		_, err = s.postForm(ctx, user, "/questionvote", url.Values{
			"id":        {questionID},
			"direction": {direction},
		})
	}
	if err != nil {
		return err
	}

	s.stats.mu.Lock()
	s.stats.TotalVotes++
	s.stats.mu.Unlock()
	return nil
}
