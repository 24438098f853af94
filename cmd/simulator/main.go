package main

import (
	"context"
	"flag"
	"log"
	"time"

	"gator-overflow/simulator"
)

func main() {
	engineURL := flag.String("url", "http://localhost:8080", "base URL of the running server")
	users := flag.Int("users", 10, "number of simulated users")
	duration := flag.Duration("duration", 10*time.Minute, "how long to run")
	flag.Parse()

	// Define simulation configuration
	config := simulator.SimConfig{
		NumUsers:          *users,
		NumTags:           8,
		SimulationTime:    *duration,
		QuestionFrequency: 60.0,
		AnswerFrequency:   90.0,
		VoteFrequency:     200.0,
		SearchFrequency:   120.0,
		DisconnectRate:    0.01,
		ReconnectRate:     0.05,
		ZipfS:             1.07,
		EngineURL:         *engineURL,
	}

	sim := simulator.NewEnhancedSimulator(config)
	ctx, cancel := context.WithTimeout(context.Background(), config.SimulationTime)
	defer cancel()

	// Log configuration
	log.Printf("Starting simulation with configuration:")
	log.Printf("- Engine URL: %s", config.EngineURL)
	log.Printf("- Number of users: %d", config.NumUsers)
	log.Printf("- Number of tags: %d", config.NumTags)
	log.Printf("- Simulation time: %v", config.SimulationTime)
	log.Printf("- Question frequency: %.2f questions/user/hour", config.QuestionFrequency)
	log.Printf("- Answer frequency: %.2f answers/user/hour", config.AnswerFrequency)
	log.Printf("- Vote frequency: %.2f votes/user/hour", config.VoteFrequency)
	log.Printf("- Disconnect rate: %.2f", config.DisconnectRate)
	log.Printf("- Reconnect rate: %.2f", config.ReconnectRate)
	log.Printf("- Zipf parameter: %.2f", config.ZipfS)

	// Start simulation
	if err := sim.Run(ctx); err != nil {
		log.Fatalf("Simulation failed: %v", err)
	}

	// Print final metrics
	metrics := sim.GetMetrics()
	log.Printf("\nSimulation completed. Final metrics:")
	log.Printf("- Total users: %d", metrics.TotalUsers)
	log.Printf("- Active users at end: %d", metrics.ActiveUsers)
	log.Printf("- Questions: %d", metrics.TotalQuestions)
	log.Printf("- Answers: %d", metrics.TotalAnswers)
	log.Printf("- Votes: %d", metrics.TotalVotes)
	log.Printf("- Searches: %d", metrics.TotalSearches)
	log.Printf("- Error count: %d", metrics.ErrorCount)
}
