package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/storyduet/storyduet-go/internal/analysis"
	"github.com/storyduet/storyduet-go/internal/config"
	"github.com/storyduet/storyduet-go/internal/domain"
	"github.com/storyduet/storyduet-go/internal/engine"
	"github.com/storyduet/storyduet-go/internal/service/ai"
	"github.com/storyduet/storyduet-go/internal/session"
	"github.com/storyduet/storyduet-go/internal/util"
)

// Runs one automated duologue session end to end and prints the turns.
// Useful for prompt iteration without a client attached.
func main() {
	genreFlag := flag.String("genre", "noir", "story genre")
	durationFlag := flag.Int("duration", 120, "session duration in seconds")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := util.NewLogger("warn", "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	genre, err := domain.ParseGenre(*genreFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unknown genre %q\n", *genreFlag)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	modelManager, err := ai.NewModelManager(ctx, ai.ModelManagerConfig{
		GeminiAPIKey:       cfg.Gemini.APIKey,
		OpenAIAPIKey:       cfg.OpenAI.APIKey,
		DefaultGeminiModel: cfg.Gemini.Model,
		DefaultOpenAIModel: cfg.OpenAI.Model,
		EnableFallback:     cfg.OpenAI.EnableFallback,
	}, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create model manager: %v\n", err)
		os.Exit(1)
	}

	generator := ai.NewStoryGenerator(modelManager, logger)
	machine := session.NewMachine(session.Config{
		Engine:         engine.NewTurnEngine(generator, logger),
		Pipeline:       analysis.NewPipeline(generator, nil, logger),
		Logger:         logger,
		DuologuePacing: cfg.Session.DuologuePacing,
	})

	done := make(chan struct{})
	machine.Subscribe(func(ev session.Event) {
		switch ev.Kind {
		case session.EventTurn:
			fmt.Printf("[%s] %s\n\n", ev.Turn.PersonaLabel, ev.Turn.Text)
		case session.EventNotice:
			fmt.Printf("-- %s --\n\n", ev.Notice)
		case session.EventAnalysis:
			fmt.Printf("=== %s ===\n%s\n", ev.Analysis.Title, ev.Analysis.QuoteBanner)
			fmt.Printf("Mood: %s (%.2f)  Style: %s\n",
				ev.Analysis.Mood.Primary, ev.Analysis.Mood.Confidence, ev.Analysis.Style.Primary)
			close(done)
		}
	})

	if err := machine.CompleteLoading(true); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to leave loading: %v\n", err)
		os.Exit(1)
	}

	settings := domain.SessionSettings{
		Genre:    genre,
		Duration: time.Duration(*durationFlag) * time.Second,
		Mode:     domain.ModeDuologue,
	}
	if err := machine.StartSession(ctx, settings); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start session: %v\n", err)
		os.Exit(1)
	}

	// The machine expires the timer itself; wait for the analysis to land.
	<-done
}
