package analysis

import (
	"context"

	"github.com/sourcegraph/conc/pool"
	"github.com/storyduet/storyduet-go/internal/domain"
	"go.uber.org/zap"
)

// Analyzer is the set of independent analysis-generator boundaries. Each
// method derives one property of a completed story and may fail on its own.
type Analyzer interface {
	Title(ctx context.Context, transcript string) (string, error)
	Quote(ctx context.Context, transcript string) (string, error)
	Mood(ctx context.Context, userText string) (domain.Mood, error)
	StyleMatch(ctx context.Context, userText, catalog string) (domain.StyleMatch, error)
	Keywords(ctx context.Context, userText string) ([]string, error)
	PolishScript(ctx context.Context, transcript string) (string, error)
}

// StoryStore is the persistence gateway. Its failure must never block
// presenting the analysis.
type StoryStore interface {
	Save(ctx context.Context, story domain.StoryDraft) (string, error)
}

// Notice is a non-blocking notification surfaced to the user when one
// property fell back to its default or persistence failed.
type Notice struct {
	Property string `json:"property"`
	Message  string `json:"message"`
}

// Input carries everything the pipeline needs from the finished session.
type Input struct {
	Transcript []domain.Turn
	UserText   string
	FullText   string
	Genre      domain.Genre
	Personas   domain.PersonaPair
	Mode       domain.Mode
	CreatorID  string
}

// Pipeline fans out the analysis generators, substitutes named defaults for
// failed properties, and composes the final record.
type Pipeline struct {
	analyzer Analyzer
	store    StoryStore
	logger   *zap.Logger
}

func NewPipeline(analyzer Analyzer, store StoryStore, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		analyzer: analyzer,
		store:    store,
		logger:   logger,
	}
}

// Analyze builds the composite record for a completed session. Property
// calls run concurrently and independently; only the trivial-input check
// and the persistence attempt are ordered.
func (p *Pipeline) Analyze(ctx context.Context, in Input) (*domain.AnalysisRecord, []Notice) {
	if isTrivial(in.UserText) {
		p.logger.Info("No meaningful user text, composing unwritten story record")
		record := UnwrittenRecord(in.Transcript)
		return record, nil
	}

	var (
		title    string
		quote    string
		mood     domain.Mood
		style    domain.StyleMatch
		keywords []string
		script   string

		titleErr, quoteErr, moodErr, styleErr, keywordsErr, scriptErr error
	)

	catalog := domain.SerializeCatalog()

	fanout := pool.New().WithMaxGoroutines(6)
	fanout.Go(func() { title, titleErr = p.analyzer.Title(ctx, in.FullText) })
	fanout.Go(func() { quote, quoteErr = p.analyzer.Quote(ctx, in.FullText) })
	fanout.Go(func() { mood, moodErr = p.analyzer.Mood(ctx, in.UserText) })
	fanout.Go(func() { style, styleErr = p.analyzer.StyleMatch(ctx, in.UserText, catalog) })
	fanout.Go(func() { keywords, keywordsErr = p.analyzer.Keywords(ctx, in.UserText) })
	fanout.Go(func() { script, scriptErr = p.analyzer.PolishScript(ctx, in.FullText) })
	fanout.Wait()

	notices := make([]Notice, 0, 7)

	if titleErr != nil {
		p.logger.Warn("Title analysis failed, using default", zap.Error(titleErr))
		title = DefaultTitle
		notices = append(notices, Notice{Property: "title", Message: "We couldn't generate a title, so we picked one for you."})
	}
	if quoteErr != nil {
		p.logger.Warn("Quote analysis failed, using default", zap.Error(quoteErr))
		quote = DefaultQuote
		notices = append(notices, Notice{Property: "quote", Message: "We couldn't pull a quote from your story."})
	}
	if moodErr != nil {
		p.logger.Warn("Mood analysis failed, using default", zap.Error(moodErr))
		mood = DefaultMood
		notices = append(notices, Notice{Property: "mood", Message: "Your story's mood reading is an estimate."})
	}
	if styleErr != nil {
		p.logger.Warn("Style analysis failed, using default", zap.Error(styleErr))
		style = DefaultStyle
		notices = append(notices, Notice{Property: "style", Message: "We couldn't match your writing style this time."})
	}
	if keywordsErr != nil {
		p.logger.Warn("Keyword analysis failed, using default", zap.Error(keywordsErr))
		keywords = defaultKeywords()
		notices = append(notices, Notice{Property: "keywords", Message: "We couldn't extract your keywords."})
	}
	if scriptErr != nil {
		p.logger.Warn("Script polish failed, using raw transcript", zap.Error(scriptErr))
		script = in.FullText
		notices = append(notices, Notice{Property: "script", Message: "Your story is shown as written; polishing didn't go through."})
	}

	famousQuote := ""
	if attributed, ok := domain.QuoteFor(style.Primary); ok {
		famousQuote = attributed
	}

	record := &domain.AnalysisRecord{
		Title:       title,
		QuoteBanner: quote,
		Mood:        mood,
		Style:       style,
		FamousQuote: famousQuote,
		Keywords:    keywords,
		FinalScript: script,
		Transcript:  in.Transcript,
		StoryID:     domain.StoryIDUnsaved,
	}

	record.StoryID = p.persist(ctx, in, record, &notices)

	return record, notices
}

// persist attempts the gateway save and degrades to the sentinel id.
func (p *Pipeline) persist(ctx context.Context, in Input, record *domain.AnalysisRecord, notices *[]Notice) string {
	if p.store == nil {
		return domain.StoryIDUnsaved
	}

	id, err := p.store.Save(ctx, domain.StoryDraft{
		Title:      record.Title,
		Content:    record.FinalScript,
		CreatorID:  in.CreatorID,
		Mood:       record.Mood,
		StyleMatch: record.Style,
		Genre:      in.Genre,
		GameMode:   in.Mode,
	})
	if err != nil {
		p.logger.Warn("Story persistence failed, keeping record local", zap.Error(err))
		*notices = append(*notices, Notice{Property: "persistence", Message: "Your story analysis is ready but couldn't be saved."})
		return domain.StoryIDUnsaved
	}

	p.logger.Info("Story persisted", zap.String("story_id", id))
	return id
}
