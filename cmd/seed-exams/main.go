package main

import (
	"context"
	"fmt"
	"time"

	"github.com/learnly/prepexam-backend/internal/config"
	"github.com/learnly/prepexam-backend/internal/database"
	"github.com/learnly/prepexam-backend/internal/logger"
	"github.com/learnly/prepexam-backend/internal/model"
	"github.com/learnly/prepexam-backend/internal/repository"
)

// Seeds a small practice-exam catalog for local development. Safe to run
// repeatedly: duplicate titles just add another exam.
func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	examRepo := repository.NewExamRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)

	fmt.Println("=== Seeding Practice Exams ===")

	domains := []string{"Networking", "Security", "Cloud", "Storage"}

	for _, spec := range []struct {
		title     string
		duration  int
		questions int
	}{
		{"Network Fundamentals Practice Exam", 60, 40},
		{"Security Essentials Practice Exam", 45, 30},
		{"Cloud Architecture Mock Test", 90, 60},
	} {
		exam := &model.Exam{
			Title:           spec.title,
			DurationMinutes: spec.duration,
			QuestionCount:   spec.questions,
		}
		if err := examRepo.Create(ctx, exam); err != nil {
			log.Fatal().Err(err).Str("title", spec.title).Msg("Failed to create exam")
		}

		for i := 0; i < spec.questions; i++ {
			domain := domains[i%len(domains)]
			explanation := fmt.Sprintf("Option %d is correct; review the %s study guide, chapter %d.", i%4+1, domain, i/4+1)
			q := &model.Question{
				ExamID:       exam.ID,
				QuestionText: fmt.Sprintf("Question %d: which of the following statements about %s is correct?", i+1, domain),
				Options: []string{
					"The first statement",
					"The second statement",
					"The third statement",
					"The fourth statement",
				},
				CorrectOption: i % 4,
				Explanation:   &explanation,
				Domain:        &domain,
				OrderNum:      i,
			}
			if err := questionRepo.Create(ctx, q); err != nil {
				log.Fatal().Err(err).Str("exam", spec.title).Int("question", i).Msg("Failed to create question")
			}
		}

		fmt.Printf("Created %q with %d questions\n", spec.title, spec.questions)
	}

	fmt.Println("\nSeed completed!")
}
