package integration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	pgloader "live-quiz-service/internal/infra/postgres"
	pgmigrations "live-quiz-service/internal/infra/postgres/migrations"
	infraredis "live-quiz-service/internal/infra/redis"
)

func TestGameOverPostgresAndRedis(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	migrateSchema(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	loader := pgloader.NewQuizLoader(pool)
	if err := loader.SaveQuiz(ctx, sampleQuiz()); err != nil {
		t.Fatalf("seed quiz: %v", err)
	}

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	quizRepo := infraredis.NewQuizRepository(redisClient, loader, 5*time.Minute)
	summaries, err := quizRepo.ListQuizzes(ctx)
	if err != nil {
		t.Fatalf("list quizzes: %v", err)
	}
	if len(summaries) != 1 || summaries[0].ID != "quiz-1" || summaries[0].Questions != 1 {
		t.Fatalf("unexpected summaries: %+v", summaries)
	}
	quiz, err := quizRepo.GetQuiz(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("get quiz: %v", err)
	}

	clock := clockwork.NewFakeClock()
	directory := infraredis.NewInviteDirectory(redisClient, time.Hour)
	registry := app.NewRegistry(app.WithClock(clock), app.WithInviteDirectory(directory))
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		registry.Cleanup(cleanupCtx)
	}()

	manager := domain.Participant{ParticipantID: "manager", ConnectionID: "conn-manager"}
	s, err := registry.Create(ctx, quiz, manager)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	owner, err := redisClient.Get(ctx, "quiz:invite:"+s.InviteCode()).Result()
	if err != nil || owner != s.ID() {
		t.Fatalf("invite code should be reserved in redis for %s, got %q %v", s.ID(), owner, err)
	}

	alice := domain.Participant{ParticipantID: "u1", ConnectionID: "conn-u1"}
	bob := domain.Participant{ParticipantID: "u2", ConnectionID: "conn-u2"}
	if _, err := s.Join(ctx, alice, "Alice"); err != nil {
		t.Fatalf("join alice: %v", err)
	}
	if _, err := s.Join(ctx, bob, "Bob"); err != nil {
		t.Fatalf("join bob: %v", err)
	}
	if err := s.Start(ctx, manager); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForState(t, s, domain.StateCooldown)
	clock.Advance(quiz.Questions[0].CooldownDuration())
	waitForState(t, s, domain.StateQuestionActive)

	if err := s.SelectAnswer(ctx, bob, 1); err != nil {
		t.Fatalf("bob answer: %v", err)
	}
	if err := s.SelectAnswer(ctx, alice, 0); err != nil {
		t.Fatalf("alice answer: %v", err)
	}
	waitForState(t, s, domain.StateReveal)

	board, err := s.ShowLeaderboard(ctx, manager)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(board) != 2 || board[0].ParticipantID != "u2" || board[0].Score != 1000 {
		t.Fatalf("expected bob leading with 1000, got %+v", board)
	}

	if err := s.NextRound(ctx, manager); err != nil {
		t.Fatalf("next round: %v", err)
	}
	waitForState(t, s, domain.StateEnded)
	if owner, _ := redisClient.Get(ctx, "quiz:invite:"+s.InviteCode()).Result(); owner != "" {
		t.Fatalf("ended game should release its invite code, still owned by %q", owner)
	}
}

func waitForState(t *testing.T, s *app.Session, want domain.SessionState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		got, err := s.State(context.Background())
		if err != nil {
			t.Fatalf("state: %v", err)
		}
		if got == want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected state %s, got %s", want, got)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func migrateSchema(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:      "quiz-1",
		Subject: "Arithmetic",
		Questions: []domain.Question{
			{Text: "What is 2 + 2?", Answers: []string{"3", "4", "5"}, Solution: 1, Cooldown: 1, Time: 10},
		},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
