//go:build integration

package service

import (
	"context"
	"sync"
	"testing"
	"time"

	acueducto "github.com/set-night/acueducto"
	"github.com/set-night/acueducto/internal/domain"
	"github.com/set-night/acueducto/internal/metrics"
	"github.com/set-night/acueducto/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupPgStore(t *testing.T) *repository.PgStore {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("acueducto_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, repository.RunMigrations(connStr, acueducto.MigrationsFS, "migrations"))

	pool, err := repository.NewPool(ctx, connStr, repository.PoolOptions{MaxConns: 8})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return repository.NewStore(pool)
}

func TestInvoiceService_ConcurrentPaymentsKeepEveryStreakStep(t *testing.T) {
	store := setupPgStore(t)
	ctx := context.Background()

	customer, err := store.CreateCustomer(ctx, domain.Customer{Name: "Ana"})
	require.NoError(t, err)

	svc := NewInvoiceService(store, StaticPolicy(domain.DefaultPolicy()), &recordingDispatcher{}, metrics.New(),
		InvoiceOptions{Location: bogota, Workers: 2})
	svc.now = fixedClock(2026, 3, 1, 10)

	numbers := []string{"F-A", "F-B"}
	for _, n := range numbers {
		_, err := svc.Create(ctx, domain.NewInvoice{
			Number:          n,
			CustomerID:      customer.ID,
			PeriodStart:     day(2026, 2, 1),
			PeriodEnd:       day(2026, 2, 28),
			PreviousReading: dec("100"),
			CurrentReading:  dec("145"),
			FixedCharge:     dec("10000"),
			UsageCharge:     dec("20000"),
			OtherCharge:     dec("0"),
			DueDate:         day(2026, 3, 10),
		})
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for _, n := range numbers {
		wg.Add(1)
		go func(number string) {
			defer wg.Done()
			_, err := svc.Pay(ctx, number)
			assert.NoError(t, err)
		}(n)
	}
	wg.Wait()

	var streaks []int
	for _, n := range numbers {
		inv, err := store.GetInvoiceByNumber(ctx, n)
		require.NoError(t, err)
		require.Equal(t, domain.InvoiceStatusPaid, inv.Status)
		streaks = append(streaks, inv.Loyalty.PaymentStreak)
	}
	assert.ElementsMatch(t, []int{1, 2}, streaks)
}
