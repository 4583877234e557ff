package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logging"
)

func main() {
	doctors := flag.Int("doctors", 8, "doctors to create")
	patients := flag.Int("patients", 500, "patients to create")
	seed := flag.Uint64("seed", 0, "random seed, 0 picks one")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		boot := logging.New("info", "dev")
		boot.Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New(cfg.LogLevel, cfg.Env).With().Str("service", "seed").Logger()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pool.Close()

	gofakeit.Seed(*seed)

	clinicID, err := seedClinic(ctx, pool)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed clinic")
	}
	logger.Info().Str("tenant_id", clinicID.String()).Msg("clinic created")

	if err := seedDoctors(ctx, pool, clinicID, *doctors, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed doctors")
	}
	if err := seedPatients(ctx, pool, clinicID, *patients, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed patients")
	}

	logger.Info().Str("tenant_id", clinicID.String()).Msg("seed complete")
}

func seedClinic(ctx context.Context, pool *pgxpool.Pool) (uuid.UUID, error) {
	id := uuid.New()
	addr := gofakeit.Address()

	_, err := pool.Exec(ctx, `
		INSERT INTO clinics (id, name, phone, address, login)
		VALUES ($1, $2, $3, $4, $5)
	`, id, "Clínica "+gofakeit.LastName(), fakePhone(), addr.Address, gofakeit.Username()+"-"+id.String()[:8])
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, clinicID uuid.UUID, count int, logger zerolog.Logger) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	created := 0
	for i := 0; i < count; i++ {
		name := fmt.Sprintf("Dr. %s %s", gofakeit.FirstName(), gofakeit.LastName())

		// names are unique per clinic ignoring case; a repeat is skipped
		tag, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, tenant_id, name)
			VALUES ($1, $2, $3)
			ON CONFLICT DO NOTHING
		`, uuid.New(), clinicID, name)
		if err != nil {
			return err
		}
		created += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	logger.Info().Int("count", created).Msg("doctors seeded")
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, clinicID uuid.UUID, count int, logger zerolog.Logger) error {
	const batchSize = 250

	oldest := time.Now().AddDate(-95, 0, 0)
	youngest := time.Now().AddDate(-1, 0, 0)

	created := 0
	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			birth := gofakeit.DateRange(oldest, youngest)

			tag, err := tx.Exec(ctx, `
				INSERT INTO patients (id, tenant_id, name, phone, birth_date)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT DO NOTHING
			`, uuid.New(), clinicID, gofakeit.Name(), fakePhone(), birth.Format(time.DateOnly))
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
			created += int(tag.RowsAffected())
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}
		logger.Debug().Int("done", end).Int("total", count).Msg("patients batch committed")
	}

	logger.Info().Int("count", created).Msg("patients seeded")
	return nil
}

// fakePhone returns a stored-form Brazilian mobile: 55, area code, 9 digits.
func fakePhone() string {
	return fmt.Sprintf("55%02d9%08d", gofakeit.Number(11, 99), gofakeit.Number(0, 99999999))
}
