package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medilink/session-booking/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	hospitalIDs, err := seedHospitals(context.Background(), pool, 10)
	if err != nil {
		log.Fatalf("seed hospitals: %v", err)
	}
	doctorIDs, err := seedDoctors(context.Background(), pool, hospitalIDs, 100)
	if err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	if err := seedUsers(context.Background(), pool, 2000); err != nil {
		log.Fatalf("seed users: %v", err)
	}
	if err := seedSessions(context.Background(), pool, doctorIDs, 3); err != nil {
		log.Fatalf("seed sessions: %v", err)
	}

	log.Println("seed complete")
}

func seedHospitals(ctx context.Context, pool *pgxpool.Pool, count int) (map[uuid.UUID]bool, error) {
	log.Printf("seeding %d hospitals", count)

	ids := make(map[uuid.UUID]bool, count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Company() + " Hospital"
		city := gofakeit.City()

		_, err := tx.Exec(ctx, `
			INSERT INTO hospitals (id, name, city, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, name, city)
		if err != nil {
			return nil, err
		}
		ids[id] = true
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("hospitals seeded")
	return ids, nil
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, hospitalIDs map[uuid.UUID]bool, count int) ([]doctorRef, error) {
	log.Printf("seeding %d doctors", count)

	specialties := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
		"ENT",
	}

	hospitals := make([]uuid.UUID, 0, len(hospitalIDs))
	for id := range hospitalIDs {
		hospitals = append(hospitals, id)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	refs := make([]doctorRef, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		hospital := hospitals[gofakeit.Number(0, len(hospitals)-1)]
		name := "Dr. " + gofakeit.Name()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]
		fee := float64(gofakeit.Number(1500, 6000))

		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, hospital_id, name, specialty, consultation_fee, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, now(), now())
		`, id, hospital, name, spec, fee)
		if err != nil {
			return nil, err
		}
		refs = append(refs, doctorRef{ID: id, HospitalID: hospital})
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("doctors seeded")
	return refs, nil
}

type doctorRef struct {
	ID         uuid.UUID
	HospitalID uuid.UUID
}

func seedUsers(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d users", count)

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			name := gofakeit.Name()
			email := gofakeit.Email()
			phone := "07" + gofakeit.DigitN(8)

			_, err := tx.Exec(ctx, `
				INSERT INTO users (id, name, email, phone, created_at, updated_at)
				VALUES ($1, $2, $3, $4, now(), now())
			`, id, name, email, phone)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("users seeded: %d/%d", end, count)
	}

	return nil
}

// seedSessions creates daysAhead days of SCHEDULED evening sessions per
// doctor, plus an ONGOING session for a handful of doctors so running-number
// lookups have something to show.
func seedSessions(ctx context.Context, pool *pgxpool.Pool, doctors []doctorRef, daysAhead int) error {
	log.Printf("seeding sessions for %d doctors over %d days", len(doctors), daysAhead)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	now := time.Now()
	for i, doc := range doctors {
		for day := 0; day < daysAhead; day++ {
			date := now.AddDate(0, 0, day+1)
			start := time.Date(date.Year(), date.Month(), date.Day(), 17, 0, 0, 0, time.Local)
			end := start.Add(3 * time.Hour)
			capacity := gofakeit.Number(20, 60)

			_, err := tx.Exec(ctx, `
				INSERT INTO sessions (id, doctor_id, hospital_id, capacity, status, scheduled_at,
				                      start_time, end_time, current_running_number, created_at, updated_at)
				VALUES ($1, $2, $3, $4, 'SCHEDULED', $5, $6, $7, 0, now(), now())
			`, uuid.New(), doc.ID, doc.HospitalID, capacity, start.Format("2006-01-02"), start, end)
			if err != nil {
				return err
			}
		}

		// Every tenth doctor also gets a session running right now.
		if i%10 == 0 {
			start := now.Add(-time.Hour)
			_, err := tx.Exec(ctx, `
				INSERT INTO sessions (id, doctor_id, hospital_id, capacity, status, scheduled_at,
				                      start_time, end_time, current_running_number, created_at, updated_at)
				VALUES ($1, $2, $3, $4, 'ONGOING', $5, $6, $7, $8, now(), now())
			`, uuid.New(), doc.ID, doc.HospitalID, 40, start.Format("2006-01-02"), start, start.Add(3*time.Hour), gofakeit.Number(1, 15))
			if err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("sessions seeded")
	return nil
}
