package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kaigo-labs/omoide/internal/model"
)

// CreateProfile stores an elderly profile. Name, date of birth,
// nationality, dialect, and address are sealed with the configured cipher
// before they touch the database. Without a cipher they are stored as
// UTF-8 bytes, which keeps dev environments usable.
func (db *DB) CreateProfile(ctx context.Context, p model.Profile) (model.Profile, error) {
	if strings.TrimSpace(p.Name) == "" {
		return model.Profile{}, fmt.Errorf("%w: name is required", model.ErrValidation)
	}

	name, err := db.seal(p.Name)
	if err != nil {
		return model.Profile{}, err
	}
	dob, err := db.seal(p.DateOfBirth)
	if err != nil {
		return model.Profile{}, err
	}
	nationality, err := db.seal(p.Nationality)
	if err != nil {
		return model.Profile{}, err
	}
	dialect, err := db.seal(p.Dialect)
	if err != nil {
		return model.Profile{}, err
	}
	address, err := db.seal(p.Address)
	if err != nil {
		return model.Profile{}, err
	}

	var id uuid.UUID
	var createdAt time.Time
	err = db.pool.QueryRow(ctx, `
		INSERT INTO elderly_profile (name, gender, date_of_birth, nationality, dialect, marital_status, address)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`,
		name, nilIfEmpty(p.Gender), dob, nationality, dialect, nilIfEmpty(p.MaritalStatus), address,
	).Scan(&id, &createdAt)
	if err != nil {
		return model.Profile{}, fmt.Errorf("storage: create profile: %w", err)
	}

	p.ID = id
	p.CreatedAt = &createdAt
	return p, nil
}

// GetProfile loads and decrypts a profile by id.
func (db *DB) GetProfile(ctx context.Context, id uuid.UUID) (model.Profile, error) {
	var (
		p                                     model.Profile
		name, dob, nationality, dialect, addr []byte
		gender, marital                       *string
		createdAt                             time.Time
	)
	err := db.pool.QueryRow(ctx, `
		SELECT id, name, gender, date_of_birth, nationality, dialect, marital_status, address, created_at
		FROM elderly_profile
		WHERE id = $1`,
		id,
	).Scan(&p.ID, &name, &gender, &dob, &nationality, &dialect, &marital, &addr, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Profile{}, ErrNotFound
	}
	if err != nil {
		return model.Profile{}, fmt.Errorf("storage: get profile: %w", err)
	}

	if p.Name, err = db.open(name); err != nil {
		return model.Profile{}, err
	}
	if p.DateOfBirth, err = db.open(dob); err != nil {
		return model.Profile{}, err
	}
	if p.Nationality, err = db.open(nationality); err != nil {
		return model.Profile{}, err
	}
	if p.Dialect, err = db.open(dialect); err != nil {
		return model.Profile{}, err
	}
	if p.Address, err = db.open(addr); err != nil {
		return model.Profile{}, err
	}
	if gender != nil {
		p.Gender = *gender
	}
	if marital != nil {
		p.MaritalStatus = *marital
	}
	p.CreatedAt = &createdAt
	return p, nil
}

func (db *DB) seal(plaintext string) ([]byte, error) {
	if db.cipher == nil {
		if plaintext == "" {
			return nil, nil
		}
		return []byte(plaintext), nil
	}
	return db.cipher.Seal(plaintext)
}

func (db *DB) open(sealed []byte) (string, error) {
	if db.cipher == nil {
		return string(sealed), nil
	}
	return db.cipher.Open(sealed)
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
